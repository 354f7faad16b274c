package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Config configures the logger.
type Config struct {
	Level  string `json:"level" yaml:"level" toml:"level" koanf:"level"`
	Format string `json:"format" yaml:"format" toml:"format" koanf:"format"`
	// Output is "stderr", "stdout" or a file path.
	Output string `json:"output" yaml:"output" toml:"output" koanf:"output"`
}

// DefaultConfig returns console logging at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: "stderr"}
}

// Validate checks level and format.
func (c Config) Validate() error {
	if _, err := c.zapLevel(); err != nil {
		return err
	}
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging: unsupported format %q", c.Format)
	}
	return nil
}

func (c Config) zapLevel() (zapcore.Level, error) {
	if c.Level == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return level, fmt.Errorf("logging: invalid level %q: %w", c.Level, err)
	}
	return level, nil
}
