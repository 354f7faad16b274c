package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/avrabe/raco/internal/errs"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

var sections = map[string]bool{
	"log": true, "engine": true, "queue": true, "store": true, "web": true,
	"servers": true, "workflows": true, "tracing": true,
}

// Load resolves the config file (explicit path, RACO_CONFIG, then
// ~/.config/raco.toml), applies RACO_* overrides, defaults and validation.
// Only an explicitly requested file must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if envPath := os.Getenv(EnvConfigPath); envPath != "" {
			path, explicit = envPath, true
		} else {
			path = DefaultConfigPath()
		}
	}
	k := koanf.New(".")
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), parserFor(path)); err != nil {
			return nil, errs.Wrap(errs.KindConfig, err, fmt.Sprintf("failed to load config file %s", path))
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, errs.Wrap(errs.KindIO, err, fmt.Sprintf("failed to read config file %s", path))
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "failed to load environment overrides")
	}

	cfg := &Config{Engine: Engine{MaxRetries: DefaultMaxRetries}}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errs.Wrap(errs.KindSerialization, err, "failed to unmarshal config")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps RACO_WEB_PORT to web.port and RACO_DATA_DIR to data_dir.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 2 && sections[parts[0]] {
		return parts[0] + "." + parts[1]
	}
	return lower
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return tomlParser{}
	}
}

// tomlParser adapts BurntSushi/toml to koanf.Parser.
type tomlParser struct{}

func (tomlParser) Unmarshal(data []byte) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if _, err := toml.Decode(string(data), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := toml.NewEncoder(buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes cfg as TOML to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.KindIO, err, "create config dir")
	}
	buf := &bytes.Buffer{}
	if err := toml.NewEncoder(buf).Encode(cfg); err != nil {
		return errs.Wrap(errs.KindSerialization, err, "encode config")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errs.Wrap(errs.KindIO, err, "write config")
	}
	return nil
}
