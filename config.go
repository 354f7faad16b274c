package raco

import (
	"fmt"
	"time"

	"github.com/avrabe/raco/internal/config"
)

// Config is the engine configuration. The zero value of a nested field falls
// back to the package default.
type Config struct {
	Processor ProcessorConfig `json:"processor" yaml:"processor"`
	Allocator AllocatorConfig `json:"allocator" yaml:"allocator"`
}

type ProcessorConfig struct {
	WorkerCount    int           `json:"workers" yaml:"workers"`
	MaxTaskRetries int           `json:"maxRetries" yaml:"maxRetries"`
	RetryDelay     time.Duration `json:"retryDelay" yaml:"retryDelay"`
}

type AllocatorConfig struct {
	PollingInterval time.Duration `json:"pollingInterval" yaml:"pollingInterval"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Processor: ProcessorConfig{
			WorkerCount:    4,
			MaxTaskRetries: 1,
			RetryDelay:     time.Second,
		},
		Allocator: AllocatorConfig{
			PollingInterval: 20 * time.Millisecond,
		},
	}
}

// ConfigFrom maps the engine section of the application configuration.
func ConfigFrom(cfg *config.Config) *Config {
	ret := DefaultConfig()
	if cfg == nil {
		return ret
	}
	if cfg.Engine.Workers > 0 {
		ret.Processor.WorkerCount = cfg.Engine.Workers
	}
	if cfg.Engine.MaxRetries >= 0 {
		ret.Processor.MaxTaskRetries = cfg.Engine.MaxRetries
	}
	if cfg.Engine.RetryDelay > 0 {
		ret.Processor.RetryDelay = cfg.Engine.RetryDelay
	}
	if cfg.Engine.PollInterval > 0 {
		ret.Allocator.PollingInterval = cfg.Engine.PollInterval
	}
	return ret
}

// Validate returns an error describing the first invalid setting.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Processor.WorkerCount <= 0 {
		return fmt.Errorf("processor.workers must be > 0")
	}
	if c.Processor.MaxTaskRetries < 0 {
		return fmt.Errorf("processor.maxRetries must be >= 0")
	}
	if c.Allocator.PollingInterval < 0 {
		return fmt.Errorf("allocator.pollingInterval must be >= 0")
	}
	return nil
}
