// Package config loads raco configuration from TOML/YAML files and RACO_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avrabe/raco/internal/errs"
	"github.com/avrabe/raco/internal/logging"
)

const (
	// DefaultConfigFile is the config file name looked up in the user config dir.
	DefaultConfigFile = "raco.toml"
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "RACO_CONFIG"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RACO_"
	// DefaultMaxRetries applies unless max_retries is set, zero included.
	DefaultMaxRetries = 1
)

// Config is the root configuration.
type Config struct {
	DataDir   string         `toml:"data_dir" koanf:"data_dir" json:"data_dir"`
	Log       logging.Config `toml:"log" koanf:"log" json:"log"`
	Engine    Engine         `toml:"engine" koanf:"engine" json:"engine"`
	Queue     Queue          `toml:"queue" koanf:"queue" json:"queue"`
	Store     Store          `toml:"store" koanf:"store" json:"store"`
	Web       Web            `toml:"web" koanf:"web" json:"web"`
	Servers   Servers        `toml:"servers" koanf:"servers" json:"servers"`
	Workflows Workflows      `toml:"workflows" koanf:"workflows" json:"workflows"`
	Tracing   Tracing        `toml:"tracing" koanf:"tracing" json:"tracing"`
}

// Engine tunes the workflow engine.
type Engine struct {
	Workers      int           `toml:"workers" koanf:"workers" json:"workers"`
	PollInterval time.Duration `toml:"poll_interval" koanf:"poll_interval" json:"poll_interval"`
	MaxRetries   int           `toml:"max_retries" koanf:"max_retries" json:"max_retries"`
	RetryDelay   time.Duration `toml:"retry_delay" koanf:"retry_delay" json:"retry_delay"`
}

// Queue selects the step execution queue.
type Queue struct {
	Vendor  string `toml:"vendor" koanf:"vendor" json:"vendor"`
	NatsURL string `toml:"nats_url" koanf:"nats_url" json:"nats_url"`
	Subject string `toml:"subject" koanf:"subject" json:"subject"`
}

// Store selects workflow instance persistence.
type Store struct {
	Vendor string `toml:"vendor" koanf:"vendor" json:"vendor"`
}

// Web configures the HTTP API.
type Web struct {
	Host string `toml:"host" koanf:"host" json:"host"`
	Port int    `toml:"port" koanf:"port" json:"port"`
	// AllowOrigins lists the browser origins allowed to call the API.
	AllowOrigins []string `toml:"allow_origins" koanf:"allow_origins" json:"allow_origins,omitempty"`
	// AllowStdio lets API clients register servers started as local commands.
	AllowStdio bool `toml:"allow_stdio" koanf:"allow_stdio" json:"allow_stdio,omitempty"`
}

// Addr returns host:port.
func (w Web) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// Servers configures the built-in MCP servers.
type Servers struct {
	Root  string   `toml:"root" koanf:"root" json:"root"`
	Allow []string `toml:"allow" koanf:"allow" json:"allow"`
}

// Workflows configures definition discovery.
type Workflows struct {
	Dir   string `toml:"dir" koanf:"dir" json:"dir"`
	Watch bool   `toml:"watch" koanf:"watch" json:"watch"`
}

// Tracing configures OpenTelemetry output.
type Tracing struct {
	Enabled bool   `toml:"enabled" koanf:"enabled" json:"enabled"`
	Output  string `toml:"output" koanf:"output" json:"output"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Engine: Engine{MaxRetries: DefaultMaxRetries}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stderr"
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = 4
	}
	if c.Engine.PollInterval == 0 {
		c.Engine.PollInterval = 20 * time.Millisecond
	}
	if c.Engine.RetryDelay == 0 {
		c.Engine.RetryDelay = time.Second
	}
	if c.Queue.Vendor == "" {
		c.Queue.Vendor = "memory"
	}
	if c.Queue.Subject == "" {
		c.Queue.Subject = "raco.executions"
	}
	if c.Store.Vendor == "" {
		c.Store.Vendor = "memory"
	}
	if c.Web.Host == "" {
		c.Web.Host = "127.0.0.1"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 3000
	}
	if c.Servers.Root == "" {
		c.Servers.Root = "."
	}
	if c.Workflows.Dir == "" {
		c.Workflows.Dir = filepath.Join(c.DataDir, "workflows")
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errs.New(errs.KindConfig, "data_dir must be set")
	}
	if err := c.Log.Validate(); err != nil {
		return errs.Wrap(errs.KindConfig, err, "log")
	}
	if c.Engine.Workers <= 0 {
		return errs.New(errs.KindConfig, "engine.workers must be > 0")
	}
	if c.Engine.MaxRetries < 0 {
		return errs.New(errs.KindConfig, "engine.max_retries must be >= 0")
	}
	switch c.Queue.Vendor {
	case "memory":
	case "nats":
		if c.Queue.NatsURL == "" {
			return errs.New(errs.KindConfig, "queue.nats_url is required for nats vendor")
		}
	default:
		return errs.New(errs.KindConfig, "unsupported queue.vendor %q", c.Queue.Vendor)
	}
	switch c.Store.Vendor {
	case "memory", "fs":
	default:
		return errs.New(errs.KindConfig, "unsupported store.vendor %q", c.Store.Vendor)
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return errs.New(errs.KindConfig, "web.port out of range: %d", c.Web.Port)
	}
	return nil
}

// DefaultDataDir returns <user data dir>/raco, falling back to ~/.raco/raco.
func DefaultDataDir() string {
	if dir := userDataDir(); dir != "" {
		return filepath.Join(dir, "raco")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".raco", "raco")
	}
	return filepath.Join(".raco", "raco")
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch {
	case fileExists(filepath.Join(home, "Library")):
		return filepath.Join(home, "Library", "Application Support")
	case os.Getenv("APPDATA") != "":
		return os.Getenv("APPDATA")
	default:
		return filepath.Join(home, ".local", "share")
	}
}

// DefaultConfigPath returns ~/.config/raco.toml.
func DefaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", DefaultConfigFile)
	}
	return DefaultConfigFile
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
