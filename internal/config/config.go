// Package config loads the testdesk YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at the config file
const EnvConfigPath = "TESTDESK_CONFIG"

const (
	DefaultServerPort    = 8420
	DefaultCacheTimeout  = 5 * time.Minute
	DefaultTicketTimeout = 30 * time.Second
)

// Config represents the config.yaml structure
type Config struct {
	Server   ServerSettings   `yaml:"server"`
	Database DatabaseSettings `yaml:"database"`
	Cache    CacheSettings    `yaml:"cache"`
	Ticket   TicketSettings   `yaml:"ticket"`
	Logging  LoggingSettings  `yaml:"logging"`
}

// ServerSettings configures the HTTP API
type ServerSettings struct {
	Port int `yaml:"port"`
}

// DatabaseSettings selects the store
type DatabaseSettings struct {
	Driver string `yaml:"driver"` // "sqlite" or "pgx"
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// CacheSettings configures the per-session collection cache
type CacheSettings struct {
	Timeout time.Duration `yaml:"timeout"`
}

// TicketSettings points at the issue tracker proxy
type TicketSettings struct {
	ProxyURL string        `yaml:"proxy_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoggingSettings configures the slog handler
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Defaults returns the configuration used when no file is present
func Defaults() Config {
	return Config{
		Server:   ServerSettings{Port: DefaultServerPort},
		Database: DatabaseSettings{Driver: "sqlite"},
		Cache:    CacheSettings{Timeout: DefaultCacheTimeout},
		Ticket:   TicketSettings{Timeout: DefaultTicketTimeout},
		Logging:  LoggingSettings{Level: "info", Format: "text"},
	}
}

// DefaultPath returns ~/.testdesk/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".testdesk", "config.yaml")
}

// Load reads the config file at path. An empty path falls back to $TESTDESK_CONFIG, then to
// DefaultPath. A missing default file is not an error; a missing explicit file is.
func Load(path string) (Config, error) {
	cfg := Defaults()
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and merges it over Defaults
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parsing config.yaml: %w", err)
	}
	cfg.merge(file)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// merge overrides c with the non-zero values of o
func (c *Config) merge(o Config) {
	if o.Server.Port != 0 {
		c.Server.Port = o.Server.Port
	}
	if o.Database.Driver != "" {
		c.Database.Driver = o.Database.Driver
	}
	if o.Database.Path != "" {
		c.Database.Path = o.Database.Path
	}
	if o.Database.DSN != "" {
		c.Database.DSN = o.Database.DSN
	}
	if o.Cache.Timeout != 0 {
		c.Cache.Timeout = o.Cache.Timeout
	}
	if o.Ticket.ProxyURL != "" {
		c.Ticket.ProxyURL = o.Ticket.ProxyURL
	}
	if o.Ticket.Timeout != 0 {
		c.Ticket.Timeout = o.Ticket.Timeout
	}
	if o.Logging.Level != "" {
		c.Logging.Level = o.Logging.Level
	}
	if o.Logging.Format != "" {
		c.Logging.Format = o.Logging.Format
	}
}

// Validate checks values that would otherwise fail late
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite":
	case "pgx", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Cache.Timeout < 0 || c.Ticket.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// DatabaseSource returns the driver argument for db.Open
func (c Config) DatabaseSource() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
	}
	return c.Database.DSN
}
