package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration, loaded from a TOML file.
type Config struct {
	Hostname   string           `toml:"hostname"`
	Database   DatabaseConfig   `toml:"database"`
	SMTP       SMTPServerConfig `toml:"smtp"`
	Classifier ClassifierConfig `toml:"classifier"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Logging    LoggingConfig    `toml:"logging"`
}

// DatabaseEndpointConfig holds configuration for a single database endpoint.
type DatabaseEndpointConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"` // Default: 5432
	User            string `toml:"user"`
	Password        string `toml:"password"`
	Name            string `toml:"name"`
	TLSMode         bool   `toml:"tls"`
	MaxConns        int    `toml:"max_conns"`          // Maximum number of connections in the pool
	MinConns        int    `toml:"min_conns"`          // Minimum number of connections in the pool
	MaxConnLifetime string `toml:"max_conn_lifetime"`  // Maximum lifetime of a connection
	MaxConnIdleTime string `toml:"max_conn_idle_time"` // Maximum idle time before a connection is closed
}

// DatabaseConfig holds database configuration with separate read/write endpoints.
type DatabaseConfig struct {
	Debug        bool                    `toml:"debug"`         // Enable SQL query logging
	QueryTimeout string                  `toml:"query_timeout"` // Default timeout for queries (default: "30s")
	WriteTimeout string                  `toml:"write_timeout"` // Timeout for write operations (default: "10s")
	Write        *DatabaseEndpointConfig `toml:"write"`
	Read         *DatabaseEndpointConfig `toml:"read"` // Optional; falls back to the write endpoint
}

// GetMaxConnLifetime parses the max connection lifetime duration for an endpoint.
func (e *DatabaseEndpointConfig) GetMaxConnLifetime() (time.Duration, error) {
	if e.MaxConnLifetime == "" {
		return time.Hour, nil
	}
	return time.ParseDuration(e.MaxConnLifetime)
}

// GetMaxConnIdleTime parses the max connection idle time duration for an endpoint.
func (e *DatabaseEndpointConfig) GetMaxConnIdleTime() (time.Duration, error) {
	if e.MaxConnIdleTime == "" {
		return 30 * time.Minute, nil
	}
	return time.ParseDuration(e.MaxConnIdleTime)
}

// GetQueryTimeout parses the general query timeout duration.
func (d *DatabaseConfig) GetQueryTimeout() (time.Duration, error) {
	if d.QueryTimeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(d.QueryTimeout)
}

// GetWriteTimeout parses the write timeout duration.
func (d *DatabaseConfig) GetWriteTimeout() (time.Duration, error) {
	if d.WriteTimeout == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(d.WriteTimeout)
}

// SMTPServerConfig holds the inbound SMTP listener configuration.
type SMTPServerConfig struct {
	Start          bool   `toml:"start"`
	Addr           string `toml:"addr"`             // Listen address, e.g. ":25"
	MaxMessageSize int64  `toml:"max_message_size"` // Bytes; 0 means default
	MaxRecipients  int    `toml:"max_recipients"`
	ReadTimeout    string `toml:"read_timeout"`
	WriteTimeout   string `toml:"write_timeout"`
	Debug          bool   `toml:"debug"`
}

func (s *SMTPServerConfig) GetReadTimeout() (time.Duration, error) {
	if s.ReadTimeout == "" {
		return 60 * time.Second, nil
	}
	return time.ParseDuration(s.ReadTimeout)
}

func (s *SMTPServerConfig) GetWriteTimeout() (time.Duration, error) {
	if s.WriteTimeout == "" {
		return 60 * time.Second, nil
	}
	return time.ParseDuration(s.WriteTimeout)
}

// ClassifierConfig configures the optional external labeling service.
// When disabled, deliveries proceed with rule-provided labels only.
type ClassifierConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"` // Chat-completion style endpoint
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"` // Per-call timeout (default: "10s")
}

func (c *ClassifierConfig) GetTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(c.Timeout)
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"` // e.g. "localhost:9090"
	Path    string `toml:"path"` // Default: "/metrics"
}

// LoggingConfig configures the logging output.
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// NewDefaultConfig returns a configuration with sane defaults for a
// single-host deployment.
func NewDefaultConfig() Config {
	return Config{
		Hostname: "localhost",
		SMTP: SMTPServerConfig{
			Start:          true,
			Addr:           ":25",
			MaxMessageSize: 50 * 1024 * 1024,
			MaxRecipients:  100,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
	}
}

// Load reads and decodes the TOML configuration file at path, layered on
// top of the defaults.
func Load(path string) (Config, error) {
	cfg := NewDefaultConfig()
	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file not accessible: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config file '%s': %w", path, err)
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Database.Write == nil {
		return fmt.Errorf("database.write endpoint is required")
	}
	if c.Database.Write.Host == "" || c.Database.Write.Name == "" {
		return fmt.Errorf("database.write host and name are required")
	}
	if c.Classifier.Enabled && c.Classifier.URL == "" {
		return fmt.Errorf("classifier.url is required when classifier is enabled")
	}
	if _, err := c.Database.GetQueryTimeout(); err != nil {
		return fmt.Errorf("invalid database.query_timeout: %w", err)
	}
	if _, err := c.Classifier.GetTimeout(); err != nil {
		return fmt.Errorf("invalid classifier.timeout: %w", err)
	}
	return nil
}
