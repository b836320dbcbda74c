// Package config provides configuration loading for the relay.
//
// Configuration comes from an optional YAML file given with --config. Values
// absent from the file keep their defaults; command-line flags override
// both. ${VAR} and ${VAR:-default} in paths are expanded from the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete relay configuration.
type Config struct {
	// Relay describes this relay in the health document.
	Relay RelayConfig `yaml:"relay"`

	// Server configures the HTTP and WebSocket listener.
	Server ServerConfig `yaml:"server"`

	// Storage configures the SQLite database.
	Storage StorageConfig `yaml:"storage"`

	// Query configures result bounds.
	Query QueryConfig `yaml:"query"`

	// Ingest configures the single-writer pipeline.
	Ingest IngestConfig `yaml:"ingest"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
}

// RelayConfig is the relay's public identity.
type RelayConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ServerConfig configures the network listener.
type ServerConfig struct {
	// Listen is the TCP address to bind.
	// Default: :8080
	Listen string `yaml:"listen"`

	// ReadLimit is the largest WebSocket frame accepted, in bytes.
	// Default: 512 KiB
	ReadLimit int64 `yaml:"read_limit"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StorageConfig configures the database.
type StorageConfig struct {
	// Path is the SQLite database file.
	// Default: packrelay.db
	Path string `yaml:"path"`
}

// QueryConfig bounds query results.
type QueryConfig struct {
	// MaxLimit is the hard ceiling on events returned per filter.
	// Default: 500
	MaxLimit int `yaml:"max_limit"`
}

// IngestConfig configures the write pipeline.
type IngestConfig struct {
	// QueueSize is how many submissions may wait for the writer.
	// Default: 1024
	QueueSize int `yaml:"queue_size"`
}

// LogConfig configures slog output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// MetricsConfig configures instrumentation.
type MetricsConfig struct {
	// Enabled serves /metrics.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// SampleInterval is how often store totals are sampled.
	// Default: 30s
	SampleInterval string `yaml:"sample_interval"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Name:        "packrelay",
			Description: "Compressed event relay",
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ReadLimit:       512 * 1024,
			ShutdownTimeout: "10s",
		},
		Storage: StorageConfig{
			Path: "packrelay.db",
		},
		Query: QueryConfig{
			MaxLimit: 500,
		},
		Ingest: IngestConfig{
			QueueSize: 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			SampleInterval: "30s",
		},
	}
}

// LoadFile loads configuration from path over the defaults.
// An empty path returns the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Storage.Path = expandVars(cfg.Storage.Path)
	return cfg, nil
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// ShutdownTimeout returns Server.ShutdownTimeout as a duration.
// Validate guarantees it parses.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return d
}

// SampleInterval returns Metrics.SampleInterval as a duration.
func (c *Config) SampleInterval() time.Duration {
	d, _ := time.ParseDuration(c.Metrics.SampleInterval)
	return d
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("server.listen is required"))
	}
	if c.Server.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("server.read_limit must be positive, got %d", c.Server.ReadLimit))
	}
	if d, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout: invalid duration %q", c.Server.ShutdownTimeout))
	}

	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	}

	if c.Query.MaxLimit <= 0 {
		errs = append(errs, fmt.Errorf("query.max_limit must be positive, got %d", c.Query.MaxLimit))
	}

	if c.Ingest.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("ingest.queue_size must not be negative, got %d", c.Ingest.QueueSize))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if c.Metrics.Enabled {
		if d, err := time.ParseDuration(c.Metrics.SampleInterval); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("metrics.sample_interval: invalid duration %q", c.Metrics.SampleInterval))
		}
	}

	return errors.Join(errs...)
}
