// Package config loads the daemon configuration from a YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the sagaflowd runtime configuration.
type Config struct {
	NATS NATSConfig `yaml:"nats"`
	// Maximum number of finished or in-flight command statuses kept in
	// memory before the oldest are evicted.
	StatusCapacity int    `yaml:"status_capacity"`
	LogLevel       string `yaml:"log_level"`
}

// NATSConfig holds the message bus connection settings. An empty URL means
// an embedded server is started in-process.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	QueueGroup    string `yaml:"queue_group"`
}

// Load reads the YAML config file at the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	cfg.SetDefaults()

	return &cfg, nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	if c.StatusCapacity <= 0 {
		c.StatusCapacity = 300
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "sagaflow.commands"
	}
	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = "sagaflow-workers"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// SlogLevel maps the configured log level to a slog.Level. Unknown values
// fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
