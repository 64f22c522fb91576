// Package config loads the YAML configuration file shared by the CLI
// and the metrics server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface. Zero values fall back to
// the documented defaults, so an empty file is a valid configuration.
type Config struct {
	// Database is the SQLite file path.
	Database string `yaml:"database"`

	// Descriptors optionally points at a record descriptor file. Empty
	// means the built-in record types.
	Descriptors string `yaml:"descriptors"`

	// RetentionDays is the auto-delete horizon for record data. Zero
	// disables retention.
	RetentionDays int `yaml:"retention_days"`

	// HistoricCutoffDays bounds how far back an app may read other
	// apps' data. Zero disables the cutoff.
	HistoricCutoffDays int `yaml:"historic_cutoff_days"`

	// PageSize is the default read and change-stream page size.
	PageSize int `yaml:"page_size"`

	// MetricsAddr is the listen address of the Prometheus endpoint.
	// Empty disables the server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: "vitalstore.db",
	}
}

// Load reads and validates a configuration file. Unknown keys are
// rejected so typos fail loudly instead of silently using defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if c.HistoricCutoffDays < 0 {
		return fmt.Errorf("historic_cutoff_days must not be negative")
	}
	if c.PageSize < 0 {
		return fmt.Errorf("page_size must not be negative")
	}
	return nil
}
