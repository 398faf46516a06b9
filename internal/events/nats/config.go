package nats

import (
	"fmt"
	"os"
)

// Config holds the JetStream event publisher settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	// Stream is created or updated on startup to capture Subject + ".>".
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
	// Storage is "file" or "memory".
	Storage       string `yaml:"storage"`
	RetryAttempts int    `yaml:"retry_attempts"`
}

// DefaultConfig returns the default publisher configuration.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Stream:        "COLDTIER",
		Subject:       "coldtier.events",
		Storage:       "file",
		RetryAttempts: 3,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.Stream == "" {
		c.Stream = d.Stream
	}
	if c.Subject == "" {
		c.Subject = d.Subject
	}
	if c.Storage == "" {
		c.Storage = d.Storage
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("EVENTS_NATS_URL"); v != "" {
		c.URL = v
		c.Enabled = true
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("events nats url is required when enabled")
	}
	if c.Storage != "file" && c.Storage != "memory" {
		return fmt.Errorf("events nats storage must be file or memory, got %q", c.Storage)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("events nats retry_attempts cannot be negative")
	}
	return nil
}
