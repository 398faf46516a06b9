// Package config assembles the service configuration from YAML files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/syntrixbase/coldtier/internal/cluster"
	eventsmongo "github.com/syntrixbase/coldtier/internal/events/mongo"
	eventsnats "github.com/syntrixbase/coldtier/internal/events/nats"
	"github.com/syntrixbase/coldtier/internal/lifecycle"
	"github.com/syntrixbase/coldtier/internal/scheduler"
	"github.com/syntrixbase/coldtier/internal/server"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config/config.yml"

// Config holds the application configuration
type Config struct {
	Cluster   cluster.Config   `yaml:"cluster"`
	Lifecycle lifecycle.Config `yaml:"lifecycle"`
	Schedule  scheduler.Config `yaml:"schedule"`
	Events    EventsConfig     `yaml:"events"`
	Server    server.Config    `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// EventsConfig selects where lifecycle events are delivered besides the metrics sink.
type EventsConfig struct {
	NATS  eventsnats.Config  `yaml:"nats"`
	Mongo eventsmongo.Config `yaml:"mongo"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Cluster:   cluster.DefaultConfig(),
		Lifecycle: lifecycle.DefaultConfig(),
		Schedule:  scheduler.DefaultConfig(),
		Events: EventsConfig{
			NATS:  eventsnats.DefaultConfig(),
			Mongo: eventsmongo.DefaultConfig(),
		},
		Server:  server.DefaultConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

// LoadConfig loads configuration from files and environment variables.
// Order: defaults -> path -> path.local -> ApplyDefaults -> ApplyEnvOverrides -> Validate
//
// An empty path means DefaultPath, which may be absent. An explicit path must exist.
// The local overlay next to it is always optional.
func LoadConfig(path string) (*Config, error) {
	// Defaults first so YAML can override them, including bool fields.
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	if err := loadFile(path, cfg, explicit); err != nil {
		return nil, err
	}
	if err := loadFile(localPath(path), cfg, false); err != nil {
		return nil, err
	}

	if err := Apply(cfg.components()...); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	cfg.Logging.ResolvePaths(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) components() []Component {
	return []Component{
		&c.Cluster,
		&c.Lifecycle,
		&c.Schedule,
		&c.Events.NATS,
		&c.Events.Mongo,
		&c.Server,
		&c.Logging,
	}
}

// localPath turns config/config.yml into config/config.local.yml.
func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func loadFile(filename string, cfg *Config, required bool) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return nil
}
