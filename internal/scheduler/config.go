package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the cron schedule of the management daemon.
type Config struct {
	// ILM is the cron spec of the combined transition, cleanup and restore run.
	ILM string `yaml:"ilm"`
	// Rollover is the cron spec of the rollover check.
	Rollover string `yaml:"rollover"`
	// Location is the IANA time zone the specs are evaluated in.
	Location string `yaml:"location"`
	// LockDir holds one lock file per job so that concurrently running
	// processes never execute the same job at once.
	LockDir string `yaml:"lock_dir"`
}

// DefaultConfig returns the default schedule: ILM daily at 01:00 and a
// rollover check every 15 minutes.
func DefaultConfig() Config {
	return Config{
		ILM:      "0 1 * * *",
		Rollover: "*/15 * * * *",
		Location: "Local",
		LockDir:  filepath.Join(os.TempDir(), "coldtier"),
	}
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.ILM == "" {
		c.ILM = d.ILM
	}
	if c.Rollover == "" {
		c.Rollover = d.Rollover
	}
	if c.Location == "" {
		c.Location = d.Location
	}
	if c.LockDir == "" {
		c.LockDir = d.LockDir
	}
}

func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SCHEDULE_ILM"); v != "" {
		c.ILM = v
	}
	if v := os.Getenv("SCHEDULE_ROLLOVER"); v != "" {
		c.Rollover = v
	}
	if v := os.Getenv("SCHEDULE_TZ"); v != "" {
		c.Location = v
	}
}

func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.ILM); err != nil {
		return fmt.Errorf("invalid ilm schedule %q: %w", c.ILM, err)
	}
	if _, err := cron.ParseStandard(c.Rollover); err != nil {
		return fmt.Errorf("invalid rollover schedule %q: %w", c.Rollover, err)
	}
	if _, err := time.LoadLocation(c.Location); err != nil {
		return fmt.Errorf("invalid schedule location %q: %w", c.Location, err)
	}
	if c.LockDir == "" {
		return fmt.Errorf("schedule lock_dir cannot be empty")
	}
	return nil
}
