package lifecycle

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigurationError reports a lifecycle configuration that violates its invariants.
// It is fatal: nothing may be sent to the cluster with such a configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid lifecycle configuration: %s %s", e.Field, e.Reason)
}

// Config holds the lifecycle policy.
type Config struct {
	HotStorageDays       int      `yaml:"hot_storage_days"`
	TotalRetentionDays   int      `yaml:"total_retention_days"`
	RolloverSizeGB       int      `yaml:"rollover_size_gb"`
	RolloverAgeDays      int      `yaml:"rollover_age_days"`
	ManagedIndexPatterns []string `yaml:"managed_index_patterns"`

	// MaxRetries bounds the attempts of one index transition.
	MaxRetries int `yaml:"max_retries"`
	// RetryBackoff is the wait before the second attempt; it doubles per attempt.
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxSnapshotWait time.Duration `yaml:"max_snapshot_wait"`

	// ImplausibleAgeDays marks computed ages that almost certainly come from a
	// missing or zero epoch. Such items are never deleted.
	ImplausibleAgeDays float64 `yaml:"implausible_age_days"`

	WriteAliasSuffix    string `yaml:"write_alias_suffix"`
	SearchableSuffix    string `yaml:"searchable_suffix"`
	ReservedIndexPrefix string `yaml:"reserved_index_prefix"`
}

// DefaultConfig returns the default lifecycle policy.
func DefaultConfig() Config {
	return Config{
		HotStorageDays:       7,
		TotalRetentionDays:   90,
		RolloverSizeGB:       50,
		RolloverAgeDays:      30,
		ManagedIndexPatterns: []string{"log", "alert"},
		MaxRetries:           3,
		RetryBackoff:         30 * time.Second,
		PollInterval:         30 * time.Second,
		MaxSnapshotWait:      60 * time.Minute,
		ImplausibleAgeDays:   20000,
		WriteAliasSuffix:     "-write",
		SearchableSuffix:     "-snapshot",
		ReservedIndexPrefix:  ".ds",
	}
}

// ApplyDefaults fills zero values of the tuning knobs with defaults.
// Policy values (days, sizes, patterns) are left alone so Validate can reject them.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxSnapshotWait == 0 {
		c.MaxSnapshotWait = d.MaxSnapshotWait
	}
	if c.ImplausibleAgeDays == 0 {
		c.ImplausibleAgeDays = d.ImplausibleAgeDays
	}
	if c.WriteAliasSuffix == "" {
		c.WriteAliasSuffix = d.WriteAliasSuffix
	}
	if c.SearchableSuffix == "" {
		c.SearchableSuffix = d.SearchableSuffix
	}
	if c.ReservedIndexPrefix == "" {
		c.ReservedIndexPrefix = d.ReservedIndexPrefix
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	envInt("NUMBER_OF_DAYS_ON_HOT_STORAGE", &c.HotStorageDays)
	envInt("NUMBER_OF_DAYS_TOTAL_RETENTION", &c.TotalRetentionDays)
	envInt("ROLLOVER_SIZE_GB", &c.RolloverSizeGB)
	envInt("ROLLOVER_AGE_DAYS", &c.RolloverAgeDays)
	if v := os.Getenv("MANAGED_INDEX_PATTERNS"); v != "" {
		c.ManagedIndexPatterns = splitPatterns(v)
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func splitPatterns(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the policy invariants.
func (c *Config) Validate() error {
	if c.HotStorageDays < 0 {
		return &ConfigurationError{Field: "hot_storage_days", Reason: fmt.Sprintf("must be >= 0, got %d", c.HotStorageDays)}
	}
	if c.TotalRetentionDays < 0 {
		return &ConfigurationError{Field: "total_retention_days", Reason: fmt.Sprintf("must be >= 0, got %d", c.TotalRetentionDays)}
	}
	if c.HotStorageDays > c.TotalRetentionDays {
		return &ConfigurationError{
			Field:  "hot_storage_days",
			Reason: fmt.Sprintf("(%d) cannot exceed total_retention_days (%d)", c.HotStorageDays, c.TotalRetentionDays),
		}
	}
	if c.RolloverSizeGB <= 0 {
		return &ConfigurationError{Field: "rollover_size_gb", Reason: fmt.Sprintf("must be > 0, got %d", c.RolloverSizeGB)}
	}
	if c.RolloverAgeDays <= 0 {
		return &ConfigurationError{Field: "rollover_age_days", Reason: fmt.Sprintf("must be > 0, got %d", c.RolloverAgeDays)}
	}
	if len(c.ManagedIndexPatterns) == 0 {
		return &ConfigurationError{Field: "managed_index_patterns", Reason: "must name at least one pattern"}
	}
	for _, p := range c.ManagedIndexPatterns {
		if strings.TrimSpace(p) == "" {
			return &ConfigurationError{Field: "managed_index_patterns", Reason: "cannot contain empty patterns"}
		}
	}
	if c.MaxRetries < 1 {
		return &ConfigurationError{Field: "max_retries", Reason: fmt.Sprintf("must be >= 1, got %d", c.MaxRetries)}
	}
	if c.RetryBackoff < 0 || c.PollInterval <= 0 || c.MaxSnapshotWait <= 0 {
		return &ConfigurationError{Field: "retry_backoff/poll_interval/max_snapshot_wait", Reason: "must be positive"}
	}
	if c.ImplausibleAgeDays <= float64(c.TotalRetentionDays) {
		return &ConfigurationError{
			Field:  "implausible_age_days",
			Reason: fmt.Sprintf("(%.0f) must exceed total_retention_days (%d)", c.ImplausibleAgeDays, c.TotalRetentionDays),
		}
	}
	if c.SearchableSuffix == "" || c.WriteAliasSuffix == "" {
		return &ConfigurationError{Field: "searchable_suffix/write_alias_suffix", Reason: "cannot be empty"}
	}
	return nil
}
