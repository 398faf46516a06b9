package cluster

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds connection settings for the cluster admin API.
type Config struct {
	// URL is the base URL of the cluster, e.g. https://opensearch:9200
	URL string `yaml:"url"`

	// CertFile and KeyFile enable mutual TLS when both are set.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// CAFile optionally pins the cluster CA.
	CAFile string `yaml:"ca_file"`
	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Repository is the snapshot repository all lifecycle snapshots live in.
	Repository string `yaml:"repository"`
	// Bucket is the object-storage bucket backing Repository, used when registering it.
	Bucket string `yaml:"bucket"`

	// Timeout bounds a single request.
	Timeout time.Duration `yaml:"timeout"`
	// SnapshotListTimeout bounds the repository catalog query, which is slow on large repositories.
	SnapshotListTimeout time.Duration `yaml:"snapshot_list_timeout"`

	// RequestsPerSecond caps the request rate against the cluster (0 = unlimited).
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DefaultConfig returns the default cluster configuration.
func DefaultConfig() Config {
	return Config{
		URL:                 "https://localhost:9200",
		InsecureSkipVerify:  true,
		Repository:          "data",
		Timeout:             30 * time.Second,
		SnapshotListTimeout: time.Hour,
		RequestsPerSecond:   20,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.Repository == "" {
		c.Repository = d.Repository
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.SnapshotListTimeout == 0 {
		c.SnapshotListTimeout = d.SnapshotListTimeout
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("CERT_FILE_PATH"); v != "" {
		c.CertFile = v
	}
	if v := os.Getenv("KEY_FILE_PATH"); v != "" {
		c.KeyFile = v
	}
	if v := os.Getenv("CA_FILE_PATH"); v != "" {
		c.CAFile = v
	}
	if v := os.Getenv("REPOSITORY_DATA"); v != "" {
		c.Repository = v
	}
	if v := os.Getenv("BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("CLUSTER_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("CLUSTER_INSECURE_SKIP_VERIFY"); v != "" {
		c.InsecureSkipVerify = v == "true" || v == "1"
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("cluster url %q is not an absolute URL", c.URL)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("cluster cert_file and key_file must be set together")
	}
	if strings.TrimSpace(c.Repository) == "" {
		return fmt.Errorf("cluster repository cannot be empty")
	}
	if c.Timeout < 0 || c.SnapshotListTimeout < 0 {
		return fmt.Errorf("cluster timeouts cannot be negative")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("cluster requests_per_second cannot be negative")
	}
	return nil
}
