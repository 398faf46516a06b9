package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
	defaultLogDir    = "logs"
)

// LoggingConfig controls the service logger. Console output goes to stderr;
// file output is opt-in and rotated under Dir.
type LoggingConfig struct {
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	Dir      string         `yaml:"dir"`
	Rotation RotationConfig `yaml:"rotation"`
	Console  OutputConfig   `yaml:"console"`
	File     OutputConfig   `yaml:"file"`
}

// RotationConfig is passed through to the rotating file writer.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // megabytes
	MaxBackups int  `yaml:"max_backups"` // rotated files kept
	MaxAge     int  `yaml:"max_age"`     // days
	Compress   bool `yaml:"compress"`
}

// OutputConfig is one log destination. An empty Level or Format inherits
// the top-level value.
type OutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

// DefaultLoggingConfig logs text at info to the console only.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  defaultLogLevel,
		Format: defaultLogFormat,
		Dir:    defaultLogDir,
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Console: OutputConfig{Enabled: true},
	}
}

func (c *LoggingConfig) ApplyDefaults() {
	setDefault(&c.Level, defaultLogLevel)
	setDefault(&c.Format, defaultLogFormat)
	setDefault(&c.Dir, defaultLogDir)

	def := DefaultLoggingConfig().Rotation
	if c.Rotation.MaxSize <= 0 {
		c.Rotation.MaxSize = def.MaxSize
	}
	if c.Rotation.MaxBackups <= 0 {
		c.Rotation.MaxBackups = def.MaxBackups
	}
	if c.Rotation.MaxAge <= 0 {
		c.Rotation.MaxAge = def.MaxAge
	}

	for _, out := range []*OutputConfig{&c.Console, &c.File} {
		setDefault(&out.Level, c.Level)
		setDefault(&out.Format, c.Format)
	}
}

// ApplyEnvOverrides reads LOG_LEVEL, LOG_FORMAT and LOG_DIR. Level and
// format apply to every output, replacing per-output values from the file.
func (c *LoggingConfig) ApplyEnvOverrides() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Level, c.Console.Level, c.File.Level = v, v, v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Format, c.Console.Format, c.File.Format = v, v, v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.Dir = v
	}
}

// ResolvePaths resolves a relative Dir against the config file's
// directory. Paths starting with ".." are taken relative to configDir itself,
// anything else relative to its parent, so "logs" lands beside config/.
func (c *LoggingConfig) ResolvePaths(configDir string) {
	if c.Dir == "" || filepath.IsAbs(c.Dir) {
		return
	}
	base := filepath.Dir(configDir)
	if strings.HasPrefix(c.Dir, "..") {
		base = configDir
	}
	c.Dir = filepath.Clean(filepath.Join(base, c.Dir))
}

func (c *LoggingConfig) Validate() error {
	if err := checkLevelFormat("logging", c.Level, c.Format); err != nil {
		return err
	}
	if c.Dir == "" {
		return fmt.Errorf("logging.dir must not be empty")
	}
	if c.Console.Enabled {
		if err := checkLevelFormat("logging.console", c.Console.Level, c.Console.Format); err != nil {
			return err
		}
	}
	if c.File.Enabled {
		if err := checkLevelFormat("logging.file", c.File.Level, c.File.Format); err != nil {
			return err
		}
	}
	return nil
}

// checkLevelFormat accepts empty values; they are inherited.
func checkLevelFormat(section, level, format string) error {
	if level != "" && !slices.Contains(logLevels, level) {
		return fmt.Errorf("%s.level %q is invalid (one of %s)", section, level, strings.Join(logLevels, ", "))
	}
	if format != "" && !slices.Contains(logFormats, format) {
		return fmt.Errorf("%s.format %q is invalid (one of %s)", section, format, strings.Join(logFormats, ", "))
	}
	return nil
}

func setDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}
