package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/coldtier/internal/config"
)

func testLoggingConfig(t *testing.T) config.LoggingConfig {
	cfg := config.DefaultLoggingConfig()
	cfg.Dir = t.TempDir()
	cfg.File.Enabled = true
	return cfg
}

func captureConsole(t *testing.T) *bytes.Buffer {
	buf := &bytes.Buffer{}
	orig := console
	console = buf
	t.Cleanup(func() { console = orig })
	return buf
}

func TestNewLogger_ErrorLogSeparation(t *testing.T) {
	captureConsole(t)
	cfg := testLoggingConfig(t)

	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	logger.Info("info message")
	logger.Warn("warning message")
	logger.Error("error message")
	require.NoError(t, Shutdown())

	mainContent, err := os.ReadFile(filepath.Join(cfg.Dir, "coldtier.log"))
	require.NoError(t, err)
	assert.Contains(t, string(mainContent), "info message")
	assert.Contains(t, string(mainContent), "error message")

	errorContent, err := os.ReadFile(filepath.Join(cfg.Dir, "errors.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(errorContent), "info message")
	assert.Contains(t, string(errorContent), "warning message")
	assert.Contains(t, string(errorContent), "error message")
}

func TestNewLogger_JSONFormat(t *testing.T) {
	captureConsole(t)
	cfg := testLoggingConfig(t)
	cfg.File.Format = "json"

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.Info("test json", "index", "log-a")
	require.NoError(t, Shutdown())

	content, err := os.ReadFile(filepath.Join(cfg.Dir, "coldtier.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"test json"`)
	assert.Contains(t, string(content), `"index":"log-a"`)
}

func TestNewLogger_ConsoleOnly(t *testing.T) {
	buf := captureConsole(t)
	cfg := testLoggingConfig(t)
	cfg.File.Enabled = false
	cfg.Console.Level = "debug"

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.Debug("polling")

	assert.Contains(t, buf.String(), "polling")
	assert.NoFileExists(t, filepath.Join(cfg.Dir, "coldtier.log"))
}

func TestNewLogger_NothingEnabled(t *testing.T) {
	cfg := testLoggingConfig(t)
	cfg.File.Enabled = false
	cfg.Console.Enabled = false

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.Error("dropped")
}

func TestInitialize_SetsGlobalLogger(t *testing.T) {
	captureConsole(t)
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })
	cfg := testLoggingConfig(t)

	_, err := Initialize(cfg)
	require.NoError(t, err)
	slog.Info("global test message")
	require.NoError(t, Shutdown())

	content, err := os.ReadFile(filepath.Join(cfg.Dir, "coldtier.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "global test message")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
