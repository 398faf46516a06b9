package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/coldtier/internal/events"
	"github.com/syntrixbase/coldtier/internal/lifecycle"
	"github.com/syntrixbase/coldtier/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunner_Execute(t *testing.T) {
	r := NewRunner(t.TempDir(), discardLogger())
	before := testutil.ToFloat64(metrics.OperationRuns.WithLabelValues("test-ok", metrics.ResultOK))

	var runID string
	err := r.Execute(context.Background(), "test-ok", func(ctx context.Context) error {
		runID = events.RunID(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.OperationRuns.WithLabelValues("test-ok", metrics.ResultOK)))
}

func TestRunner_SkipsWhenLocked(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(dir, discardLogger())

	held := flock.New(filepath.Join(dir, "test-locked.lock"))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	called := false
	err = r.Execute(context.Background(), "test-locked", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLocked)
	assert.False(t, called)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationRuns.WithLabelValues("test-locked", metrics.ResultSkipped)))
}

func TestRunner_ReleasesLock(t *testing.T) {
	r := NewRunner(t.TempDir(), discardLogger())
	for i := 0; i < 2; i++ {
		require.NoError(t, r.Execute(context.Background(), "test-release", func(ctx context.Context) error { return nil }))
	}
}

func TestRunner_Results(t *testing.T) {
	r := NewRunner(t.TempDir(), discardLogger())

	err := r.Execute(context.Background(), "test-results", func(ctx context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationRuns.WithLabelValues("test-results", metrics.ResultCancelled)))

	boom := errors.New("boom")
	err = r.Execute(context.Background(), "test-results", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationRuns.WithLabelValues("test-results", metrics.ResultError)))
}

func TestReport(t *testing.T) {
	fn := Report(func(ctx context.Context) (lifecycle.Report, error) {
		return lifecycle.Report{Operation: "test-report", Acted: 2, Skipped: 5, Failed: 1}, nil
	})
	require.NoError(t, fn(context.Background()))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.OperationItems.WithLabelValues("test-report", "acted")))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.OperationItems.WithLabelValues("test-report", "skipped")))

	fns := Reports(func(ctx context.Context) ([]lifecycle.Report, error) {
		return []lifecycle.Report{{Operation: "test-reports-a", Acted: 1}, {Operation: "test-reports-b", Failed: 3}}, context.Canceled
	})
	assert.ErrorIs(t, fns(context.Background()), context.Canceled)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.OperationItems.WithLabelValues("test-reports-b", "failed")))
}

func TestScheduler_NextRun(t *testing.T) {
	s, err := New(Config{Location: "UTC", LockDir: t.TempDir()}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Add("ilm", "0 1 * * *", func(ctx context.Context) error { return nil }))

	after := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC), s.NextRun("ilm", after))
	assert.True(t, s.NextRun("unknown", after).IsZero())
}

func TestScheduler_Errors(t *testing.T) {
	_, err := New(Config{Location: "Mars/Olympus"}, discardLogger())
	assert.Error(t, err)

	s, err := New(Config{Location: "UTC", LockDir: t.TempDir()}, discardLogger())
	require.NoError(t, err)
	assert.Error(t, s.Add("bad", "every day", func(ctx context.Context) error { return nil }))
}

func TestScheduler_RunsUntilCancelled(t *testing.T) {
	s, err := New(Config{Location: "UTC", LockDir: t.TempDir()}, discardLogger())
	require.NoError(t, err)

	var runs atomic.Int32
	var sawRunID atomic.Bool
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		sawRunID.Store(events.RunID(ctx) != "")
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	assert.True(t, sawRunID.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.ILM = "61 * * * *"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Location = "Nowhere/City"
	assert.Error(t, cfg.Validate())

	t.Setenv("SCHEDULE_ROLLOVER", "@hourly")
	cfg = DefaultConfig()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "@hourly", cfg.Rollover)
	assert.NoError(t, cfg.Validate())
}
