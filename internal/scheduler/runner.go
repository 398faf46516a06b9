package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/syntrixbase/coldtier/internal/events"
	"github.com/syntrixbase/coldtier/internal/lifecycle"
	"github.com/syntrixbase/coldtier/internal/metrics"
)

// ErrLocked is returned when another run of the same job holds its lock.
var ErrLocked = errors.New("job is already running")

// RunFunc is the body of a job.
type RunFunc func(ctx context.Context) error

// Runner executes jobs one at a time per job name, across processes.
type Runner struct {
	lockDir string
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner creates a Runner keeping its lock files in lockDir.
func NewRunner(lockDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{lockDir: lockDir, logger: logger.With("component", "runner"), now: time.Now}
}

// Execute runs fn under the lock of job name with a fresh run id in ctx,
// and records the outcome in the operation metrics.
func (r *Runner) Execute(ctx context.Context, name string, fn RunFunc) error {
	runID := uuid.NewString()
	ctx = events.WithRunID(ctx, runID)
	logger := r.logger.With("job", name, "run_id", runID)

	unlock, err := r.lock(name)
	if err != nil {
		now := r.now()
		metrics.ObserveRun(name, metrics.ResultSkipped, now, now)
		if errors.Is(err, ErrLocked) {
			logger.Warn("Previous run still in progress, skipping")
		} else {
			logger.Error("Failed to acquire job lock", "error", err)
		}
		return err
	}
	defer unlock()

	logger.Info("Job started")
	started := r.now()
	err = fn(ctx)
	finished := r.now()

	result := metrics.ResultOK
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result = metrics.ResultCancelled
		logger.Warn("Job cancelled", "duration", finished.Sub(started))
	case err != nil:
		result = metrics.ResultError
		logger.Error("Job failed", "duration", finished.Sub(started), "error", err)
	default:
		logger.Info("Job finished", "duration", finished.Sub(started))
	}
	metrics.ObserveRun(name, result, started, finished)
	return err
}

func (r *Runner) lock(name string) (func(), error) {
	if err := os.MkdirAll(r.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create lock dir: %w", err)
	}
	l := flock.New(filepath.Join(r.lockDir, name+".lock"))
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cannot acquire lock for %s: %w", name, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock: %s)", ErrLocked, l.Path())
	}
	return func() { _ = l.Unlock() }, nil
}

// Report adapts a lifecycle operation to a RunFunc, recording its item counts.
func Report(op func(ctx context.Context) (lifecycle.Report, error)) RunFunc {
	return func(ctx context.Context) error {
		r, err := op(ctx)
		metrics.ObserveItems(r.Operation, r.Acted, r.Skipped, r.Failed)
		return err
	}
}

// Reports is Report for operations that run several steps.
func Reports(op func(ctx context.Context) ([]lifecycle.Report, error)) RunFunc {
	return func(ctx context.Context) error {
		reports, err := op(ctx)
		for _, r := range reports {
			metrics.ObserveItems(r.Operation, r.Acted, r.Skipped, r.Failed)
		}
		return err
	}
}
