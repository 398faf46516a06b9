// Package scheduler runs lifecycle jobs on a cron schedule. A job never
// overlaps with itself: cron skips a tick while the previous run is active,
// and a lock file guards against other processes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers registered jobs at their cron times.
type Scheduler struct {
	runner    *Runner
	logger    *slog.Logger
	location  *time.Location
	cron      *cron.Cron
	schedules map[string]cron.Schedule

	mu  sync.Mutex
	ctx context.Context
}

// New creates a Scheduler evaluating specs in cfg.Location.
func New(cfg Config, logger *slog.Logger) (*Scheduler, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule location %q: %w", cfg.Location, err)
	}
	cl := cronLogger{logger}
	return &Scheduler{
		runner:   NewRunner(cfg.LockDir, logger),
		logger:   logger,
		location: loc,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		schedules: make(map[string]cron.Schedule),
		ctx:       context.Background(),
	}, nil
}

// Add registers job name to run fn at spec, a standard five-field cron
// expression or a descriptor such as @hourly.
func (s *Scheduler) Add(name, spec string, fn RunFunc) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.cron.Schedule(sched, cron.FuncJob(func() {
		_ = s.runner.Execute(s.runContext(), name, fn)
	}))
	s.schedules[name] = sched
	s.logger.Info("Job scheduled", "job", name, "spec", spec)
	return nil
}

// NextRun returns the first run of job name after t, or the zero time for an unknown job.
func (s *Scheduler) NextRun(name string, t time.Time) time.Time {
	sched, ok := s.schedules[name]
	if !ok {
		return time.Time{}
	}
	return sched.Next(t.In(s.location))
}

// Start runs the schedule until ctx is cancelled, then waits for running jobs.
// Jobs receive ctx, so a shutdown cancels them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	now := time.Now()
	for name := range s.schedules {
		s.logger.Info("Next run", "job", name, "at", s.NextRun(name, now))
	}
	s.cron.Start()
	<-ctx.Done()

	s.logger.Info("Stopping scheduler, waiting for running jobs")
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
