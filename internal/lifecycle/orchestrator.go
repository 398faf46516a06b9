// Package lifecycle moves aging indices from hot storage to searchable snapshots,
// enforces retention and keeps the cold tier restorable.
//
// Every operation processes items one at a time. A failure on one index or
// snapshot is logged and counted; it never aborts the remaining items. The only
// error an operation returns is the cancellation of its context.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/syntrixbase/coldtier/internal/cluster"
	"github.com/syntrixbase/coldtier/internal/events"
)

// Cluster is the part of the cluster admin API the lifecycle depends on.
type Cluster interface {
	ListIndices(ctx context.Context) ([]cluster.IndexInfo, error)
	ListIndicesByPattern(ctx context.Context, pattern string) ([]cluster.IndexInfo, error)
	IndexSettings(ctx context.Context, index string) (cluster.IndexSettings, error)
	IndexAliases(ctx context.Context, index string) (map[string]cluster.AliasConfig, error)
	IndexExists(ctx context.Context, index string) (bool, error)
	DeleteIndex(ctx context.Context, index string) error
	CreateIndexWithWriteAlias(ctx context.Context, index, alias string) error
	AddWriteAlias(ctx context.Context, index, alias string) error

	CreateSnapshot(ctx context.Context, name string, indices []string) error
	SnapshotStatus(ctx context.Context, name string) (cluster.SnapshotState, error)
	SnapshotDetail(ctx context.Context, name string) (cluster.SnapshotInfo, error)
	MountSearchable(ctx context.Context, snapshot string, req cluster.MountRequest) error
	DeleteSnapshot(ctx context.Context, name string) error
	ListSnapshots(ctx context.Context) ([]cluster.SnapshotEntry, error)
	EnsureRepository(ctx context.Context) (bool, error)

	WriteAliases(ctx context.Context, suffix string) ([]string, error)
	WriteIndex(ctx context.Context, alias string) (string, error)
	Rollover(ctx context.Context, alias string, conditions cluster.RolloverConditions) (cluster.RolloverResult, error)
}

// Operation names.
const (
	OpTransition       = "transition"
	OpCleanup          = "cleanup"
	OpRestore          = "restore"
	OpRollover         = "rollover"
	OpRemoveSearchable = "remove-searchable-snapshots"
	OpILM              = "ilm"
)

// eventEmitTimeout bounds a single sink write.
const eventEmitTimeout = 5 * time.Second

// Report summarizes one operation run.
type Report struct {
	Operation string
	// Examined counts items the operation looked at after static filtering.
	Examined int
	// Acted counts items the operation changed on the cluster.
	Acted    int
	Skipped  int
	Failed   int
	Started  time.Time
	Finished time.Time
}

// Orchestrator runs the lifecycle operations against one cluster.
type Orchestrator struct {
	cfg    Config
	client Cluster
	clock  Clock
	sink   events.Sink
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithSink sends lifecycle events to s.
func WithSink(s events.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// New validates cfg and creates an Orchestrator. An invalid cfg yields a
// *ConfigurationError before anything touches the cluster.
func New(cfg Config, client Cluster, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:    cfg,
		client: client,
		clock:  SystemClock(),
		sink:   events.Nop{},
		logger: logger.With("component", "lifecycle"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger.Info("Lifecycle configuration validated",
		"hot_storage_days", cfg.HotStorageDays,
		"total_retention_days", cfg.TotalRetentionDays,
		"rollover_size_gb", cfg.RolloverSizeGB,
		"rollover_age_days", cfg.RolloverAgeDays,
		"patterns", cfg.ManagedIndexPatterns)
	return o, nil
}

// Config returns the validated policy.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// RunILM runs transition, cleanup and restore in that order.
func (o *Orchestrator) RunILM(ctx context.Context) ([]Report, error) {
	steps := []func(context.Context) (Report, error){
		o.TransitionOldIndicesToSnapshots,
		o.CleanupOldData,
		o.RestoreMissingSearchableSnapshots,
	}
	reports := make([]Report, 0, len(steps))
	for _, step := range steps {
		r, err := step(ctx)
		reports = append(reports, r)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// RemoveSearchableSnapshots deletes every managed searchable mount regardless of age.
func (o *Orchestrator) RemoveSearchableSnapshots(ctx context.Context) (report Report, err error) {
	report = o.startReport(OpRemoveSearchable)
	defer o.finishReport(&report)
	o.logger.Warn("Removing all searchable snapshot indices")

	indices, err := o.ListManagedIndices(ctx)
	if err != nil {
		o.logger.Error("Failed to list managed indices", "error", err)
		report.Failed++
		return report, ctx.Err()
	}
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++
		if !o.IsSearchableSnapshot(ctx, idx.Index) {
			report.Skipped++
			continue
		}
		o.logger.Warn("Removing searchable snapshot", "index", idx.Index)
		if err := o.deleteIndex(ctx, OpRemoveSearchable, idx.Index); err != nil {
			report.Failed++
			continue
		}
		report.Acted++
	}
	return report, ctx.Err()
}

// ListManagedIndices lists the indices matching any managed pattern, once each.
// A pattern that fails to list is logged and contributes nothing.
func (o *Orchestrator) ListManagedIndices(ctx context.Context) ([]cluster.IndexInfo, error) {
	seen := make(map[string]struct{})
	var out []cluster.IndexInfo
	var errs []error
	for _, pattern := range o.cfg.ManagedIndexPatterns {
		indices, err := o.client.ListIndicesByPattern(ctx, pattern+"*")
		if err != nil {
			o.logger.Error("Failed to list indices for pattern", "pattern", pattern+"*", "error", err)
			errs = append(errs, err)
			continue
		}
		for _, idx := range indices {
			if _, ok := seen[idx.Index]; ok {
				continue
			}
			seen[idx.Index] = struct{}{}
			out = append(out, idx)
		}
	}
	if len(errs) == len(o.cfg.ManagedIndexPatterns) {
		return nil, errors.Join(errs...)
	}
	o.logger.Debug("Retrieved managed indices", "count", len(out))
	return out, nil
}

// EnsureRepository registers the snapshot repository when it is missing.
func (o *Orchestrator) EnsureRepository(ctx context.Context) error {
	created, err := o.client.EnsureRepository(ctx)
	if err != nil {
		return err
	}
	if created {
		o.logger.Info("Registered snapshot repository")
	}
	return nil
}

// Bootstrap makes index the write index of alias, creating index when absent.
func (o *Orchestrator) Bootstrap(ctx context.Context, index, alias string) error {
	exists, err := o.client.IndexExists(ctx, index)
	if err != nil {
		return err
	}
	if exists {
		if err := o.client.AddWriteAlias(ctx, index, alias); err != nil {
			return err
		}
		o.logger.Info("Added write alias", "index", index, "alias", alias)
		return nil
	}
	if err := o.client.CreateIndexWithWriteAlias(ctx, index, alias); err != nil {
		return err
	}
	o.logger.Info("Created index with write alias", "index", index, "alias", alias)
	return nil
}

func (o *Orchestrator) startReport(op string) Report {
	return Report{Operation: op, Started: o.clock.Now()}
}

// finishReport is deferred by operations with a named report result, so the
// caller sees Finished.
func (o *Orchestrator) finishReport(r *Report) {
	r.Finished = o.clock.Now()
	o.logger.Info("Operation finished",
		"operation", r.Operation,
		"examined", r.Examined,
		"acted", r.Acted,
		"skipped", r.Skipped,
		"failed", r.Failed,
		"duration", r.Finished.Sub(r.Started))
}

// emit delivers e even when ctx is already cancelled, but never waits on a
// sink longer than eventEmitTimeout.
func (o *Orchestrator) emit(ctx context.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventEmitTimeout)
	defer cancel()
	if err := o.sink.Emit(ctx, e); err != nil {
		o.logger.Warn("Failed to emit lifecycle event", "kind", e.Kind, "error", err)
	}
}

func (o *Orchestrator) event(ctx context.Context, kind events.Kind, op string) events.Event {
	e := events.New(ctx, kind, o.clock.Now())
	e.Operation = op
	return e
}

// deleteIndex deletes index, treating an already missing index as success.
func (o *Orchestrator) deleteIndex(ctx context.Context, op, index string) error {
	err := o.client.DeleteIndex(ctx, index)
	if errors.Is(err, cluster.ErrNotFound) {
		o.logger.Debug("Index already deleted or does not exist", "index", index)
		return nil
	}
	if err != nil {
		o.logger.Error("Failed to delete index", "index", index, "error", err)
		return err
	}
	o.logger.Info("Deleted index", "index", index)
	e := o.event(ctx, events.KindIndexDeleted, op)
	e.Index = index
	o.emit(ctx, e)
	return nil
}

// deleteSnapshot deletes snapshot, treating an already missing snapshot as success.
func (o *Orchestrator) deleteSnapshot(ctx context.Context, op, name string) error {
	err := o.client.DeleteSnapshot(ctx, name)
	if errors.Is(err, cluster.ErrNotFound) {
		o.logger.Debug("Snapshot already deleted or does not exist", "snapshot", name)
		return nil
	}
	if err != nil {
		o.logger.Error("Failed to delete snapshot", "snapshot", name, "error", err)
		return err
	}
	o.logger.Info("Deleted snapshot", "snapshot", name)
	e := o.event(ctx, events.KindSnapshotDeleted, op)
	e.Snapshot = name
	o.emit(ctx, e)
	return nil
}
