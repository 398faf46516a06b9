package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/syntrixbase/coldtier/internal/cluster"
	"github.com/syntrixbase/coldtier/internal/events"
)

var (
	ErrSnapshotFailed    = errors.New("snapshot failed")
	ErrSnapshotTimeout   = errors.New("timed out waiting for snapshot")
	ErrSnapshotUnhealthy = errors.New("snapshot is not restorable")
	ErrMountFailed       = errors.New("searchable mount failed")
	ErrIllegalTransition = errors.New("illegal transition")
)

// State is a step of the per-index transition to the cold tier.
type State int

const (
	StateStart State = iota
	StateSnapshotCreate
	StateSnapshotValidate
	StateSearchableMount
	StateOriginalDelete
	StateCleanup
	// StateMigrated: original deleted, valid searchable mount present.
	StateMigrated
	// StatePreserved: retries exhausted, original intact, no artifacts left.
	StatePreserved
)

var stateNames = map[State]string{
	StateStart:            "START",
	StateSnapshotCreate:   "SNAPSHOT_CREATE_OR_REUSE",
	StateSnapshotValidate: "SNAPSHOT_VALIDATE",
	StateSearchableMount:  "SEARCHABLE_MOUNT",
	StateOriginalDelete:   "ORIGINAL_DELETE",
	StateCleanup:          "CLEANUP",
	StateMigrated:         "MIGRATED",
	StatePreserved:        "PRESERVED_FAILURE",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateMigrated || s == StatePreserved
}

// The original index can only be deleted after the mount, and the mount only
// happens after validation.
var nextStates = map[State][]State{
	StateStart:            {StateSnapshotCreate},
	StateSnapshotCreate:   {StateSnapshotValidate, StateCleanup},
	StateSnapshotValidate: {StateSearchableMount, StateCleanup},
	StateSearchableMount:  {StateOriginalDelete, StateCleanup},
	StateOriginalDelete:   {StateMigrated, StateCleanup},
	StateCleanup:          {StateSnapshotCreate, StatePreserved},
}

func (s State) canEnter(next State) bool {
	for _, n := range nextStates[s] {
		if n == next {
			return true
		}
	}
	return false
}

// TransitionResult is the terminal outcome of one index transition.
type TransitionResult struct {
	Index    string
	State    State
	Attempts int
	// Err is the failure of the last attempt; nil once migrated.
	Err error
	// CleanupErr is set when artifacts of a failed attempt could not be removed.
	CleanupErr error
}

type transition struct {
	o          *Orchestrator
	index      string
	snapshot   string
	searchable string
	state      State
	logger     *slog.Logger
}

func (t *transition) enter(next State) error {
	if !t.state.canEnter(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.state, next)
	}
	t.logger.Debug("Transition state", "from", t.state, "to", next)
	t.state = next
	return nil
}

// TransitionIndex snapshots index, mounts the snapshot as a searchable index and
// deletes the original. Failed attempts are cleaned up and retried with
// exponential backoff; when retries run out the original is left untouched.
func (o *Orchestrator) TransitionIndex(ctx context.Context, index string) TransitionResult {
	t := &transition{
		o:          o,
		index:      index,
		snapshot:   index,
		searchable: o.cfg.SearchableName(index),
		state:      StateStart,
		logger:     o.logger.With("index", index),
	}
	res := TransitionResult{Index: index}
	t.logger.Info("Starting snapshot and replace")

	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		res.Attempts = attempt
		t.logger.Info("Transition attempt", "attempt", attempt, "max_retries", o.cfg.MaxRetries)

		err := t.run(ctx)
		if err == nil {
			res.State = t.state
			res.Err = nil
			t.logger.Info("Snapshot and replace completed", "attempts", attempt)
			e := o.event(ctx, events.KindTransitionCompleted, OpTransition)
			e.Index = index
			e.Snapshot = t.snapshot
			o.emit(ctx, e)
			return res
		}

		res.Err = err
		t.logger.Warn("Transition attempt failed", "attempt", attempt, "max_retries", o.cfg.MaxRetries, "state", t.state, "error", err)
		if err := t.enter(StateCleanup); err != nil {
			t.logger.Error("Unexpected transition state", "error", err)
		}
		res.CleanupErr = t.cleanup(ctx)

		if attempt == o.cfg.MaxRetries || ctx.Err() != nil {
			break
		}
		delay := o.retryDelay(attempt)
		t.logger.Info("Waiting before retry", "delay", delay, "next_attempt", attempt+1)
		if err := o.clock.Sleep(ctx, delay); err != nil {
			res.Err = err
			break
		}
	}

	if err := t.enter(StatePreserved); err != nil {
		t.logger.Error("Unexpected transition state", "error", err)
	}
	res.State = StatePreserved
	t.logger.Error("Failed to complete snapshot and replace, preserving original index",
		"attempts", res.Attempts, "error", res.Err)
	t.logger.Error("Manual investigation required: check cluster health, storage capacity and shard allocation")
	if res.CleanupErr != nil {
		t.logger.Error("Artifacts of the failed transition may remain",
			"snapshot", t.snapshot, "searchable", t.searchable, "error", res.CleanupErr)
	}

	e := o.event(ctx, events.KindTransitionPreserved, OpTransition)
	e.Index = index
	e.Snapshot = t.snapshot
	if res.Err != nil {
		e.Reason = res.Err.Error()
	}
	o.emit(ctx, e)
	return res
}

// retryDelay is the wait after the given failed attempt: backoff, 2x, 4x, ...
func (o *Orchestrator) retryDelay(attempt int) time.Duration {
	return o.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
}

// run is one attempt, from snapshot creation to the deletion of the original.
func (t *transition) run(ctx context.Context) error {
	if err := t.enter(StateSnapshotCreate); err != nil {
		return err
	}
	if err := t.createSnapshot(ctx); err != nil {
		return err
	}

	if err := t.enter(StateSnapshotValidate); err != nil {
		return err
	}
	if err := t.validateSnapshot(ctx); err != nil {
		return err
	}

	if err := t.enter(StateSearchableMount); err != nil {
		return err
	}
	if err := t.mountSearchable(ctx); err != nil {
		return err
	}

	if err := t.enter(StateOriginalDelete); err != nil {
		return err
	}
	if err := t.deleteOriginal(ctx); err != nil {
		return err
	}
	return t.enter(StateMigrated)
}

func (t *transition) createSnapshot(ctx context.Context) error {
	err := t.o.client.CreateSnapshot(ctx, t.snapshot, []string{t.index})
	reused := false
	switch {
	case errors.Is(err, cluster.ErrSnapshotExists):
		t.logger.Info("Snapshot already exists, checking status", "snapshot", t.snapshot)
		reused = true
	case err != nil:
		return fmt.Errorf("failed to create snapshot %s: %w", t.snapshot, err)
	default:
		t.logger.Info("Snapshot creation initiated", "snapshot", t.snapshot)
	}

	if err := t.o.waitForSnapshot(ctx, t.snapshot); err != nil {
		return err
	}
	if !reused {
		e := t.o.event(ctx, events.KindSnapshotCreated, OpTransition)
		e.Index = t.index
		e.Snapshot = t.snapshot
		t.o.emit(ctx, e)
	}
	return nil
}

func (t *transition) validateSnapshot(ctx context.Context) error {
	info, err := t.o.client.SnapshotDetail(ctx, t.snapshot)
	if err != nil {
		return fmt.Errorf("failed to read snapshot %s: %w", t.snapshot, err)
	}

	switch info.State {
	case cluster.SnapshotSuccess:
		if len(info.Failures) > 0 {
			t.logger.Warn("Snapshot has SUCCESS state but contains failures",
				"snapshot", t.snapshot, "failures", info.Failures)
			t.integrityWarning(ctx, "success with shard failures", info)
		}
		return nil
	case cluster.SnapshotPartial:
		t.logger.Warn("Snapshot is PARTIAL, some shards failed but it is restorable",
			"snapshot", t.snapshot,
			"successful", info.Shards.Successful,
			"total", info.Shards.Total,
			"failed", info.Shards.Failed,
			"failures", info.Failures)
		t.integrityWarning(ctx, "partial snapshot", info)
		return nil
	default:
		t.logger.Error("Snapshot is not restorable",
			"snapshot", t.snapshot,
			"state", info.State,
			"successful", info.Shards.Successful,
			"total", info.Shards.Total,
			"failed", info.Shards.Failed,
			"failures", info.Failures)
		return fmt.Errorf("%w: %s is %s", ErrSnapshotUnhealthy, t.snapshot, info.State)
	}
}

func (t *transition) integrityWarning(ctx context.Context, reason string, info cluster.SnapshotInfo) {
	e := t.o.event(ctx, events.KindIntegrityWarning, OpTransition)
	e.Index = t.index
	e.Snapshot = t.snapshot
	e.Reason = reason
	e.Details = map[string]string{
		"state":    string(info.State),
		"shards":   fmt.Sprintf("%d/%d", info.Shards.Successful, info.Shards.Total),
		"failed":   strconv.Itoa(info.Shards.Failed),
		"failures": strconv.Itoa(len(info.Failures)),
	}
	t.o.emit(ctx, e)
}

func (t *transition) mountSearchable(ctx context.Context) error {
	exists, err := t.o.client.IndexExists(ctx, t.searchable)
	if err != nil {
		return fmt.Errorf("failed to check searchable index %s: %w", t.searchable, err)
	}
	if exists {
		if t.o.IsSearchableSnapshot(ctx, t.searchable) {
			t.logger.Info("Searchable snapshot already exists", "searchable", t.searchable)
			return nil
		}
		t.logger.Warn("Index exists but is not a searchable snapshot, removing it", "searchable", t.searchable)
		if err := t.o.deleteIndex(ctx, OpTransition, t.searchable); err != nil {
			return fmt.Errorf("failed to remove %s: %w", t.searchable, err)
		}
	}

	req := cluster.MountRequest{Index: t.index, RenameTo: t.searchable, Replicas: 0}
	if err := t.o.client.MountSearchable(ctx, t.snapshot, req); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMountFailed, t.searchable, err)
	}
	if !t.o.IsSearchableSnapshot(ctx, t.searchable) {
		return fmt.Errorf("%w: %s is not a %s index after mount", ErrMountFailed, t.searchable, cluster.StoreTypeRemoteSnapshot)
	}
	t.logger.Info("Mounted snapshot as searchable index", "searchable", t.searchable)

	e := t.o.event(ctx, events.KindSearchableMounted, OpTransition)
	e.Index = t.searchable
	e.Snapshot = t.snapshot
	t.o.emit(ctx, e)
	return nil
}

func (t *transition) deleteOriginal(ctx context.Context) error {
	err := t.o.deleteIndex(ctx, OpTransition, t.index)
	if err == nil {
		return nil
	}
	// The delete may have been applied even though the call failed.
	exists, existsErr := t.o.client.IndexExists(ctx, t.index)
	if existsErr == nil && !exists {
		t.logger.Info("Original index is gone despite delete error", "error", err)
		return nil
	}
	return fmt.Errorf("failed to delete original index: %w", err)
}

// cleanup removes the artifacts of a failed attempt: the searchable mount
// first, then the snapshot, since a mounted snapshot cannot be deleted.
// Artifacts are only removed while the original is known to exist.
func (t *transition) cleanup(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	t.logger.Info("Cleaning up failed snapshot artifacts")

	exists, err := t.o.client.IndexExists(ctx, t.index)
	if err != nil {
		return fmt.Errorf("cannot verify original index, leaving artifacts in place: %w", err)
	}
	if !exists {
		return fmt.Errorf("original index %s is gone, leaving %s and %s in place", t.index, t.searchable, t.snapshot)
	}

	mounted, err := t.o.client.IndexExists(ctx, t.searchable)
	if err != nil {
		return fmt.Errorf("failed to check searchable index %s: %w", t.searchable, err)
	}
	if mounted {
		t.logger.Info("Removing searchable snapshot index", "searchable", t.searchable)
		if err := t.o.deleteIndex(ctx, OpTransition, t.searchable); err != nil {
			return fmt.Errorf("failed to remove %s, keeping snapshot %s: %w", t.searchable, t.snapshot, err)
		}
	} else {
		t.logger.Debug("Searchable index does not exist", "searchable", t.searchable)
	}

	_, err = t.o.client.SnapshotDetail(ctx, t.snapshot)
	switch {
	case errors.Is(err, cluster.ErrNotFound):
		t.logger.Debug("Snapshot does not exist", "snapshot", t.snapshot)
		return nil
	case err != nil:
		return fmt.Errorf("failed to check snapshot %s: %w", t.snapshot, err)
	}
	return t.o.deleteSnapshot(ctx, OpTransition, t.snapshot)
}

// TransitionOldIndicesToSnapshots moves every managed index past hot storage to
// the cold tier. Nothing happens when no cold tier exists.
func (o *Orchestrator) TransitionOldIndicesToSnapshots(ctx context.Context) (report Report, err error) {
	report = o.startReport(OpTransition)
	defer o.finishReport(&report)

	if o.cfg.HotStorageDays >= o.cfg.TotalRetentionDays {
		o.logger.Info("Hot storage period equals total retention, skipping snapshot phase")
		return report, nil
	}
	o.logger.Info("Moving indices older than hot storage period to snapshots", "hot_storage_days", o.cfg.HotStorageDays)

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
		if !o.cfg.ShouldManageIndex(idx.Index) {
			continue
		}
		report.Examined++
		if !o.IsReadyForSnapshot(ctx, idx.Index) {
			report.Skipped++
			continue
		}
		o.logger.Info("Processing index for snapshot", "index", idx.Index)
		if res := o.TransitionIndex(ctx, idx.Index); res.State == StateMigrated {
			report.Acted++
		} else {
			report.Failed++
		}
	}
	return report, ctx.Err()
}
