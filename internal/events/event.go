// Package events describes what the lifecycle did to the cluster and fans those
// records out to observers (metrics, message bus, audit store).
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/syntrixbase/coldtier/internal/ctxkeys"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	KindSnapshotCreated     Kind = "snapshot_created"
	KindSearchableMounted   Kind = "searchable_mounted"
	KindIndexDeleted        Kind = "index_deleted"
	KindSnapshotDeleted     Kind = "snapshot_deleted"
	KindTransitionCompleted Kind = "transition_completed"
	KindTransitionPreserved Kind = "transition_preserved"
	KindRestoreMounted      Kind = "restore_mounted"
	KindRolledOver          Kind = "rolled_over"
	KindIntegrityWarning    Kind = "integrity_warning"
)

// Event is a single lifecycle fact.
type Event struct {
	ID        string            `json:"id" bson:"_id"`
	RunID     string            `json:"run_id,omitempty" bson:"run_id,omitempty"`
	Kind      Kind              `json:"kind" bson:"kind"`
	Operation string            `json:"operation,omitempty" bson:"operation,omitempty"`
	Index     string            `json:"index,omitempty" bson:"index,omitempty"`
	Snapshot  string            `json:"snapshot,omitempty" bson:"snapshot,omitempty"`
	AgeDays   float64           `json:"age_days,omitempty" bson:"age_days,omitempty"`
	Reason    string            `json:"reason,omitempty" bson:"reason,omitempty"`
	Details   map[string]string `json:"details,omitempty" bson:"details,omitempty"`
	Time      time.Time         `json:"time" bson:"time"`
}

// New stamps an event with an id, the run id carried by ctx and the given time.
func New(ctx context.Context, kind Kind, now time.Time) Event {
	return Event{
		ID:    uuid.NewString(),
		RunID: RunID(ctx),
		Kind:  kind,
		Time:  now.UTC(),
	}
}

// Sink receives lifecycle events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

// Multi fans an event out to every sink. All sinks are called; errors are joined.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithRunID returns a context carrying the id of the current operation run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxkeys.KeyRunID, runID)
}

// RunID returns the run id carried by ctx, or "".
func RunID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxkeys.KeyRunID).(string); ok {
		return v
	}
	return ""
}
