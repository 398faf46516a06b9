package lifecycle

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/syntrixbase/coldtier/internal/cluster"
	"github.com/syntrixbase/coldtier/internal/events"
)

// UnknownAge is returned when no usable timestamp exists for a snapshot.
const UnknownAge = -1.0

const day = 24 * time.Hour

// IndexAgeDays returns the age of index from its engine-reported creation date.
// A future creation date yields 0 with a warning; an unreadable one yields 0.
func (o *Orchestrator) IndexAgeDays(ctx context.Context, index string) float64 {
	settings, err := o.client.IndexSettings(ctx, index)
	if err != nil {
		o.logger.Error("Failed to read index settings", "index", index, "error", err)
		return 0
	}
	createdMs, err := strconv.ParseInt(strings.TrimSpace(settings.CreationDate), 10, 64)
	if err != nil || createdMs <= 0 {
		o.logger.Error("Index has no usable creation date", "index", index, "creation_date", settings.CreationDate)
		return 0
	}
	age := float64(o.clock.Now().Sub(time.UnixMilli(createdMs))) / float64(day)
	if age < 0 {
		o.logger.Warn("Index creation date is in the future, treating age as 0",
			"index", index, "creation_date", settings.CreationDate)
		return 0
	}
	return age
}

// SnapshotAgeDays returns the age of a catalog entry, trying in order the end
// epoch, the start epoch, and the end then start time of the snapshot detail.
// When none is usable it returns UnknownAge, never an age computed from zero.
func (o *Orchestrator) SnapshotAgeDays(ctx context.Context, snap cluster.SnapshotEntry) float64 {
	epoch := parseEpoch(snap.EndEpoch)
	if epoch == 0 {
		epoch = parseEpoch(snap.StartEpoch)
	}
	if epoch == 0 {
		info, err := o.client.SnapshotDetail(ctx, snap.ID)
		if err != nil {
			o.logger.Debug("Snapshot detail unavailable for age", "snapshot", snap.ID, "error", err)
		} else if info.EndTimeMillis > 0 {
			epoch = info.EndTimeMillis / 1000
		} else if info.StartTimeMillis > 0 {
			epoch = info.StartTimeMillis / 1000
		}
	}
	if epoch == 0 {
		return UnknownAge
	}
	age := float64(o.clock.Now().Sub(time.Unix(epoch, 0))) / float64(day)
	if age < 0 {
		o.logger.Warn("Snapshot timestamp is in the future, treating age as 0", "snapshot", snap.ID, "epoch", epoch)
		return 0
	}
	return age
}

func parseEpoch(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// IsWriteIndex reports whether index is the write index of any of its aliases.
// Lookup failures report false.
func (o *Orchestrator) IsWriteIndex(ctx context.Context, index string) bool {
	ok, err := o.writeIndex(ctx, index)
	if err != nil {
		o.logger.Debug("Failed to read index aliases", "index", index, "error", err)
		return false
	}
	return ok
}

func (o *Orchestrator) writeIndex(ctx context.Context, index string) (bool, error) {
	aliases, err := o.client.IndexAliases(ctx, index)
	if err != nil {
		return false, err
	}
	for _, a := range aliases {
		if a.IsWriteIndex {
			return true, nil
		}
	}
	return false, nil
}

// mayMutate is the dynamic half of eligibility: a write index is never touched,
// and neither is an index whose alias state cannot be read.
func (o *Orchestrator) mayMutate(ctx context.Context, index string) bool {
	isWrite, err := o.writeIndex(ctx, index)
	if err != nil {
		o.logger.Error("Failed to read index aliases, leaving index untouched", "index", index, "error", err)
		return false
	}
	if isWrite {
		o.logger.Debug("Skipping write index", "index", index)
		return false
	}
	return true
}

// IsSearchableSnapshot reports whether index is mounted from a snapshot.
// Lookup failures report false.
func (o *Orchestrator) IsSearchableSnapshot(ctx context.Context, index string) bool {
	settings, err := o.client.IndexSettings(ctx, index)
	if err != nil {
		o.logger.Debug("Failed to read index settings", "index", index, "error", err)
		return false
	}
	return settings.StoreType == cluster.StoreTypeRemoteSnapshot
}

// IsReadyForSnapshot reports whether index may leave hot storage: it must not be
// a write index or a searchable mount, and must be at least HotStorageDays old.
func (o *Orchestrator) IsReadyForSnapshot(ctx context.Context, index string) bool {
	if !o.mayMutate(ctx, index) {
		return false
	}
	if o.IsSearchableSnapshot(ctx, index) {
		return false
	}
	return o.IndexAgeDays(ctx, index) >= float64(o.cfg.HotStorageDays)
}

// pastRetention decides whether an item of the given age may be deleted.
// Unknown and implausible ages are never deleted; the latter raise an integrity warning.
func (o *Orchestrator) pastRetention(ctx context.Context, op, kind, name string, age float64) bool {
	if age < 0 {
		o.logger.Debug("Age unknown, skipping age-based deletion", kind, name)
		return false
	}
	if age >= o.cfg.ImplausibleAgeDays {
		o.logger.Warn("Computed age is implausible, likely a missing or zero epoch; verify state and timestamps",
			kind, name, "age_days", age)
		e := o.event(ctx, events.KindIntegrityWarning, op)
		if kind == "snapshot" {
			e.Snapshot = name
		} else {
			e.Index = name
		}
		e.AgeDays = age
		e.Reason = "implausible age"
		o.emit(ctx, e)
		return false
	}
	return age >= float64(o.cfg.TotalRetentionDays)
}
