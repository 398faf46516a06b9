package lifecycle

import (
	"context"
	"fmt"

	"github.com/syntrixbase/coldtier/internal/cluster"
)

// CleanupOldData deletes what is past TotalRetentionDays in three ordered phases:
// searchable mounts, then regular indices with their snapshots, then the
// remaining snapshots. Mounts go first so they never block a snapshot deletion
// later in the same sweep.
func (o *Orchestrator) CleanupOldData(ctx context.Context) (report Report, err error) {
	report = o.startReport(OpCleanup)
	defer o.finishReport(&report)
	o.logger.Info("Cleaning up data past retention", "total_retention_days", o.cfg.TotalRetentionDays)

	indices, err := o.client.ListIndices(ctx)
	if err != nil {
		o.logger.Error("Failed to fetch indices", "error", err)
		report.Failed++
	}
	snapshots, err := o.client.ListSnapshots(ctx)
	if err != nil {
		o.logger.Error("Failed to fetch snapshots", "error", err)
		report.Failed++
	}
	byID := make(map[string]cluster.SnapshotEntry, len(snapshots))
	for _, s := range snapshots {
		byID[s.ID] = s
	}

	o.logger.Info("Phase 1: checking searchable snapshot indices")
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := idx.Index
		if !o.cfg.IsSearchableName(name) || !o.cfg.ShouldManageIndex(o.cfg.CorrespondingSnapshotName(name)) {
			continue
		}
		report.Examined++
		age := o.searchableAgeDays(ctx, name, byID)
		if !o.pastRetention(ctx, OpCleanup, "index", name, age) {
			report.Skipped++
			continue
		}
		o.logger.Info("Deleting old searchable snapshot index", "index", name, "age_days", age)
		if err := o.deleteIndex(ctx, OpCleanup, name); err != nil {
			report.Failed++
			continue
		}
		report.Acted++
	}

	o.logger.Info("Phase 2: checking regular indices")
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := idx.Index
		if !o.cfg.ShouldManageIndex(name) || o.cfg.IsSearchableName(name) {
			continue
		}
		report.Examined++
		age := o.IndexAgeDays(ctx, name)
		if !o.pastRetention(ctx, OpCleanup, "index", name, age) {
			report.Skipped++
			continue
		}
		if !o.mayMutate(ctx, name) {
			report.Skipped++
			continue
		}
		o.logger.Info("Deleting old index", "index", name, "age_days", age)
		if err := o.deleteIndex(ctx, OpCleanup, name); err != nil {
			report.Failed++
			continue
		}
		report.Acted++
		o.deleteCorrespondingSnapshot(ctx, name)
	}

	o.logger.Info("Phase 3: checking snapshots")
	for _, snap := range snapshots {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++
		age := o.SnapshotAgeDays(ctx, snap)
		if !o.pastRetention(ctx, OpCleanup, "snapshot", snap.ID, age) {
			report.Skipped++
			continue
		}
		o.logger.Info("Deleting old snapshot", "snapshot", snap.ID, "age_days", age)
		if err := o.deleteSnapshotOrdered(ctx, snap.ID); err != nil {
			report.Failed++
			continue
		}
		report.Acted++
	}
	return report, ctx.Err()
}

// searchableAgeDays ages a mount by its backing snapshot, falling back to the
// mount's own creation date when the snapshot is unknown or has no usable age.
func (o *Orchestrator) searchableAgeDays(ctx context.Context, name string, byID map[string]cluster.SnapshotEntry) float64 {
	if snap, ok := byID[o.cfg.CorrespondingSnapshotName(name)]; ok {
		if age := o.SnapshotAgeDays(ctx, snap); age >= 0 {
			o.logger.Debug("Searchable index age based on snapshot", "index", name, "age_days", age)
			return age
		}
	}
	o.logger.Debug("Could not determine snapshot age, falling back to index age", "index", name)
	return o.IndexAgeDays(ctx, name)
}

// deleteCorrespondingSnapshot removes the snapshot of a deleted regular index,
// unless a mount of it still exists.
func (o *Orchestrator) deleteCorrespondingSnapshot(ctx context.Context, index string) {
	snapshot := o.cfg.CorrespondingSnapshotName(index)
	mount := o.cfg.SearchableName(index)
	mounted, err := o.client.IndexExists(ctx, mount)
	if err != nil {
		o.logger.Error("Failed to check searchable index, keeping snapshot", "searchable", mount, "snapshot", snapshot, "error", err)
		return
	}
	if mounted {
		o.logger.Info("Keeping snapshot, it still backs a searchable index", "snapshot", snapshot, "searchable", mount)
		return
	}
	o.logger.Info("Deleting corresponding snapshot", "snapshot", snapshot)
	_ = o.deleteSnapshot(ctx, OpCleanup, snapshot)
}

// deleteSnapshotOrdered deletes a snapshot after any managed mount backed by it.
// A mount of an unmanaged index blocks the deletion instead.
func (o *Orchestrator) deleteSnapshotOrdered(ctx context.Context, name string) error {
	mounts := []string{o.cfg.SearchableName(name)}
	if o.cfg.IsSearchableName(name) {
		mounts = append(mounts, name)
	}
	for _, m := range mounts {
		exists, err := o.client.IndexExists(ctx, m)
		if err != nil {
			o.logger.Error("Failed to check searchable index, keeping snapshot", "searchable", m, "snapshot", name, "error", err)
			return err
		}
		if !exists {
			continue
		}
		if !o.cfg.ShouldManageIndex(o.cfg.CorrespondingSnapshotName(m)) {
			o.logger.Warn("Snapshot backs an unmanaged searchable index, keeping it", "snapshot", name, "searchable", m)
			return fmt.Errorf("snapshot %s backs unmanaged index %s", name, m)
		}
		o.logger.Info("Removing searchable snapshot index before deleting snapshot", "searchable", m, "snapshot", name)
		if err := o.deleteIndex(ctx, OpCleanup, m); err != nil {
			return err
		}
	}
	return o.deleteSnapshot(ctx, OpCleanup, name)
}
