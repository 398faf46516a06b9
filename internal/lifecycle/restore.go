package lifecycle

import (
	"context"
	"strings"

	"github.com/syntrixbase/coldtier/internal/cluster"
	"github.com/syntrixbase/coldtier/internal/events"
)

// RestoreMissingSearchableSnapshots mounts managed indices of successful,
// cold-eligible snapshots when neither the index nor its mount exists.
// It enforces no upper age bound; CleanupOldData has removed expired snapshots.
func (o *Orchestrator) RestoreMissingSearchableSnapshots(ctx context.Context) (report Report, err error) {
	report = o.startReport(OpRestore)
	defer o.finishReport(&report)

	if o.cfg.HotStorageDays >= o.cfg.TotalRetentionDays {
		o.logger.Info("Hot storage period equals total retention, no cold tier to restore")
		return report, nil
	}
	o.logger.Info("Checking for missing searchable snapshots")

	indices, err := o.client.ListIndices(ctx)
	if err != nil {
		o.logger.Error("Failed to fetch indices, cannot tell what is missing", "error", err)
		report.Failed++
		return report, ctx.Err()
	}
	existing := make(map[string]struct{}, len(indices))
	for _, idx := range indices {
		existing[idx.Index] = struct{}{}
	}

	snapshots, err := o.client.ListSnapshots(ctx)
	if err != nil {
		o.logger.Error("Failed to fetch snapshots", "error", err)
		report.Failed++
		return report, ctx.Err()
	}

	for _, snap := range snapshots {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if snap.Status != string(cluster.SnapshotSuccess) {
			continue
		}
		report.Examined++

		age := o.SnapshotAgeDays(ctx, snap)
		if age < 0 {
			o.logger.Info("Skipping snapshot, could not determine age", "snapshot", snap.ID)
			report.Skipped++
			continue
		}
		if age < float64(o.cfg.HotStorageDays) {
			o.logger.Info("Skipping snapshot, still in hot storage period",
				"snapshot", snap.ID, "age_days", age, "hot_storage_days", o.cfg.HotStorageDays)
			report.Skipped++
			continue
		}

		restored, failed := o.restoreSnapshot(ctx, snap.ID, existing)
		switch {
		case failed:
			report.Failed++
		case restored > 0:
			report.Acted++
		default:
			report.Skipped++
		}
	}
	return report, ctx.Err()
}

// restoreSnapshot mounts every eligible index of snapshot and records new
// mounts in existing so a later snapshot cannot mount them twice.
func (o *Orchestrator) restoreSnapshot(ctx context.Context, snapshot string, existing map[string]struct{}) (restored int, failed bool) {
	info, err := o.client.SnapshotDetail(ctx, snapshot)
	if err != nil {
		o.logger.Error("Error checking snapshot", "snapshot", snapshot, "error", err)
		return 0, true
	}
	o.logger.Debug("Checking snapshot", "snapshot", snapshot, "indices", info.Indices)

	for _, index := range info.Indices {
		if strings.HasPrefix(index, o.cfg.ReservedIndexPrefix) {
			continue
		}
		if !o.cfg.ShouldManageIndex(index) || o.cfg.IsSearchableName(index) {
			continue
		}
		searchable := o.cfg.SearchableName(index)
		_, baseExists := existing[index]
		_, mountExists := existing[searchable]
		if baseExists || mountExists {
			o.logger.Debug("Index or its mount exists, skipping", "index", index,
				"base_exists", baseExists, "searchable_exists", mountExists)
			continue
		}

		o.logger.Info("Restoring missing searchable snapshot", "snapshot", snapshot, "index", index, "searchable", searchable)
		req := cluster.MountRequest{Index: index, RenameTo: searchable, Replicas: 0}
		if err := o.client.MountSearchable(ctx, snapshot, req); err != nil {
			o.logger.Error("Failed to mount snapshot as searchable index", "searchable", searchable, "error", err)
			failed = true
			continue
		}
		existing[searchable] = struct{}{}
		restored++

		e := o.event(ctx, events.KindRestoreMounted, OpRestore)
		e.Index = searchable
		e.Snapshot = snapshot
		o.emit(ctx, e)
	}
	if restored > 0 {
		o.logger.Info("Restored searchable snapshots", "snapshot", snapshot, "count", restored)
	}
	return restored, failed
}
