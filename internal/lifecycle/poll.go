package lifecycle

import (
	"context"
	"fmt"

	"github.com/syntrixbase/coldtier/internal/cluster"
)

// waitForSnapshot polls the status of snapshot name every PollInterval until it
// finishes or MaxSnapshotWait elapses. SUCCESS and PARTIAL end the wait.
func (o *Orchestrator) waitForSnapshot(ctx context.Context, name string) error {
	polls := int(o.cfg.MaxSnapshotWait / o.cfg.PollInterval)
	if polls < 1 {
		polls = 1
	}
	o.logger.Info("Polling snapshot status", "snapshot", name, "max_wait", o.cfg.MaxSnapshotWait)

	for i := 1; i <= polls; i++ {
		state, err := o.client.SnapshotStatus(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to get status of snapshot %s: %w", name, err)
		}

		switch state {
		case cluster.SnapshotSuccess:
			o.logger.Info("Snapshot completed", "snapshot", name)
			return nil
		case cluster.SnapshotPartial:
			o.logger.Warn("Snapshot completed with state PARTIAL", "snapshot", name)
			return nil
		case cluster.SnapshotFailed:
			return fmt.Errorf("%w: %s", ErrSnapshotFailed, name)
		case cluster.SnapshotInProgress, cluster.SnapshotStarted, cluster.SnapshotInit:
			o.logger.Debug("Snapshot in progress", "snapshot", name, "state", state, "poll", i, "max_polls", polls)
		default:
			o.logger.Warn("Snapshot has unexpected state", "snapshot", name, "state", state)
		}

		if err := o.clock.Sleep(ctx, o.cfg.PollInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w %s after %s", ErrSnapshotTimeout, name, o.cfg.MaxSnapshotWait)
}
