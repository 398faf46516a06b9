package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/syntrixbase/coldtier/internal/cluster"
	"github.com/syntrixbase/coldtier/internal/events"
)

// RolloverConditions returns the conditions the engine evaluates on rollover.
func (c Config) RolloverConditions() cluster.RolloverConditions {
	return cluster.RolloverConditions{
		MaxSize: fmt.Sprintf("%dgb", c.RolloverSizeGB),
		MaxAge:  fmt.Sprintf("%dd", c.RolloverAgeDays),
	}
}

// CheckAndRolloverBySize asks the engine to roll over every write alias whose
// conditions hold. The engine decides; a rollover that does not happen is normal.
func (o *Orchestrator) CheckAndRolloverBySize(ctx context.Context) (report Report, err error) {
	report = o.startReport(OpRollover)
	defer o.finishReport(&report)

	conditions := o.cfg.RolloverConditions()
	o.logger.Info("Checking for rollover", "max_size", conditions.MaxSize, "max_age", conditions.MaxAge)

	aliases, err := o.client.WriteAliases(ctx, o.cfg.WriteAliasSuffix)
	if err != nil {
		o.logger.Error("Failed to list write aliases", "error", err)
		report.Failed++
		return report, ctx.Err()
	}

	for _, alias := range aliases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++

		writeIndex, err := o.client.WriteIndex(ctx, alias)
		if errors.Is(err, cluster.ErrNotFound) {
			o.logger.Debug("Alias has no write index", "alias", alias)
			report.Skipped++
			continue
		}
		if err != nil {
			o.logger.Error("Failed to resolve write index", "alias", alias, "error", err)
			report.Failed++
			continue
		}

		o.logger.Info("Checking rollover", "alias", alias, "write_index", writeIndex)
		res, err := o.client.Rollover(ctx, alias, conditions)
		if err != nil {
			o.logger.Error("Rollover request failed", "alias", alias, "error", err)
			report.Failed++
			continue
		}
		if !res.RolledOver {
			o.logger.Debug("No rollover needed, conditions not met", "alias", alias)
			report.Skipped++
			continue
		}

		o.logger.Info("Rollover completed", "alias", alias, "old_index", res.OldIndex, "new_index", res.NewIndex)
		report.Acted++
		e := o.event(ctx, events.KindRolledOver, OpRollover)
		e.Index = res.NewIndex
		e.Details = map[string]string{"alias": alias, "old_index": res.OldIndex}
		o.emit(ctx, e)
	}
	return report, ctx.Err()
}
