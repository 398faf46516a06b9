package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/syntrixbase/coldtier/internal/lifecycle"
	"github.com/syntrixbase/coldtier/internal/scheduler"
)

// ErrItemsFailed is returned when an operation finished but could not handle every item.
var ErrItemsFailed = errors.New("some items failed")

// operation is a lifecycle method expression, such as (*lifecycle.Orchestrator).RunILM.
type operation func(*lifecycle.Orchestrator, context.Context) ([]lifecycle.Report, error)

// single adapts an operation that produces one report.
func single(fn func(*lifecycle.Orchestrator, context.Context) (lifecycle.Report, error)) operation {
	return func(o *lifecycle.Orchestrator, ctx context.Context) ([]lifecycle.Report, error) {
		r, err := fn(o, ctx)
		return []lifecycle.Report{r}, err
	}
}

var (
	runILM              operation = (*lifecycle.Orchestrator).RunILM
	runTransition                 = single((*lifecycle.Orchestrator).TransitionOldIndicesToSnapshots)
	runCleanup                    = single((*lifecycle.Orchestrator).CleanupOldData)
	runRestore                    = single((*lifecycle.Orchestrator).RestoreMissingSearchableSnapshots)
	runRollover                   = single((*lifecycle.Orchestrator).CheckAndRolloverBySize)
	runRemoveSearchable           = single((*lifecycle.Orchestrator).RemoveSearchableSnapshots)
)

// operationCommand runs op once under the lock of job name. The daemon uses the
// same locks, so a manual ilm never overlaps the scheduled one.
func (a *app) operationCommand(name, short string, op operation) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.openDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			var reports []lifecycle.Report
			err = d.runner.Execute(cmd.Context(), name, scheduler.Reports(func(ctx context.Context) ([]lifecycle.Report, error) {
				var opErr error
				reports, opErr = op(d.orch, ctx)
				return reports, opErr
			}))
			printReports(cmd.OutOrStdout(), reports)
			if err != nil {
				return err
			}
			if failed := totalFailed(reports); failed > 0 {
				return fmt.Errorf("%s: %w (%d)", name, ErrItemsFailed, failed)
			}
			return nil
		},
	}
}

func printReports(w io.Writer, reports []lifecycle.Report) {
	if len(reports) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tEXAMINED\tACTED\tSKIPPED\tFAILED\tDURATION")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			r.Operation, r.Examined, r.Acted, r.Skipped, r.Failed, r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	_ = tw.Flush()
}

func totalFailed(reports []lifecycle.Report) int {
	n := 0
	for _, r := range reports {
		n += r.Failed
	}
	return n
}
