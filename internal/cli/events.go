package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/syntrixbase/coldtier/internal/events"
	eventsmongo "github.com/syntrixbase/coldtier/internal/events/mongo"
)

// ErrEventStoreDisabled is returned by "events list" without a Mongo event store.
var ErrEventStoreDisabled = errors.New("events.mongo is not enabled")

func (a *app) eventsCommand() *cobra.Command {
	var (
		kind  string
		runID string
		since time.Duration
		limit int64
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded lifecycle events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.Events.Mongo.Enabled {
				return ErrEventStoreDisabled
			}
			store, disconnect, err := eventsmongo.Connect(cmd.Context(), a.cfg.Events.Mongo)
			if err != nil {
				return err
			}
			defer func() { _ = disconnect(cmd.Context()) }()

			q := eventsmongo.Query{Kind: events.Kind(kind), RunID: runID, Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			recent, err := store.Recent(cmd.Context(), q)
			if err != nil {
				return err
			}
			printEvents(cmd.OutOrStdout(), recent)
			return nil
		},
	}
	list.Flags().StringVar(&kind, "kind", "", "only events of this kind, e.g. index_deleted")
	list.Flags().StringVar(&runID, "run", "", "only events of this run id")
	list.Flags().DurationVar(&since, "since", 0, "only events newer than this, e.g. 72h")
	list.Flags().Int64Var(&limit, "limit", 50, "maximum number of events")

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the lifecycle audit trail",
	}
	cmd.AddCommand(list)
	return cmd
}

func printEvents(w io.Writer, list []events.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tOPERATION\tINDEX\tSNAPSHOT\tREASON")
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Time.Format(time.RFC3339), e.Kind, e.Operation, dash(e.Index), dash(e.Snapshot), dash(e.Reason))
	}
	_ = tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
