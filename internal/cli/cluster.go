package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/syntrixbase/coldtier/internal/cluster"
)

// ErrNoSnapshots is returned by "snapshots latest" on an empty repository.
var ErrNoSnapshots = errors.New("repository has no snapshots")

func (a *app) snapshotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect the snapshot repository",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List snapshots ordered by end time",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				snapshots, err := a.listSnapshots(cmd)
				if err != nil {
					return err
				}
				printSnapshots(cmd.OutOrStdout(), snapshots)
				return nil
			},
		},
		&cobra.Command{
			Use:   "latest",
			Short: "Print the most recently finished snapshot",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				snapshots, err := a.listSnapshots(cmd)
				if err != nil {
					return err
				}
				if len(snapshots) == 0 {
					return ErrNoSnapshots
				}
				printSnapshots(cmd.OutOrStdout(), snapshots[len(snapshots)-1:])
				return nil
			},
		},
	)
	return cmd
}

func (a *app) listSnapshots(cmd *cobra.Command) ([]cluster.SnapshotEntry, error) {
	client, err := cluster.New(a.cfg.Cluster)
	if err != nil {
		return nil, err
	}
	snapshots, err := client.ListSnapshots(cmd.Context())
	if err != nil {
		return nil, err
	}
	// The cluster sorts by end epoch already; entries without one go first.
	sort.SliceStable(snapshots, func(i, j int) bool {
		return epoch(snapshots[i].EndEpoch) < epoch(snapshots[j].EndEpoch)
	})
	return snapshots, nil
}

func epoch(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func printSnapshots(w io.Writer, snapshots []cluster.SnapshotEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT\tSTATUS\tENDED")
	for _, s := range snapshots {
		ended := "-"
		if n := epoch(s.EndEpoch); n > 0 {
			ended = time.Unix(n, 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Status, ended)
	}
	_ = tw.Flush()
}

func (a *app) repositoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repository",
		Short: "Manage the snapshot repository",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Register the S3 snapshot repository if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cluster.New(a.cfg.Cluster)
			if err != nil {
				return err
			}
			created, err := client.EnsureRepository(cmd.Context())
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "registered repository %s\n", client.Repository())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "repository %s already exists\n", client.Repository())
			}
			return nil
		},
	})
	return cmd
}

func (a *app) bootstrapCommand() *cobra.Command {
	var index, alias string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Make an index the write index of an alias, creating the index if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.openDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			if err := d.orch.Bootstrap(cmd.Context(), index, alias); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is the write index of %s\n", index, alias)
			return nil
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "backing index, e.g. log-000001")
	cmd.Flags().StringVar(&alias, "alias", "", "write alias, e.g. log-write")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("alias")
	return cmd
}
