// Package cli implements the coldtier command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/syntrixbase/coldtier/internal/config"
	"github.com/syntrixbase/coldtier/internal/logging"
	"github.com/syntrixbase/coldtier/internal/metrics"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewRootCommand builds the coldtier command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "coldtier",
		Short:         "Move aging indices into a snapshot repository and expire them",
		SilenceUsage:  true, // don't print usage on operational errors
		SilenceErrors: true, // Execute prints them
		Long: `coldtier manages the lifecycle of time-series indices on an OpenSearch cluster:
indices older than the hot window are snapshotted and remounted as searchable
snapshots, and everything past the total retention is deleted.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.Shutdown()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"config file (default "+config.DefaultPath+", overlaid by its .local variant)")

	root.AddCommand(
		a.operationCommand("ilm", "Run transition, cleanup and restore in order", runILM),
		a.operationCommand("transition", "Snapshot indices past the hot window and mount them as searchable snapshots", runTransition),
		a.operationCommand("cleanup", "Delete indices, mounts and snapshots past total retention", runCleanup),
		a.operationCommand("restore", "Mount snapshots that have no searchable index yet", runRestore),
		a.operationCommand("rollover", "Roll over write aliases whose index is too large or too old", runRollover),
		a.operationCommand("remove-searchable-snapshots", "Delete every managed searchable snapshot index", runRemoveSearchable),
		a.snapshotsCommand(),
		a.repositoryCommand(),
		a.bootstrapCommand(),
		a.eventsCommand(),
		a.manageCommand(),
	)
	return root
}

// Execute is called by main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.Initialize(cfg.Logging)
	if err != nil {
		return err
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}
