package cli

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/syntrixbase/coldtier/internal/lifecycle"
	"github.com/syntrixbase/coldtier/internal/metrics"
	"github.com/syntrixbase/coldtier/internal/scheduler"
	"github.com/syntrixbase/coldtier/internal/server"
	"golang.org/x/sync/errgroup"
)

func (a *app) manageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "manage",
		Short: "Run the lifecycle on a schedule and serve /metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.manage(cmd.Context())
		},
	}
}

func (a *app) manage(ctx context.Context) error {
	d, err := a.openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.orch.EnsureRepository(ctx); err != nil {
		return err
	}

	sched, err := scheduler.New(a.cfg.Schedule, a.logger)
	if err != nil {
		return err
	}
	if err := sched.Add(lifecycle.OpILM, a.cfg.Schedule.ILM, scheduler.Reports(d.orch.RunILM)); err != nil {
		return err
	}
	if err := sched.Add(lifecycle.OpRollover, a.cfg.Schedule.Rollover, scheduler.Report(d.orch.CheckAndRolloverBySize)); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Start(ctx) })

	if a.cfg.Server.Enabled {
		srv := server.New(a.cfg.Server, a.logger)
		srv.RegisterHTTPHandler("/metrics", metrics.Handler(prometheus.DefaultGatherer))
		g.Go(func() error { return srv.Start(ctx) })
	}

	a.logger.Info("Lifecycle manager started",
		"ilm", a.cfg.Schedule.ILM,
		"rollover", a.cfg.Schedule.Rollover,
		"location", a.cfg.Schedule.Location,
	)
	err = g.Wait()
	a.logger.Info("Lifecycle manager stopped")
	return err
}
