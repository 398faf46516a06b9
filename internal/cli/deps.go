package cli

import (
	"context"
	"fmt"

	"github.com/syntrixbase/coldtier/internal/cluster"
	"github.com/syntrixbase/coldtier/internal/events"
	eventsmongo "github.com/syntrixbase/coldtier/internal/events/mongo"
	eventsnats "github.com/syntrixbase/coldtier/internal/events/nats"
	"github.com/syntrixbase/coldtier/internal/lifecycle"
	"github.com/syntrixbase/coldtier/internal/metrics"
	"github.com/syntrixbase/coldtier/internal/scheduler"
)

var _ lifecycle.Cluster = (*cluster.Client)(nil)

// deps are the collaborators of a lifecycle command. close releases the event sinks.
type deps struct {
	client *cluster.Client
	orch   *lifecycle.Orchestrator
	runner *scheduler.Runner
	close  func()
}

func (a *app) openDeps(ctx context.Context) (*deps, error) {
	client, err := cluster.New(a.cfg.Cluster)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster client: %w", err)
	}
	sink, closeSinks, err := a.openSinks(ctx)
	if err != nil {
		return nil, err
	}
	orch, err := lifecycle.New(a.cfg.Lifecycle, client, a.logger, lifecycle.WithSink(sink))
	if err != nil {
		closeSinks()
		return nil, err
	}
	return &deps{
		client: client,
		orch:   orch,
		runner: scheduler.NewRunner(a.cfg.Schedule.LockDir, a.logger),
		close:  closeSinks,
	}, nil
}

// openSinks connects the enabled event sinks. Metrics are always counted.
func (a *app) openSinks(ctx context.Context) (events.Sink, func(), error) {
	sinks := events.Multi{metrics.Sink{}}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if a.cfg.Events.NATS.Enabled {
		pub, drain, err := eventsnats.Connect(ctx, a.cfg.Events.NATS)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, pub)
		closers = append(closers, drain)
		a.logger.Info("Publishing lifecycle events to NATS", "url", a.cfg.Events.NATS.URL, "stream", a.cfg.Events.NATS.Stream)
	}

	if a.cfg.Events.Mongo.Enabled {
		store, disconnect, err := eventsmongo.Connect(ctx, a.cfg.Events.Mongo)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, store)
		closers = append(closers, func() { _ = disconnect(context.Background()) })
		a.logger.Info("Recording lifecycle events in MongoDB", "database", a.cfg.Events.Mongo.Database)
	}

	return sinks, closeAll, nil
}
