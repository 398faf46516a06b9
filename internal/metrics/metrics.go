// Package metrics holds the prometheus collectors of the lifecycle service.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/syntrixbase/coldtier/internal/events"
)

var (
	// Cluster API
	ClusterRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coldtier_cluster_requests_total",
		Help: "The total number of requests sent to the cluster admin API",
	}, []string{"code", "method"})

	ClusterRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coldtier_cluster_request_duration_seconds",
		Help:    "The latency of cluster admin API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// Operations
	OperationRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coldtier_operation_runs_total",
		Help: "The total number of lifecycle operation runs by result",
	}, []string{"operation", "result"})

	OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coldtier_operation_duration_seconds",
		Help:    "The wall time of lifecycle operation runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
	}, []string{"operation"})

	OperationItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coldtier_operation_items_total",
		Help: "The total number of indices and snapshots handled by lifecycle operations, by outcome",
	}, []string{"operation", "outcome"})

	OperationLastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coldtier_operation_last_success_timestamp_seconds",
		Help: "Unix time of the last run that completed without cancellation",
	}, []string{"operation"})

	// Lifecycle
	LifecycleEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coldtier_lifecycle_events_total",
		Help: "The total number of lifecycle events by kind",
	}, []string{"kind"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ClusterRequests,
		ClusterRequestDuration,
		OperationRuns,
		OperationDuration,
		OperationItems,
		OperationLastSuccess,
		LifecycleEvents,
	}
}

// Register registers all collectors. Collectors that are already registered are skipped.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveRun records the outcome of one operation run.
func ObserveRun(operation, result string, started, finished time.Time) {
	OperationRuns.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(finished.Sub(started).Seconds())
	if result == ResultOK {
		OperationLastSuccess.WithLabelValues(operation).Set(float64(finished.Unix()))
	}
}

// ObserveItems adds the per-item outcome counts of one operation run.
func ObserveItems(operation string, acted, skipped, failed int) {
	OperationItems.WithLabelValues(operation, "acted").Add(float64(acted))
	OperationItems.WithLabelValues(operation, "skipped").Add(float64(skipped))
	OperationItems.WithLabelValues(operation, "failed").Add(float64(failed))
}

// Run results.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultCancelled = "cancelled"
	ResultSkipped   = "skipped"
)

// Sink counts lifecycle events by kind.
type Sink struct{}

var _ events.Sink = Sink{}

func (Sink) Emit(_ context.Context, e events.Event) error {
	LifecycleEvents.WithLabelValues(string(e.Kind)).Inc()
	return nil
}
