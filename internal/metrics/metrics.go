// Package metrics exposes the framework's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the framework-level collectors. All components share one
// instance, created in main and registered on a single registry.
type Metrics struct {
	Registry *prometheus.Registry

	UpdatesDispatched prometheus.Counter
	HandlerErrors     *prometheus.CounterVec
	StorageQueries    *prometheus.CounterVec
	StorageErrors     prometheus.Counter
	NotifySent        prometheus.Counter
	NotifyFailed      prometheus.Counter
	JobsRun           *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		UpdatesDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "botforge_updates_dispatched_total",
			Help: "Inbound updates routed through the dispatcher.",
		}),
		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botforge_handler_errors_total",
			Help: "Handler errors and recovered panics, by plugin.",
		}, []string{"plugin"}),
		StorageQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botforge_storage_queries_total",
			Help: "Statements executed by the storage gateway, by target.",
		}, []string{"target"}),
		StorageErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "botforge_storage_errors_total",
			Help: "Storage gateway failures returned as structured results.",
		}),
		NotifySent: factory.NewCounter(prometheus.CounterOpts{
			Name: "botforge_notify_sent_total",
			Help: "Admin notifications delivered.",
		}),
		NotifyFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "botforge_notify_failed_total",
			Help: "Admin notification deliveries that failed.",
		}),
		JobsRun: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botforge_jobs_run_total",
			Help: "Scheduled job executions, by job name.",
		}, []string{"name"}),
	}
}
