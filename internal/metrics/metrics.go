package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trove"

var (
	Registry = prometheus.NewRegistry()

	AdmissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Quota admission checks by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	ReserveFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserve_failures_total",
			Help:      "Counter reservations that failed after a successful write.",
		},
		[]string{"operation"},
	)

	ReconcileJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_jobs_total",
			Help:      "Usage reconciliation runs by outcome.",
		},
		[]string{"outcome"},
	)

	HTTPRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	Registry.MustRegister(
		AdmissionDecisions,
		ReserveFailures,
		ReconcileJobs,
		HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Outcome labels an admission decision.
func Outcome(admitted bool) string {
	if admitted {
		return "admitted"
	}
	return "denied"
}
