// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Run metrics
	TargetsCompleted *prometheus.CounterVec // by status
	TargetsInFlight  prometheus.Gauge
	RunDuration      prometheus.Histogram

	// Sampling metrics
	SampleDuration  *prometheus.HistogramVec // by family
	SampleErrors    *prometheus.CounterVec   // by family, error
	EndpointRetries prometheus.Counter
	ScrapeFallbacks prometheus.Counter

	// Fetch gate metrics
	FetchesBlocked *prometheus.CounterVec // by reason
	FetchErrors    *prometheus.CounterVec // by reason

	// Store metrics
	UpsertDuration prometheus.Histogram
	UpsertErrors   prometheus.Counter
	CommitsTotal   prometheus.Counter

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered on
// reg. Registering the same namespace twice on one registry panics, so one
// instance per process.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "chainpulse"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TargetsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "targets_completed_total",
			Help:      "Total number of targets completed by status",
		}, []string{"status"}),
		TargetsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "targets_in_flight",
			Help:      "Number of targets currently being measured",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Full measurement run duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
		}),

		SampleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "sample_duration_seconds",
			Help:      "Per-endpoint sample duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"family"}),
		SampleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "sample_errors_total",
			Help:      "Total number of sample failures by family and error",
		}, []string{"family", "error"}),
		EndpointRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "endpoint_retries_total",
			Help:      "Total number of failovers to a later candidate endpoint",
		}),
		ScrapeFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "scrape_fallbacks_total",
			Help:      "Total number of explorer-scrape fallback attempts",
		}),

		FetchesBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "blocked_total",
			Help:      "Total number of URLs rejected by the fetch gate by reason",
		}, []string{"reason"}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Total number of failed fetches by reason",
		}, []string{"reason"}),

		UpsertDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "upsert_duration_seconds",
			Help:      "Metrics store upsert duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		UpsertErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "upsert_errors_total",
			Help:      "Total number of failed upserts",
		}),
		CommitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commits_total",
			Help:      "Total number of periodic store commits",
		}),

		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last completed measurement run",
		}),
	}
}

// FetchBlocked counts a URL rejected by the fetch gate. Together with
// FetchFailed it satisfies the gate's observer interface.
func (m *Metrics) FetchBlocked(reason string) {
	m.FetchesBlocked.WithLabelValues(reason).Inc()
}

// FetchFailed counts a validated fetch that failed in transport.
func (m *Metrics) FetchFailed(reason string) {
	m.FetchErrors.WithLabelValues(reason).Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
