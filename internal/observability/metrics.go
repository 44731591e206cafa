package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the EasyDeploy client. All
// methods are safe to call on a nil *Metrics.
type Metrics struct {
	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Tracker metrics
	PollsTotal         *prometheus.CounterVec
	TrackedDeployments *prometheus.GaugeVec

	// Dispatcher metrics
	OperationsTotal *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec

	// Build metrics
	BuildsTotal   *prometheus.CounterVec
	BuildDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "easydeploy"
	}

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of control plane API requests",
			},
			[]string{"operation", "outcome"},
		),
		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Control plane API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Status polls by outcome (ok, error, skipped)",
			},
			[]string{"outcome"},
		),
		TrackedDeployments: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tracked_deployments",
				Help:      "Deployments currently tracked, by lifecycle state",
			},
			[]string{"state"},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Dispatcher operations by name and result",
			},
			[]string{"operation", "result"},
		),
		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retried API calls by operation",
			},
			[]string{"operation"},
		),
		BuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_builds_total",
				Help:      "Local image builds by status",
			},
			[]string{"status"},
		),
		BuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "image_build_duration_seconds",
				Help:      "Time taken by local image builds",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
			},
		),
		gatherer: gatherer,
	}
}

// RecordAPIRequest records one API call.
func (m *Metrics) RecordAPIRequest(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.APIRequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.APIRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPoll records a poll outcome.
func (m *Metrics) RecordPoll(outcome string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(outcome).Inc()
}

// SetTrackedDeployments replaces the per-state gauge values.
func (m *Metrics) SetTrackedDeployments(byState map[string]int) {
	if m == nil {
		return
	}
	m.TrackedDeployments.Reset()
	for state, n := range byState {
		m.TrackedDeployments.WithLabelValues(state).Set(float64(n))
	}
}

// RecordOperation records a dispatcher operation result.
func (m *Metrics) RecordOperation(operation, result string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordRetry records one retry of an API call.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// RecordBuild records a finished image build.
func (m *Metrics) RecordBuild(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(status).Inc()
	m.BuildDuration.Observe(duration.Seconds())
}

// Handler serves the registered metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
