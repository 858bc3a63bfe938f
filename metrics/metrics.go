package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "datachat"

// Metrics aggregates the Prometheus collectors for the service. All observe
// methods are safe to call on a nil receiver so components can run without
// metrics wired (tests mostly do).
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	chatRequests   *prometheus.CounterVec
	openaiDuration *prometheus.HistogramVec
	openaiTokens   *prometheus.CounterVec

	sqlQueryDuration prometheus.Histogram
	sqlRowsReturned  prometheus.Histogram
	sqlTruncations   prometheus.Counter
}

// New creates and registers all service collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by method, route and status code.",
		}, []string{"method", "route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat pipeline runs, by mode and outcome.",
		}, []string{"mode", "outcome"}),

		openaiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "openai",
			Name:      "request_duration_seconds",
			Help:      "OpenAI completion latency, by pipeline step.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"step"}),

		openaiTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "openai",
			Name:      "tokens_total",
			Help:      "Tokens consumed by completions, by kind.",
		}, []string{"kind"}),

		sqlQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sql",
			Name:      "query_duration_seconds",
			Help:      "Generated query execution latency.",
			Buckets:   prometheus.DefBuckets,
		}),

		sqlRowsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sql",
			Name:      "rows_returned",
			Help:      "Rows returned by generated queries.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),

		sqlTruncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sql",
			Name:      "truncated_results_total",
			Help:      "Query results cut off at the row cap.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.chatRequests,
		m.openaiDuration,
		m.openaiTokens,
		m.sqlQueryDuration,
		m.sqlRowsReturned,
		m.sqlTruncations,
	)

	return m
}

// ObserveChat records one chat pipeline run.
func (m *Metrics) ObserveChat(mode string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.chatRequests.WithLabelValues(mode, outcome).Inc()
}

// ObserveCompletion records latency and token usage of one completion call.
func (m *Metrics) ObserveCompletion(step string, d time.Duration, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.openaiDuration.WithLabelValues(step).Observe(d.Seconds())
	if promptTokens > 0 {
		m.openaiTokens.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.openaiTokens.WithLabelValues("completion").Add(float64(completionTokens))
	}
}

// ObserveQuery records one generated-query execution.
func (m *Metrics) ObserveQuery(d time.Duration, rows int, truncated bool) {
	if m == nil {
		return
	}
	m.sqlQueryDuration.Observe(d.Seconds())
	m.sqlRowsReturned.Observe(float64(rows))
	if truncated {
		m.sqlTruncations.Inc()
	}
}
