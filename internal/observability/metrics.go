package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chainInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_chain_invocations_total",
			Help: "Total number of questions run through the query chain.",
		},
		[]string{"backend", "outcome"},
	)
	chainFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_chain_failures_total",
			Help: "Total number of failed chain invocations by error kind and failed state.",
		},
		[]string{"kind", "state"},
	)
	chainDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlq_chain_duration_seconds",
			Help:    "End-to-end chain latency from question to answer.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"backend"},
	)
	promptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlq_prompt_tokens",
			Help:    "Estimated token count of assembled few-shot prompts.",
			Buckets: prometheus.ExponentialBuckets(128, 2, 8),
		},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlq_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		chainInvocationsTotal,
		chainFailuresTotal,
		chainDurationSeconds,
		promptTokens,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

// ObserveChain records one finished chain invocation. kind and state are empty on success.
func ObserveChain(backend, kind, state string, elapsed time.Duration) {
	outcome := "answered"
	if kind != "" {
		outcome = "failed"
		chainFailuresTotal.WithLabelValues(kind, state).Inc()
	}
	chainInvocationsTotal.WithLabelValues(backend, outcome).Inc()
	chainDurationSeconds.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func ObservePromptTokens(n int) {
	if n > 0 {
		promptTokens.Observe(float64(n))
	}
}
