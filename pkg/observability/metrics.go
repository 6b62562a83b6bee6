package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Session cache metrics
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_session_cache_lookups_total",
			Help: "Total number of session cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss, error
	)

	cacheWriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcore_session_cache_write_errors_total",
			Help: "Total number of dropped session cache writes",
		},
	)

	// LLM metrics
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_llm_calls_total",
			Help: "Total number of LLM calls",
		},
		[]string{"provider", "kind", "status"},
	)

	llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatcore_llm_call_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "kind"},
	)

	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_fallback_responses_total",
			Help: "Total number of degraded fallback responses served",
		},
		[]string{"kind"}, // chat, title
	)

	// Session metrics
	sessionHistoryLength = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatcore_session_history_turns",
			Help:    "Session history length at send time, in turns",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	initOnce sync.Once
)

// InitMetrics initializes Prometheus metrics
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			cacheLookupsTotal,
			cacheWriteErrorsTotal,
			llmCallsTotal,
			llmCallDuration,
			fallbacksTotal,
			sessionHistoryLength,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCacheLookup records a session cache lookup outcome
// (hit, miss or error).
func RecordCacheLookup(outcome string) {
	cacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheWriteError records a dropped session cache write
func RecordCacheWriteError() {
	cacheWriteErrorsTotal.Inc()
}

// RecordLLMCall records an LLM call outcome and duration
func RecordLLMCall(provider, kind, status string, duration time.Duration) {
	llmCallsTotal.WithLabelValues(provider, kind, status).Inc()
	llmCallDuration.WithLabelValues(provider, kind).Observe(duration.Seconds())
}

// RecordFallback records a degraded fallback response
func RecordFallback(kind string) {
	fallbacksTotal.WithLabelValues(kind).Inc()
}

// RecordSessionHistoryLength records how many turns a session carried
// when a message was sent through it
func RecordSessionHistoryLength(turns int) {
	sessionHistoryLength.Observe(float64(turns))
}
