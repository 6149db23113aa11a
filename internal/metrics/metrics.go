// Package metrics exposes Prometheus collectors for the analysis service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineMessagesTotal          *prometheus.CounterVec
	pipelineMessageDurationSeconds *prometheus.HistogramVec
	analyzerDurationSeconds        *prometheus.HistogramVec
	analysesSubmittedTotal         prometheus.Counter
	cacheRequestsTotal             *prometheus.CounterVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_messages_total",
				Help: "Total queue messages processed, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		pipelineMessageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_message_duration_seconds",
				Help:    "Histogram of per-message processing latencies, labeled by stage.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		)

		analyzerDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyzer_duration_seconds",
				Help:    "Histogram of analyzer capability latencies, labeled by analyzer.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"analyzer"},
		)

		analysesSubmittedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "analyses_submitted_total",
				Help: "Total analysis submissions accepted by the gateway.",
			},
		)

		cacheRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_requests_total",
				Help: "Total result cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// ObservePipelineMessage records one processed message for a stage.
func ObservePipelineMessage(stage, outcome string, d time.Duration) {
	if pipelineMessagesTotal == nil {
		return
	}
	pipelineMessagesTotal.WithLabelValues(stage, outcome).Inc()
	pipelineMessageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveAnalyzer records one analyzer invocation.
func ObserveAnalyzer(analyzer string, d time.Duration) {
	if analyzerDurationSeconds == nil {
		return
	}
	analyzerDurationSeconds.WithLabelValues(analyzer).Observe(d.Seconds())
}

// IncSubmitted counts an accepted submission.
func IncSubmitted() {
	if analysesSubmittedTotal == nil {
		return
	}
	analysesSubmittedTotal.Inc()
}

// IncCache counts a cache lookup outcome ("hit" or "miss").
func IncCache(result string) {
	if cacheRequestsTotal == nil {
		return
	}
	cacheRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest records request metrics for the HTTP middleware.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, httpStatusClass(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

func httpStatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
