package translate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Translation request metrics
	translationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komuniti_translator_requests_total",
			Help: "Total number of batch requests sent to the translation engine",
		},
		[]string{"engine", "status"},
	)

	translationRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "komuniti_translator_request_duration_seconds",
			Help:    "Duration of translation engine requests in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"engine", "status"},
	)

	translationBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "komuniti_translator_batch_size",
			Help:    "Number of texts per translation engine request",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"engine"},
	)

	rateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "komuniti_translator_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the client-side rate limiter",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"engine"},
	)
)

// MetricsCollector records metrics for one translation engine.
type MetricsCollector struct {
	engine string
}

// NewMetricsCollector creates a new metrics collector for an engine.
func NewMetricsCollector(engine string) *MetricsCollector {
	return &MetricsCollector{engine: engine}
}

// RecordTranslationRequest records metrics for a batch translation request.
func (mc *MetricsCollector) RecordTranslationRequest(duration time.Duration, success bool, batchSize int) {
	status := "success"
	if !success {
		status = "error"
	}

	translationRequestsTotal.WithLabelValues(mc.engine, status).Inc()
	translationRequestDuration.WithLabelValues(mc.engine, status).Observe(duration.Seconds())
	translationBatchSize.WithLabelValues(mc.engine).Observe(float64(batchSize))
}

// RecordRateLimitWait records time spent blocked on the rate limiter.
func (mc *MetricsCollector) RecordRateLimitWait(duration time.Duration) {
	rateLimitWait.WithLabelValues(mc.engine).Observe(duration.Seconds())
}
