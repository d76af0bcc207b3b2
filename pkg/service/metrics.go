package service

import (
	"errors"

	"github.com/dasmlab/komuniti/pkg/translate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Text outcomes recorded per input position.
const (
	outcomeEmpty      = "empty"
	outcomeSkipped    = "skipped"
	outcomeCached     = "cached"
	outcomeTranslated = "translated"
	outcomeFallback   = "fallback"
)

var (
	// textsTotal counts input positions by how they were resolved.
	textsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komuniti_texts_total",
			Help: "Total number of texts processed, by outcome",
		},
		[]string{"outcome", "target_lang"},
	)

	// cacheErrorsTotal counts cache store failures that were absorbed.
	cacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komuniti_cache_errors_total",
			Help: "Total number of translation cache errors, by operation",
		},
		[]string{"operation"},
	)

	// fallbacksTotal counts batches that fell back to the original texts.
	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komuniti_translator_fallbacks_total",
			Help: "Total number of batches returned untranslated, by reason",
		},
		[]string{"reason"},
	)

	// translateDuration tracks the end-to-end latency of TranslateTexts.
	translateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "komuniti_translate_duration_seconds",
			Help:    "Duration of TranslateTexts calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target_lang"},
	)

	// dedupKeys tracks how many distinct texts needed translation per call.
	dedupKeys = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "komuniti_translate_unique_texts",
			Help:    "Distinct texts needing translation per call",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
		},
	)
)

// fallbackReason maps a translator error onto a bounded label value.
func fallbackReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, translate.ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, translate.ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, translate.ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, translate.ErrMalformedResponse):
		return "malformed"
	default:
		return "other"
	}
}
