package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dasmlab/komuniti/pkg/cache"
	"github.com/dasmlab/komuniti/pkg/translate"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/dasmlab/komuniti/pkg/service")

// TranslationService resolves batches of texts against the translation cache
// and falls back to the machine translator for misses.
//
// It holds no per-request state and is safe for concurrent use.
type TranslationService struct {
	// Store is the translation cache.
	Store cache.Store

	// Translator is the machine translation backend. Nil runs the service in
	// pass-through mode: cache hits are still served, misses keep their original text.
	Translator translate.Translator

	// Logger for service operations.
	Logger *logrus.Logger
}

// NewTranslationService creates a new TranslationService instance.
func NewTranslationService(store cache.Store, translator translate.Translator, logger *logrus.Logger) *TranslationService {
	if logger == nil {
		logger = logrus.New()
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}

	return &TranslationService{
		Store:      store,
		Translator: translator,
		Logger:     logger,
	}
}

// TranslatorName reports the configured engine, or "disabled".
func (s *TranslationService) TranslatorName() string {
	if s.Translator == nil {
		return "disabled"
	}
	return s.Translator.Name()
}

// batch groups the positions of a request under their dedup key.
type batch struct {
	keys    []string         // distinct trimmed texts, first-seen order
	indices map[string][]int // key -> every position carrying it
}

func (b *batch) add(key string, i int) {
	if _, ok := b.indices[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.indices[key] = append(b.indices[key], i)
}

// fill writes value into every position that carries key.
func (b *batch) fill(results []string, key, value string) {
	for _, i := range b.indices[key] {
		results[i] = value
	}
}

// TranslateTexts returns one entry per input position, in order.
//
// Empty or whitespace-only inputs yield "". Texts already in targetLang are
// returned unchanged unless force is set. Everything else is served from the
// cache when possible and translated in a single batch otherwise. Failures
// never surface: a position that cannot be translated keeps its original text.
// An unsupported targetLang returns a copy of texts without touching the
// cache or the translator.
func (s *TranslationService) TranslateTexts(ctx context.Context, texts []string, targetLang string, force bool) []string {
	results := make([]string, len(texts))
	copy(results, texts)

	if !translate.IsSupported(targetLang) {
		s.Logger.WithFields(logrus.Fields{
			"target_lang": targetLang,
			"count":       len(texts),
		}).Debug("Unsupported target language, returning texts unchanged")
		return results
	}

	start := time.Now()
	defer func() {
		translateDuration.WithLabelValues(targetLang).Observe(time.Since(start).Seconds())
	}()

	b := &batch{indices: make(map[string][]int)}
	for i, text := range texts {
		key := strings.TrimSpace(text)
		if key == "" {
			results[i] = ""
			textsTotal.WithLabelValues(outcomeEmpty, targetLang).Inc()
			continue
		}
		if !translate.NeedsTranslation(text, targetLang, force) {
			textsTotal.WithLabelValues(outcomeSkipped, targetLang).Inc()
			continue
		}
		b.add(key, i)
	}

	if len(b.keys) == 0 {
		return results
	}
	dedupKeys.Observe(float64(len(b.keys)))

	// The API call and the cache write run to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "service.TranslateTexts")
	defer span.End()
	span.SetAttributes(
		attribute.String("target_lang", targetLang),
		attribute.Int("texts", len(texts)),
		attribute.Int("unique_texts", len(b.keys)),
		attribute.Bool("force", force),
	)

	misses := s.resolve(ctx, b, targetLang, results)
	cached := len(b.keys) - len(misses)

	var records []cache.Record
	if len(misses) > 0 {
		records = s.translateMisses(ctx, b, misses, targetLang, results)
		s.persist(ctx, records)
	}

	span.SetAttributes(
		attribute.Int("cache_hits", cached),
		attribute.Int("translated", len(records)),
	)
	s.Logger.WithFields(logrus.Fields{
		"target_lang":  targetLang,
		"texts":        len(texts),
		"unique_texts": len(b.keys),
		"cache_hits":   cached,
		"cache_misses": len(misses),
		"persisted":    len(records),
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("Translation batch resolved")

	return results
}

// resolve is the read phase: one cache lookup for every dedup key. Hits are
// fanned out into results; the remaining keys are returned in order.
// A lookup failure counts as zero hits.
func (s *TranslationService) resolve(ctx context.Context, b *batch, targetLang string, results []string) []string {
	ctx, span := tracer.Start(ctx, "service.resolve")
	defer span.End()

	hits, err := s.Store.Lookup(ctx, b.keys, targetLang)
	if err != nil {
		span.RecordError(err)
		cacheErrorsTotal.WithLabelValues("lookup").Inc()
		s.Logger.WithError(err).WithFields(logrus.Fields{
			"target_lang": targetLang,
			"keys":        len(b.keys),
		}).Warn("Translation cache lookup failed, treating all texts as misses")
		hits = nil
	}

	misses := make([]string, 0, len(b.keys))
	for _, key := range b.keys {
		translated, ok := hits[key]
		if !ok {
			misses = append(misses, key)
			continue
		}
		b.fill(results, key, translated)
		textsTotal.WithLabelValues(outcomeCached, targetLang).Add(float64(len(b.indices[key])))
	}

	span.SetAttributes(attribute.Int("hits", len(b.keys)-len(misses)))
	return misses
}

// translateMisses sends every miss to the translator in one call and fills
// their positions. It returns the records worth persisting: translations that
// differ from their source. On failure positions keep their original text and
// nothing is returned.
func (s *TranslationService) translateMisses(ctx context.Context, b *batch, misses []string, targetLang string, results []string) []cache.Record {
	ctx, span := tracer.Start(ctx, "service.translate")
	defer span.End()
	span.SetAttributes(attribute.Int("misses", len(misses)))

	translated, err := s.callTranslator(ctx, misses, targetLang)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "translation failed")
		fallbacksTotal.WithLabelValues(fallbackReason(err)).Inc()
		s.Logger.WithError(err).WithFields(logrus.Fields{
			"target_lang": targetLang,
			"misses":      len(misses),
		}).Warn("Translation failed, returning original texts")
		for _, key := range misses {
			textsTotal.WithLabelValues(outcomeFallback, targetLang).Add(float64(len(b.indices[key])))
		}
		return nil
	}

	records := make([]cache.Record, 0, len(misses))
	for j, key := range misses {
		value := strings.TrimSpace(translated[j])
		if value == "" {
			// Positions keep their originals; an empty answer is not worth caching.
			textsTotal.WithLabelValues(outcomeFallback, targetLang).Add(float64(len(b.indices[key])))
			continue
		}
		b.fill(results, key, value)
		textsTotal.WithLabelValues(outcomeTranslated, targetLang).Add(float64(len(b.indices[key])))
		if value != key {
			records = append(records, cache.Record{
				SourceText:     key,
				TargetLang:     targetLang,
				TranslatedText: value,
			})
		}
	}
	return records
}

func (s *TranslationService) callTranslator(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	if s.Translator == nil {
		return nil, fmt.Errorf("%w: no translator configured", translate.ErrNotConfigured)
	}

	translated, err := s.Translator.TranslateBatch(ctx, texts, targetLang)
	if err != nil {
		return nil, err
	}
	if len(translated) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d texts, got %d", translate.ErrLengthMismatch, len(texts), len(translated))
	}
	return translated, nil
}

// persist is the write phase. Failures are logged and never reach the caller.
func (s *TranslationService) persist(ctx context.Context, records []cache.Record) {
	if len(records) == 0 {
		return
	}

	ctx, span := tracer.Start(ctx, "service.persist")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))

	if err := s.Store.Upsert(ctx, records); err != nil {
		span.RecordError(err)
		cacheErrorsTotal.WithLabelValues("upsert").Inc()
		s.Logger.WithError(err).WithFields(logrus.Fields{
			"records": len(records),
		}).Error("Failed to store translations in cache")
	}
}

// TranslateFields returns a copy of fields with every non-empty string value
// translated into targetLang. Other values are carried over untouched.
func (s *TranslationService) TranslateFields(ctx context.Context, fields map[string]any, targetLang string) map[string]any {
	out := s.TranslateFieldsBatch(ctx, []map[string]any{fields}, targetLang)
	return out[0]
}

// TranslateFieldsBatch localises many records with a single TranslateTexts call.
// Each returned map is a fresh copy; the inputs are not modified.
func (s *TranslationService) TranslateFieldsBatch(ctx context.Context, rows []map[string]any, targetLang string) []map[string]any {
	type slot struct {
		row int
		key string
	}

	out := make([]map[string]any, len(rows))
	var texts []string
	var slots []slot

	for r, fields := range rows {
		copied := make(map[string]any, len(fields))
		keys := make([]string, 0, len(fields))
		for k, v := range fields {
			copied[k] = v
			keys = append(keys, k)
		}
		out[r] = copied

		sort.Strings(keys)
		for _, k := range keys {
			str, ok := fields[k].(string)
			if !ok || strings.TrimSpace(str) == "" {
				continue
			}
			texts = append(texts, str)
			slots = append(slots, slot{row: r, key: k})
		}
	}

	if len(texts) == 0 {
		return out
	}

	translated := s.TranslateTexts(ctx, texts, targetLang, false)
	for i, sl := range slots {
		out[sl.row][sl.key] = translated[i]
	}
	return out
}
