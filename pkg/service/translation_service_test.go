package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/dasmlab/komuniti/pkg/cache"
	"github.com/dasmlab/komuniti/pkg/translate"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeStore wraps a MemoryStore and records every call.
type fakeStore struct {
	*cache.MemoryStore

	mu        sync.Mutex
	lookups   [][]string
	upserts   [][]cache.Record
	lookupErr error
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: cache.NewMemoryStore()}
}

func (f *fakeStore) Lookup(ctx context.Context, texts []string, targetLang string) (map[string]string, error) {
	f.mu.Lock()
	f.lookups = append(f.lookups, append([]string(nil), texts...))
	f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.MemoryStore.Lookup(ctx, texts, targetLang)
}

func (f *fakeStore) Upsert(ctx context.Context, records []cache.Record) error {
	f.mu.Lock()
	f.upserts = append(f.upserts, append([]cache.Record(nil), records...))
	f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.MemoryStore.Upsert(ctx, records)
}

// fakeTranslator prefixes every text with its target language.
type fakeTranslator struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	fn    func(texts []string, targetLang string) []string
}

func (f *fakeTranslator) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.fn != nil {
		return f.fn(texts, targetLang), nil
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = targetLang + ":" + t
	}
	return out, nil
}

func (f *fakeTranslator) CheckHealth(ctx context.Context) error { return nil }
func (f *fakeTranslator) Name() string                        { return "fake" }

func newTestService(store *fakeStore, tr translate.Translator) *TranslationService {
	return NewTranslationService(store, tr, quietLogger())
}

func assertResults(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("results = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("results[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTranslateTexts_PreservesOrderAndShape(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	texts := []string{"Hello", "", "你好", "  ", "World"}
	got := svc.TranslateTexts(context.Background(), texts, "zh", false)

	assertResults(t, got, []string{"zh:Hello", "", "你好", "", "zh:World"})
	if len(tr.calls) != 1 {
		t.Fatalf("translator calls = %d, want 1", len(tr.calls))
	}
	assertResults(t, tr.calls[0], []string{"Hello", "World"})
}

func TestTranslateTexts_EmptyInputsMakeNoCalls(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	got := svc.TranslateTexts(context.Background(), []string{"", " ", "\n\t"}, "zh", true)

	assertResults(t, got, []string{"", "", ""})
	if len(store.lookups) != 0 || len(tr.calls) != 0 {
		t.Errorf("lookups = %d, translator calls = %d, want 0 and 0", len(store.lookups), len(tr.calls))
	}

	if got := svc.TranslateTexts(context.Background(), nil, "zh", false); len(got) != 0 {
		t.Errorf("TranslateTexts(nil) = %v, want empty", got)
	}
}

func TestTranslateTexts_SameLanguageSkipped(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	got := svc.TranslateTexts(context.Background(), []string{"Hello", "Bus stop 12345"}, "en", false)

	assertResults(t, got, []string{"Hello", "Bus stop 12345"})
	if len(store.lookups) != 0 || len(tr.calls) != 0 {
		t.Errorf("lookups = %d, translator calls = %d, want 0 and 0", len(store.lookups), len(tr.calls))
	}
}

func TestTranslateTexts_Deduplicates(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	got := svc.TranslateTexts(context.Background(), []string{"Hello", " Hello ", "World", "Hello"}, "zh", false)

	assertResults(t, got, []string{"zh:Hello", "zh:Hello", "zh:World", "zh:Hello"})
	if len(store.lookups) != 1 {
		t.Fatalf("lookups = %d, want 1", len(store.lookups))
	}
	assertResults(t, store.lookups[0], []string{"Hello", "World"})
	if len(tr.calls) != 1 {
		t.Fatalf("translator calls = %d, want 1", len(tr.calls))
	}
	assertResults(t, tr.calls[0], []string{"Hello", "World"})
	if store.Len() != 2 {
		t.Errorf("stored records = %d, want 2", store.Len())
	}
}

func TestTranslateTexts_CacheHitShortCircuits(t *testing.T) {
	store := newFakeStore()
	store.MemoryStore.Upsert(context.Background(), []cache.Record{
		{SourceText: "Tampines Mall", TargetLang: "zh", TranslatedText: "淡滨尼商场 Tampines Mall"},
	})
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	got := svc.TranslateTexts(context.Background(), []string{"Tampines Mall", "Tampines Mall"}, "zh", false)

	assertResults(t, got, []string{"淡滨尼商场 Tampines Mall", "淡滨尼商场 Tampines Mall"})
	if len(tr.calls) != 0 {
		t.Errorf("translator calls = %d, want 0", len(tr.calls))
	}
	if len(store.upserts) != 0 {
		t.Errorf("upserts = %d, want 0", len(store.upserts))
	}
}

func TestTranslateTexts_PartialHits(t *testing.T) {
	store := newFakeStore()
	store.MemoryStore.Upsert(context.Background(), []cache.Record{
		{SourceText: "Hello", TargetLang: "zh", TranslatedText: "你好"},
	})
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	got := svc.TranslateTexts(context.Background(), []string{"Hello", "World"}, "zh", false)

	assertResults(t, got, []string{"你好", "zh:World"})
	if len(tr.calls) != 1 {
		t.Fatalf("translator calls = %d, want 1", len(tr.calls))
	}
	assertResults(t, tr.calls[0], []string{"World"})
	if len(store.upserts) != 1 || len(store.upserts[0]) != 1 || store.upserts[0][0].SourceText != "World" {
		t.Errorf("upserts = %+v, want one record for World", store.upserts)
	}
}

func TestTranslateTexts_Force(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{fn: func(texts []string, _ string) []string {
		out := make([]string, len(texts))
		for i, text := range texts {
			out[i] = strings.ToUpper(text)
		}
		return out
	}}
	svc := newTestService(store, tr)

	got := svc.TranslateTexts(context.Background(), []string{"hello"}, "en", true)

	assertResults(t, got, []string{"HELLO"})
	if len(tr.calls) != 1 {
		t.Errorf("translator calls = %d, want 1", len(tr.calls))
	}
}

func TestTranslateTexts_TranslatorFailure(t *testing.T) {
	tests := []struct {
		name string
		tr   translate.Translator
	}{
		{"service unavailable", &fakeTranslator{err: fmt.Errorf("%w: 503", translate.ErrServiceUnavailable)}},
		{"malformed response", &fakeTranslator{err: translate.ErrMalformedResponse}},
		{"short response", &fakeTranslator{fn: func(texts []string, _ string) []string { return texts[:1] }}},
		{"no translator", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestService(store, tt.tr)

			texts := []string{"Foo", "Bar", "Foo"}
			got := svc.TranslateTexts(context.Background(), texts, "zh", false)

			assertResults(t, got, texts)
			if len(store.upserts) != 0 {
				t.Errorf("upserts = %+v, want none", store.upserts)
			}
			if store.Len() != 0 {
				t.Errorf("stored records = %d, want 0", store.Len())
			}
		})
	}
}

func TestTranslateTexts_FailureKeepsPerPositionOriginal(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeTranslator{err: translate.ErrServiceUnavailable})

	texts := []string{"Foo", " Foo ", "Foo\n"}
	got := svc.TranslateTexts(context.Background(), texts, "zh", false)

	assertResults(t, got, texts)
}

func TestTranslateTexts_IdentityNotCached(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{fn: func(texts []string, _ string) []string {
		out := make([]string, len(texts))
		for i, text := range texts {
			if text == "Foo" {
				out[i] = "Foo"
			} else {
				out[i] = "zh:" + text
			}
		}
		return out
	}}
	svc := newTestService(store, tr)

	got := svc.TranslateTexts(context.Background(), []string{"Foo", "Bar"}, "zh", false)

	assertResults(t, got, []string{"Foo", "zh:Bar"})
	if len(store.upserts) != 1 || len(store.upserts[0]) != 1 || store.upserts[0][0].SourceText != "Bar" {
		t.Errorf("upserts = %+v, want only Bar", store.upserts)
	}
}

func TestTranslateTexts_EmptyTranslationKeepsOriginal(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{fn: func(texts []string, _ string) []string {
		return []string{"", "zh:Bar"}
	}}
	svc := newTestService(store, tr)

	got := svc.TranslateTexts(context.Background(), []string{"Foo", "Bar"}, "zh", false)

	assertResults(t, got, []string{"Foo", "zh:Bar"})
	if store.Len() != 1 {
		t.Errorf("stored records = %d, want 1", store.Len())
	}
}

func TestTranslateTexts_UnsupportedTarget(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	texts := []string{"Hello", "", "你好"}
	got := svc.TranslateTexts(context.Background(), texts, "fr", true)

	assertResults(t, got, texts)
	if len(store.lookups) != 0 || len(tr.calls) != 0 {
		t.Errorf("lookups = %d, translator calls = %d, want 0 and 0", len(store.lookups), len(tr.calls))
	}

	got[0] = "mutated"
	if texts[0] != "Hello" {
		t.Error("TranslateTexts() must return a copy, not the input slice")
	}
}

func TestTranslateTexts_CacheErrorsDegrade(t *testing.T) {
	store := newFakeStore()
	store.lookupErr = errors.New("connection refused")
	store.upsertErr = errors.New("disk full")
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	got := svc.TranslateTexts(context.Background(), []string{"Hello"}, "zh", false)

	assertResults(t, got, []string{"zh:Hello"})
	if len(tr.calls) != 1 {
		t.Errorf("translator calls = %d, want 1", len(tr.calls))
	}
	if len(store.upserts) != 1 {
		t.Errorf("upserts = %d, want 1 attempt", len(store.upserts))
	}
}

func TestTranslateTexts_CancelledContext(t *testing.T) {
	store := newFakeStore()
	var sawCancel bool
	tr := &ctxTranslator{onCall: func(ctx context.Context) { sawCancel = ctx.Err() != nil }}
	svc := newTestService(store, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := svc.TranslateTexts(ctx, []string{"Hello"}, "zh", false)

	assertResults(t, got, []string{"zh:Hello"})
	if sawCancel {
		t.Error("translator saw a cancelled context")
	}
	if store.Len() != 1 {
		t.Errorf("stored records = %d, want 1", store.Len())
	}
}

type ctxTranslator struct {
	onCall func(ctx context.Context)
}

func (c *ctxTranslator) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	c.onCall(ctx)
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = targetLang + ":" + t
	}
	return out, nil
}

func (c *ctxTranslator) CheckHealth(ctx context.Context) error { return nil }
func (c *ctxTranslator) Name() string                        { return "ctx" }

func TestTranslateTexts_IdempotentUpsert(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	svc.TranslateTexts(context.Background(), []string{"Hello"}, "zh", false)
	// Simulates a concurrent request that missed before the first write landed.
	store.MemoryStore.Upsert(context.Background(), []cache.Record{
		{SourceText: "Hello", TargetLang: "zh", TranslatedText: "zh:Hello"},
	})

	if store.Len() != 1 {
		t.Errorf("stored records = %d, want 1", store.Len())
	}
}

func TestTranslateFields(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	fields := map[string]any{
		"title":   "Block party",
		"message": "Meet at Bishan MRT",
		"empty":   "  ",
		"count":   42,
		"nil":     nil,
	}
	got := svc.TranslateFields(context.Background(), fields, "zh")

	if got["title"] != "zh:Block party" || got["message"] != "zh:Meet at Bishan MRT" {
		t.Errorf("TranslateFields() = %v", got)
	}
	if got["empty"] != "  " || got["count"] != 42 || got["nil"] != nil {
		t.Errorf("TranslateFields() changed untranslatable values: %v", got)
	}
	if fields["title"] != "Block party" {
		t.Error("TranslateFields() must not modify its input")
	}
	if len(tr.calls) != 1 {
		t.Errorf("translator calls = %d, want 1", len(tr.calls))
	}
}

func TestTranslateFieldsBatch(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTranslator{}
	svc := newTestService(store, tr)

	rows := []map[string]any{
		{"title": "Hello", "message": "World"},
		{"title": "Hello", "message": ""},
		{"id": 3},
	}
	got := svc.TranslateFieldsBatch(context.Background(), rows, "zh")

	if len(got) != 3 {
		t.Fatalf("TranslateFieldsBatch() returned %d rows, want 3", len(got))
	}
	if got[0]["title"] != "zh:Hello" || got[0]["message"] != "zh:World" {
		t.Errorf("row 0 = %v", got[0])
	}
	if got[1]["title"] != "zh:Hello" || got[1]["message"] != "" {
		t.Errorf("row 1 = %v", got[1])
	}
	if got[2]["id"] != 3 {
		t.Errorf("row 2 = %v", got[2])
	}
	if len(tr.calls) != 1 {
		t.Fatalf("translator calls = %d, want 1", len(tr.calls))
	}
	if len(tr.calls[0]) != 2 {
		t.Errorf("translator texts = %v, want 2 distinct", tr.calls[0])
	}
}

func TestTranslatorName(t *testing.T) {
	if got := newTestService(newFakeStore(), nil).TranslatorName(); got != "disabled" {
		t.Errorf("TranslatorName() = %q, want disabled", got)
	}
	if got := newTestService(newFakeStore(), &fakeTranslator{}).TranslatorName(); got != "fake" {
		t.Errorf("TranslatorName() = %q, want fake", got)
	}
}

func TestFallbackReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", translate.ErrNotConfigured), "not_configured"},
		{fmt.Errorf("x: %w", translate.ErrServiceUnavailable), "unavailable"},
		{translate.ErrLengthMismatch, "length_mismatch"},
		{translate.ErrMalformedResponse, "malformed"},
		{errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		if got := fallbackReason(tt.err); got != tt.want {
			t.Errorf("fallbackReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestTranslateRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     TranslateRequest
		wantErr bool
	}{
		{"valid", TranslateRequest{Texts: []string{"Hello"}, TargetLang: "zh"}, false},
		{"empty strings allowed", TranslateRequest{Texts: []string{"", ""}, TargetLang: "en"}, false},
		{"nil texts", TranslateRequest{TargetLang: "zh"}, true},
		{"empty texts", TranslateRequest{Texts: []string{}, TargetLang: "zh"}, true},
		{"bad lang", TranslateRequest{Texts: []string{"Hello"}, TargetLang: "fr"}, true},
		{"missing lang", TranslateRequest{Texts: []string{"Hello"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}
