package cache

import (
	"context"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	got, err := store.Lookup(ctx, nil, "zh")
	if err != nil || len(got) != 0 {
		t.Fatalf("Lookup(nil) = %v, %v, want empty map", got, err)
	}

	records := []Record{
		{SourceText: "Hello", TargetLang: "zh", TranslatedText: "你好"},
		{SourceText: "Tampines Mall", TargetLang: "zh", TranslatedText: "淡滨尼商场 Tampines Mall"},
	}
	if err := store.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	// Same key twice leaves one record.
	if err := store.Upsert(ctx, records[:1]); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}

	got, err = store.Lookup(ctx, []string{" Hello", "Hello", "Unknown", ""}, "zh")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(got) != 1 || got["Hello"] != "你好" {
		t.Errorf("Lookup() = %v, want map[Hello:你好]", got)
	}

	got, _ = store.Lookup(ctx, []string{"Hello"}, "en")
	if len(got) != 0 {
		t.Errorf("Lookup(en) = %v, want empty", got)
	}
}
