package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps translations in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]string // target_lang -> source_text -> translation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]map[string]string)}
}

func (m *MemoryStore) Lookup(ctx context.Context, texts []string, targetLang string) (map[string]string, error) {
	keys := lookupKeys(texts)
	found := make(map[string]string)
	if len(keys) == 0 {
		return found, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	byLang := m.entries[targetLang]
	for _, key := range keys {
		if translated, ok := byLang[key]; ok {
			found[key] = translated
		}
	}
	return found, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, records []Record) error {
	records = validRecords(records)
	if len(records) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		byLang, ok := m.entries[r.TargetLang]
		if !ok {
			byLang = make(map[string]string)
			m.entries[r.TargetLang] = byLang
		}
		byLang[r.SourceText] = r.TranslatedText
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, byLang := range m.entries {
		n += len(byLang)
	}
	return n
}

func (m *MemoryStore) Close() error { return nil }
