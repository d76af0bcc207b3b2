package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultTable is the cache table (or collection) name used when none is configured.
const DefaultTable = "translations"

var (
	// ErrInvalidTable is returned when a configured table name is not a plain SQL identifier.
	ErrInvalidTable = errors.New("invalid cache table name")
	// ErrUnknownDriver is returned by Open for an unrecognised driver.
	ErrUnknownDriver = errors.New("unknown cache driver")
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Record is one persisted translation, keyed on (SourceText, TargetLang).
type Record struct {
	SourceText     string
	TargetLang     string
	TranslatedText string
}

// Store is a persistent mapping from (source text, target language) to a translation.
//
// Lookup returns only keys that are present. Lookup errors are returned to the
// caller, who decides how to degrade. Upsert is idempotent on the natural key;
// when the conflict-resolving write fails, implementations retry the same
// payload as a plain insert unless configured for strict upserts.
type Store interface {
	Lookup(ctx context.Context, texts []string, targetLang string) (map[string]string, error)
	Upsert(ctx context.Context, records []Record) error
	Close() error
}

// Config selects and configures a Store backend.
type Config struct {
	// Driver is one of memory, sqlite, postgres, mongo.
	Driver string
	// DSN is the file path (sqlite), connection string (postgres) or URI (mongo).
	DSN string
	// Database is the Mongo database name.
	Database string
	// Table is the cache table or collection name.
	Table string
	// StrictUpsert disables the plain-insert fallback.
	StrictUpsert bool
	Logger       *logrus.Logger
}

// Open creates the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := ValidateTableName(cfg.Table); err != nil {
		return nil, err
	}

	cfg.Logger.WithFields(logrus.Fields{
		"driver":        cfg.Driver,
		"table":         cfg.Table,
		"strict_upsert": cfg.StrictUpsert,
	}).Info("Opening translation cache")

	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3":
		store, err := NewSQLiteStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres", "postgresql":
		store, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "mongo", "mongodb":
		store, err := NewMongoStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

// ValidateTableName reports whether name can be interpolated into SQL as an identifier.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

// lookupKeys trims texts, drops empties and removes duplicates, preserving first-seen order.
func lookupKeys(texts []string) []string {
	seen := make(map[string]struct{}, len(texts))
	keys := make([]string, 0, len(texts))
	for _, text := range texts {
		key := strings.TrimSpace(text)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// validRecords trims every field, drops records with an empty field and
// collapses duplicates on (SourceText, TargetLang), keeping the last one.
func validRecords(records []Record) []Record {
	type key struct{ source, lang string }
	index := make(map[key]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		r = Record{
			SourceText:     strings.TrimSpace(r.SourceText),
			TargetLang:     strings.TrimSpace(r.TargetLang),
			TranslatedText: strings.TrimSpace(r.TranslatedText),
		}
		if r.SourceText == "" || r.TargetLang == "" || r.TranslatedText == "" {
			continue
		}
		k := key{r.SourceText, r.TargetLang}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// chunk splits keys into slices of at most size elements.
func chunk(keys []string, size int) [][]string {
	var out [][]string
	for len(keys) > size {
		out = append(out, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}
