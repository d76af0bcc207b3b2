package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// sqliteMaxParams keeps IN lists well under SQLITE_MAX_VARIABLE_NUMBER.
const sqliteMaxParams = 500

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	strict bool
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the SQLite database at cfg.DSN.
func NewSQLiteStore(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := ValidateTableName(cfg.Table); err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		cfg.DSN = "./data/translations.db"
	}

	dsn := sqliteDSN(cfg.DSN)
	if !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		table:  cfg.Table,
		strict: cfg.StrictUpsert,
		logger: cfg.Logger,
	}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// sqliteDSN appends the connection pragmas to dsn. A plain :memory: database
// is private to one connection, so it becomes a uniquely named shared-cache
// database that every pooled connection sees.
func sqliteDSN(dsn string) string {
	if dsn == ":memory:" {
		dsn = "file:komuniti-" + uuid.NewString() + "?mode=memory&cache=shared"
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_text TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_lang ON %[1]s(target_lang);
	`, s.table)

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	uniq := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_%[1]s_source_lang ON %[1]s(source_text, target_lang)`,
		s.table)
	if _, err := s.db.ExecContext(ctx, uniq); err != nil {
		// Legacy duplicates block the index; upserts then go through the insert fallback.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"table": s.table,
		}).Warn("Could not create unique index on translation cache; duplicate rows present")
	}
	return nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, texts []string, targetLang string) (map[string]string, error) {
	keys := lookupKeys(texts)
	found := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	for _, batch := range chunk(keys, sqliteMaxParams) {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		query := fmt.Sprintf(
			`SELECT source_text, translated_text FROM %s WHERE target_lang = ? AND source_text IN (%s) ORDER BY id`,
			s.table, placeholders)

		args := make([]interface{}, 0, len(batch)+1)
		args = append(args, targetLang)
		for _, k := range batch {
			args = append(args, k)
		}

		if err := s.scanInto(ctx, found, query, args...); err != nil {
			return nil, err
		}
	}

	return found, nil
}

func (s *SQLiteStore) scanInto(ctx context.Context, found map[string]string, query string, args ...interface{}) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query translations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source, translated string
		if err := rows.Scan(&source, &translated); err != nil {
			return fmt.Errorf("failed to scan translation: %w", err)
		}
		// Rows come back oldest first, so the newest duplicate wins.
		found[source] = translated
	}
	return rows.Err()
}

func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	records = validRecords(records)
	if len(records) == 0 {
		return nil
	}

	upsert := fmt.Sprintf(`
		INSERT INTO %s (source_text, target_lang, translated_text)
		VALUES (?, ?, ?)
		ON CONFLICT(source_text, target_lang) DO UPDATE SET
			translated_text = excluded.translated_text,
			updated_at = CURRENT_TIMESTAMP`, s.table)

	err := s.writeAll(ctx, upsert, records)
	if err == nil {
		return nil
	}
	if s.strict {
		return fmt.Errorf("failed to upsert translations: %w", err)
	}

	s.logger.WithError(err).WithFields(logrus.Fields{
		"table":   s.table,
		"records": len(records),
	}).Warn("Upsert failed, falling back to plain insert")

	insert := fmt.Sprintf(
		`INSERT INTO %s (source_text, target_lang, translated_text) VALUES (?, ?, ?)`, s.table)
	if err := s.writeAll(ctx, insert, records); err != nil {
		return fmt.Errorf("failed to insert translations: %w", err)
	}
	return nil
}

// writeAll executes stmt once per record inside a single transaction.
func (s *SQLiteStore) writeAll(ctx context.Context, stmt string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer prepared.Close()

	for _, r := range records {
		if _, err := prepared.ExecContext(ctx, r.SourceText, r.TargetLang, r.TranslatedText); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DB exposes the underlying handle for maintenance tooling and tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
