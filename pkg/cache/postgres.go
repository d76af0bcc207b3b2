package cache

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// PostgresStore implements Store on PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string
	strict bool
	logger *logrus.Logger
}

// NewPostgresStore connects to cfg.DSN and ensures the cache table exists.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := ValidateTableName(cfg.Table); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{
		pool:   pool,
		table:  cfg.Table,
		strict: cfg.StrictUpsert,
		logger: cfg.Logger,
	}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (p *PostgresStore) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id BIGSERIAL PRIMARY KEY,
		source_text TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, p.table)

	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return err
	}

	uniq := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_%[1]s_source_lang ON %[1]s (source_text, target_lang)`,
		p.table)
	if _, err := p.pool.Exec(ctx, uniq); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"table": p.table,
		}).Warn("Could not create unique index on translation cache; duplicate rows present")
	}
	return nil
}

func (p *PostgresStore) Lookup(ctx context.Context, texts []string, targetLang string) (map[string]string, error) {
	keys := lookupKeys(texts)
	found := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	query := fmt.Sprintf(
		`SELECT source_text, translated_text FROM %s WHERE target_lang = $1 AND source_text = ANY($2) ORDER BY id`,
		p.table)

	rows, err := p.pool.Query(ctx, query, targetLang, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query translations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source, translated string
		if err := rows.Scan(&source, &translated); err != nil {
			return nil, fmt.Errorf("failed to scan translation: %w", err)
		}
		found[source] = translated
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read translations: %w", err)
	}

	return found, nil
}

func (p *PostgresStore) Upsert(ctx context.Context, records []Record) error {
	records = validRecords(records)
	if len(records) == 0 {
		return nil
	}

	sources := make([]string, len(records))
	langs := make([]string, len(records))
	translations := make([]string, len(records))
	for i, r := range records {
		sources[i] = r.SourceText
		langs[i] = r.TargetLang
		translations[i] = r.TranslatedText
	}

	upsert := fmt.Sprintf(`
		INSERT INTO %s (source_text, target_lang, translated_text)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[])
		ON CONFLICT (source_text, target_lang) DO UPDATE SET
			translated_text = EXCLUDED.translated_text,
			updated_at = now()`, p.table)

	_, err := p.pool.Exec(ctx, upsert, sources, langs, translations)
	if err == nil {
		return nil
	}
	if p.strict {
		return fmt.Errorf("failed to upsert translations: %w", err)
	}

	p.logger.WithError(err).WithFields(logrus.Fields{
		"table":   p.table,
		"records": len(records),
	}).Warn("Upsert failed, falling back to plain insert")

	insert := fmt.Sprintf(`
		INSERT INTO %s (source_text, target_lang, translated_text)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[])`, p.table)
	if _, err := p.pool.Exec(ctx, insert, sources, langs, translations); err != nil {
		return fmt.Errorf("failed to insert translations: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
