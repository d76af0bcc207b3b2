// Package announce reads community announcements from the records database.
package announce

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Listing limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Announcement is a message published to community members.
type Announcement struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Lister returns the most recent announcements, newest first.
type Lister interface {
	List(ctx context.Context, limit int) ([]Announcement, error)
}

// Repository implements Lister on database/sql.
type Repository struct {
	db     *sql.DB
	driver string
	logger *logrus.Logger
}

// Open connects to the records database. driver is sqlite or postgres.
func Open(ctx context.Context, driver, dsn string, logger *logrus.Logger) (*Repository, error) {
	if logger == nil {
		logger = logrus.New()
	}

	var sqlDriver string
	switch driver {
	case "sqlite":
		sqlDriver = "sqlite3"
	case "postgres":
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported records driver: %s", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open records database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to records database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"driver": driver,
	}).Info("Connected to records database")

	return NewRepository(db, driver, logger), nil
}

// NewRepository wraps an open handle.
func NewRepository(db *sql.DB, driver string, logger *logrus.Logger) *Repository {
	if logger == nil {
		logger = logrus.New()
	}
	return &Repository{db: db, driver: driver, logger: logger}
}

// EnsureSchema creates the announcements table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS announcements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if r.driver == "postgres" {
		schema = `
	CREATE TABLE IF NOT EXISTS announcements (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	}

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create announcements table: %w", err)
	}
	return nil
}

// Create inserts an announcement and returns its ID.
func (r *Repository) Create(ctx context.Context, title, message string) (int64, error) {
	query := `INSERT INTO announcements (title, message) VALUES (?, ?)`
	if r.driver == "postgres" {
		var id int64
		err := r.db.QueryRowContext(ctx,
			`INSERT INTO announcements (title, message) VALUES ($1, $2) RETURNING id`, title, message).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to create announcement: %w", err)
		}
		return id, nil
	}

	res, err := r.db.ExecContext(ctx, query, title, message)
	if err != nil {
		return 0, fmt.Errorf("failed to create announcement: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit announcements, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Announcement, error) {
	limit = ClampLimit(limit)

	query := `SELECT id, title, message, created_at FROM announcements ORDER BY created_at DESC, id DESC LIMIT ?`
	if r.driver == "postgres" {
		query = `SELECT id, title, message, created_at FROM announcements ORDER BY created_at DESC, id DESC LIMIT $1`
	}

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query announcements: %w", err)
	}
	defer rows.Close()

	var out []Announcement
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read announcements: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"count": len(out),
		"limit": limit,
	}).Debug("Listed announcements")

	return out, nil
}

// Close closes the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// ClampLimit applies DefaultLimit and MaxLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// FieldTranslator localises string fields of many records in one call.
type FieldTranslator interface {
	TranslateFieldsBatch(ctx context.Context, rows []map[string]any, targetLang string) []map[string]any
}

// Localize returns items with title and message translated into lang.
// English is the stored language, so "en" returns items untouched.
func Localize(ctx context.Context, tr FieldTranslator, items []Announcement, lang string) []Announcement {
	if lang == "en" || len(items) == 0 {
		return items
	}

	rows := make([]map[string]any, len(items))
	for i, a := range items {
		rows[i] = a.ToFields()
	}
	translated := tr.TranslateFieldsBatch(ctx, rows, lang)

	out := make([]Announcement, len(items))
	for i, a := range items {
		out[i] = a.WithFields(translated[i])
	}
	return out
}

// ToFields exposes the translatable fields of a as a map.
func (a Announcement) ToFields() map[string]any {
	return map[string]any{"title": a.Title, "message": a.Message}
}

// WithFields returns a copy of a with title and message taken from fields.
func (a Announcement) WithFields(fields map[string]any) Announcement {
	if v, ok := fields["title"].(string); ok {
		a.Title = v
	}
	if v, ok := fields["message"].(string); ok {
		a.Message = v
	}
	return a
}
