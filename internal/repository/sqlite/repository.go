// Package sqlite is the embedded Store backend. Local files use modernc.org/sqlite;
// libsql:// and wss:// URLs are served by the Turso libsql client.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"github.com/penshort/shortlink/internal/repository"
)

// Repository implements repository.Store on database/sql.
type Repository struct {
	db *sql.DB
}

var _ repository.Store = (*Repository)(nil)

// IsURL reports whether databaseURL should be opened by this backend.
func IsURL(databaseURL string) bool {
	for _, prefix := range []string{"sqlite:", "file:", "libsql://", "wss://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return true
		}
	}
	return strings.HasSuffix(databaseURL, ".db") || databaseURL == ":memory:"
}

// New opens the database, applies the schema and returns a Repository.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	driverName := "sqlite"
	dsn := strings.TrimPrefix(databaseURL, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "sqlite:")
	if strings.Contains(databaseURL, "libsql://") || strings.Contains(databaseURL, "wss://") {
		driverName = "libsql"
		dsn = databaseURL
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driverName == "sqlite" {
		// A single writer connection avoids SQLITE_BUSY and keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS parameter_sets (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1,
		source TEXT NOT NULL DEFAULT '',
		medium TEXT NOT NULL DEFAULT '',
		campaign TEXT NOT NULL DEFAULT '',
		term TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		custom_parameters TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shortlinks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		path TEXT NOT NULL UNIQUE,
		label TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		target_entity_type TEXT,
		target_entity_id TEXT,
		destination_override TEXT,
		parameter_set_id TEXT,
		enabled INTEGER NOT NULL DEFAULT 1,
		click_count INTEGER NOT NULL DEFAULT 0,
		last_accessed INTEGER,
		expires_at INTEGER,
		max_clicks INTEGER NOT NULL DEFAULT 0,
		expire_if_inactive_days INTEGER NOT NULL DEFAULT 0,
		has_broken_destination INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_shortlinks_target ON shortlinks(target_entity_type, target_entity_id);

	CREATE TABLE IF NOT EXISTS click_events (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		shortlink_id INTEGER NOT NULL,
		referrer TEXT,
		user_agent TEXT,
		ip_hash TEXT,
		clicked_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_click_events_shortlink ON click_events(shortlink_id, clicked_at);
	CREATE INDEX IF NOT EXISTS idx_click_events_clicked_at ON click_events(clicked_at);

	CREATE TABLE IF NOT EXISTS targets (
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		bundle TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL DEFAULT '',
		published INTEGER NOT NULL DEFAULT 1,
		canonical_url TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (entity_type, entity_id)
	);
	CREATE INDEX IF NOT EXISTS idx_targets_canonical_url ON targets(canonical_url);

	CREATE TABLE IF NOT EXISTS path_aliases (
		alias TEXT PRIMARY KEY,
		system_path TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_path_aliases_system_path ON path_aliases(system_path);
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *Repository) Close() {
	_ = r.db.Close()
}

// Timestamps are stored as unix milliseconds so both drivers compare them numerically.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation matches the constraint error text both drivers surface.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
