package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	username    TEXT NOT NULL DEFAULT '',
	locale      TEXT NOT NULL DEFAULT '',
	first_seen  TEXT NOT NULL,
	last_seen   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_facts (
	user_id     TEXT NOT NULL,
	key         TEXT NOT NULL,
	value       TEXT NOT NULL,
	confidence  REAL NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (user_id, key)
);
CREATE INDEX IF NOT EXISTS idx_user_facts_rank ON user_facts (user_id, confidence DESC, updated_at DESC);

CREATE TABLE IF NOT EXISTS files (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	size        INTEGER NOT NULL DEFAULT 0,
	chunks      INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_user_created ON files (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	severity    TEXT NOT NULL DEFAULT 'info',
	details     TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user_created ON audit_logs (user_id, created_at DESC);
`

// OpenSQLite opens or creates the local single-file database and applies
// its schema.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}

	slog.Info("opened SQLite database", "path", path)
	return db, nil
}
