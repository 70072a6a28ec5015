package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS client_storage (
  namespace  TEXT NOT NULL,
  k          TEXT NOT NULL,
  v          TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL,
  PRIMARY KEY (namespace, k)
);
CREATE TABLE IF NOT EXISTS lease_reports (
  id           TEXT PRIMARY KEY,
  user_id      TEXT NOT NULL,
  risk_score   INTEGER NOT NULL,
  clauses      INTEGER NOT NULL,
  body         TEXT NOT NULL,
  generated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lease_reports_user ON lease_reports (user_id, generated_at);`

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// one writer; the cli and the server are the only users
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}
