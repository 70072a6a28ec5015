package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const schema = `
CREATE TABLE IF NOT EXISTS client_storage (
  namespace  VARCHAR(128) NOT NULL,
  k          VARCHAR(128) NOT NULL,
  v          TEXT NOT NULL,
  updated_at DATETIME(3) NOT NULL,
  PRIMARY KEY (namespace, k)
);
CREATE TABLE IF NOT EXISTS lease_reports (
  id           CHAR(36) NOT NULL PRIMARY KEY,
  user_id      VARCHAR(128) NOT NULL,
  risk_score   INT NOT NULL,
  clauses      INT NOT NULL,
  body         MEDIUMTEXT NOT NULL,
  generated_at DATETIME(3) NOT NULL,
  INDEX idx_lease_reports_user (user_id, generated_at)
);`

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the tables when missing. The driver needs
// multiStatements off, so statements run one by one.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range splitStatements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
