package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// KVStore keeps client storage rows scoped by namespace.
type KVStore struct {
	db        *sql.DB
	namespace string
}

func NewKVStore(db *sql.DB, namespace string) *KVStore {
	return &KVStore{db: db, namespace: namespace}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	const q = `SELECT v FROM client_storage WHERE namespace = ? AND k = ?`
	var v string
	err := s.db.QueryRowContext(ctx, q, s.namespace, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO client_storage (namespace, k, v, updated_at)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = VALUES(updated_at)`
	_, err := s.db.ExecContext(ctx, q, s.namespace, key, value, time.Now().UTC())
	return err
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM client_storage WHERE namespace = ? AND k = ?`, s.namespace, key)
	return err
}

func splitStatements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
