package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
)

// ReportRepository archives published reports as JSON rows.
type ReportRepository struct{ db *sql.DB }

func NewReportRepository(db *sql.DB) *ReportRepository { return &ReportRepository{db: db} }

// Put upserts r and returns its row location.
func (r *ReportRepository) Put(ctx context.Context, identity string, rep *lease.Report) (string, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	const q = `
INSERT INTO lease_reports (id, user_id, risk_score, clauses, body, generated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
 risk_score = VALUES(risk_score),
 clauses = VALUES(clauses),
 body = VALUES(body)`
	_, err = r.db.ExecContext(ctx, q, rep.ID, identity, rep.RiskScore, len(rep.Clauses), body, rep.GeneratedAt.UTC())
	if err != nil {
		return "", err
	}
	return "mysql://lease_reports/" + rep.ID, nil
}

// Get returns nil when identity owns no report with id.
func (r *ReportRepository) Get(ctx context.Context, identity, id string) (*lease.Report, error) {
	var body []byte
	err := r.db.QueryRowContext(ctx, `SELECT body FROM lease_reports WHERE id = ? AND user_id = ?`, id, identity).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rep lease.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &rep, nil
}

// ListByIdentity returns the newest reports first.
func (r *ReportRepository) ListByIdentity(ctx context.Context, identity string, limit int) ([]lease.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT body FROM lease_reports
WHERE user_id = ?
ORDER BY generated_at DESC
LIMIT ?`, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lease.Report
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rep lease.Report
		if err := json.Unmarshal(body, &rep); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}
