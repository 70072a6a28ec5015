package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
)

// ReportRepository archives published reports in the local database.
type ReportRepository struct{ db *sql.DB }

func NewReportRepository(db *sql.DB) *ReportRepository { return &ReportRepository{db: db} }

func (r *ReportRepository) Put(ctx context.Context, identity string, rep *lease.Report) (string, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	const q = `
INSERT INTO lease_reports (id, user_id, risk_score, clauses, body, generated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
 risk_score = excluded.risk_score,
 clauses = excluded.clauses,
 body = excluded.body;`
	_, err = r.db.ExecContext(ctx, q, rep.ID, identity, rep.RiskScore, len(rep.Clauses), string(body), rep.GeneratedAt.UTC())
	if err != nil {
		return "", err
	}
	return "sqlite://lease_reports/" + rep.ID, nil
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
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rep lease.Report
		if err := json.Unmarshal([]byte(body), &rep); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// Get returns nil when identity owns no report with id.
func (r *ReportRepository) Get(ctx context.Context, identity, id string) (*lease.Report, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM lease_reports WHERE id = ? AND user_id = ?`, id, identity).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rep lease.Report
	if err := json.Unmarshal([]byte(body), &rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &rep, nil
}
