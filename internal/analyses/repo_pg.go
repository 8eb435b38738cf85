package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new analysis result.
func (r *PGRepo) Create(ctx context.Context, res Result) error {
	const query = `
INSERT INTO analysis_results (id, deal_id, document_id, job_type, result, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5::jsonb, now())`

	payload, err := json.Marshal(res.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query, res.ID, res.DealID, res.DocumentID, res.JobType, payload)
	return err
}

// LatestByDeal returns the newest stored result for a deal.
func (r *PGRepo) LatestByDeal(ctx context.Context, dealID string) (Result, error) {
	const query = `
SELECT id, deal_id, COALESCE(document_id::text, ''), job_type, result, created_at
FROM analysis_results
WHERE deal_id = $1
ORDER BY created_at DESC
LIMIT 1`

	var res Result
	var payload []byte
	err := r.DB.QueryRowContext(ctx, query, dealID).Scan(
		&res.ID, &res.DealID, &res.DocumentID, &res.JobType, &payload, &res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if err := json.Unmarshal(payload, &res.Result); err != nil {
		res.Result = nil
	}
	return res, nil
}

// HasResultSince reports whether a result was stored for the deal at or
// after the given instant.
func (r *PGRepo) HasResultSince(ctx context.Context, dealID string, since time.Time) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM analysis_results WHERE deal_id = $1 AND created_at >= $2)`,
		dealID, since).Scan(&exists)
	return exists, err
}

var _ Repo = (*PGRepo)(nil)
