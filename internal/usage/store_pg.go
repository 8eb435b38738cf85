package usage

import (
	"context"
	"database/sql"
)

// PGStore persists usage records in Postgres.
type PGStore struct {
	DB *sql.DB
}

// Insert stores one usage record.
func (s *PGStore) Insert(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO agent_usage (id, deal_id, job_id, agent, model, input_tokens, output_tokens, processing_ms, cost_usd, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, now())`
	_, err := s.DB.ExecContext(ctx, query,
		rec.ID, rec.DealID, rec.JobID, rec.Agent, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.ProcessingMS, rec.CostUSD,
	)
	return err
}

// ListByDeal returns usage records for a deal.
func (s *PGStore) ListByDeal(ctx context.Context, dealID string) ([]Record, error) {
	const query = `
SELECT id, deal_id, COALESCE(job_id::text, ''), agent, model, input_tokens, output_tokens, processing_ms, cost_usd, created_at
FROM agent_usage
WHERE deal_id = $1
ORDER BY created_at ASC`

	rows, err := s.DB.QueryContext(ctx, query, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.DealID, &rec.JobID, &rec.Agent, &rec.Model,
			&rec.InputTokens, &rec.OutputTokens, &rec.ProcessingMS, &rec.CostUSD, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
