package jobs

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

const jobColumns = `id, deal_id, document_id, job_type, status, progress, current_step,
       agent_results, error_message, created_at, updated_at, completed_at`

// Create inserts a new job row.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO processing_jobs (
	id, deal_id, document_id, job_type, status, progress, current_step, agent_results, created_at, updated_at
)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8::jsonb, now(), now())`

	agents, err := marshalAgents(job.AgentResults)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.DealID,
		job.DocumentID,
		job.JobType,
		job.Status,
		job.Progress,
		job.CurrentStep,
		agents,
	)
	return err
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE id = $1 LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// ListActiveByDeal returns pending and processing jobs for a deal, newest
// first. jobType filters when non-empty.
func (r *PGRepo) ListActiveByDeal(ctx context.Context, dealID, jobType string) ([]Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM processing_jobs
WHERE deal_id = $1
  AND status IN ('pending', 'processing')
  AND ($2 = '' OR job_type = $2)
ORDER BY created_at DESC`

	rows, err := r.DB.QueryContext(ctx, query, dealID, jobType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ListActiveOlderThan returns in-flight jobs last touched before cutoff.
func (r *PGRepo) ListActiveOlderThan(ctx context.Context, cutoff time.Time) ([]Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM processing_jobs
WHERE status IN ('pending', 'processing')
  AND updated_at < $1
ORDER BY updated_at ASC`

	rows, err := r.DB.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// UpdateProgress overwrites progress and step, and merges agent results into
// the existing JSONB map.
func (r *PGRepo) UpdateProgress(ctx context.Context, jobID string, progress int, step string, agents map[string]AgentResult) error {
	const query = `
UPDATE processing_jobs
SET status = 'processing',
    progress = $1,
    current_step = $2,
    agent_results = COALESCE(agent_results, '{}'::jsonb) || COALESCE($3::jsonb, '{}'::jsonb),
    updated_at = now()
WHERE id = $4`

	payload, err := marshalAgents(agents)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, progress, step, payload, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus moves a job to a new status, stamping completed_at for terminal
// states.
func (r *PGRepo) SetStatus(ctx context.Context, jobID, status, errorMessage string, completedAt *time.Time) error {
	const query = `
UPDATE processing_jobs
SET status = $1,
    error_message = COALESCE(NULLIF($2, ''), error_message),
    progress = CASE WHEN $1 = 'completed' THEN 100 ELSE progress END,
    current_step = CASE
        WHEN $1 = 'completed' THEN 'complete'
        WHEN $1 = 'failed' THEN 'error'
        ELSE current_step
    END,
    completed_at = CASE
        WHEN $3::timestamptz IS NOT NULL THEN $3::timestamptz
        WHEN $1 IN ('completed', 'failed', 'cancelled') AND completed_at IS NULL THEN now()
        ELSE completed_at
    END,
    updated_at = now()
WHERE id = $4`

	res, err := r.DB.ExecContext(ctx, query, status, errorMessage, completedAt, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var documentID sql.NullString
	var agents sql.NullString
	var errorMessage sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&job.ID,
		&job.DealID,
		&documentID,
		&job.JobType,
		&job.Status,
		&job.Progress,
		&job.CurrentStep,
		&agents,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return Job{}, err
	}
	if documentID.Valid {
		job.DocumentID = documentID.String
	}
	if agents.Valid {
		if err := json.Unmarshal([]byte(agents.String), &job.AgentResults); err != nil {
			job.AgentResults = nil
		}
	}
	if errorMessage.Valid {
		job.ErrorMessage = errorMessage.String
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

func marshalAgents(agents map[string]AgentResult) (any, error) {
	if agents == nil {
		return nil, nil
	}
	b, err := json.Marshal(agents)
	if err != nil {
		return nil, err
	}
	return b, nil
}
