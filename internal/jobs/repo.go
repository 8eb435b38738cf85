package jobs

import (
	"context"
	"time"
)

// Repo defines persistence operations for processing jobs.
type Repo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	ListActiveByDeal(ctx context.Context, dealID, jobType string) ([]Job, error)
	ListActiveOlderThan(ctx context.Context, cutoff time.Time) ([]Job, error)
	UpdateProgress(ctx context.Context, jobID string, progress int, step string, agents map[string]AgentResult) error
	SetStatus(ctx context.Context, jobID, status, errorMessage string, completedAt *time.Time) error
}
