package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Job
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Job)}
}

// Create stores the job.
func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt
	r.byID[job.ID] = job
	return nil
}

// GetByID returns a job by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// ListActiveByDeal returns in-flight jobs for a deal, newest first. jobType
// filters when non-empty.
func (r *MemoryRepo) ListActiveByDeal(ctx context.Context, dealID, jobType string) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Job{}
	for _, job := range r.byID {
		if job.DealID != dealID || !job.IsActive() {
			continue
		}
		if jobType != "" && job.JobType != jobType {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListActiveOlderThan returns in-flight jobs last touched before cutoff.
func (r *MemoryRepo) ListActiveOlderThan(ctx context.Context, cutoff time.Time) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Job{}
	for _, job := range r.byID {
		if job.IsActive() && job.UpdatedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

// UpdateProgress overwrites progress and step, and merges agent results.
func (r *MemoryRepo) UpdateProgress(ctx context.Context, jobID string, progress int, step string, agents map[string]AgentResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Progress = progress
	job.CurrentStep = step
	job.Status = StatusProcessing
	if len(agents) > 0 {
		if job.AgentResults == nil {
			job.AgentResults = map[string]AgentResult{}
		}
		for name, res := range agents {
			job.AgentResults[name] = res
		}
	}
	job.UpdatedAt = time.Now().UTC()
	r.byID[jobID] = job
	return nil
}

// SetStatus moves a job to a new status.
func (r *MemoryRepo) SetStatus(ctx context.Context, jobID, status, errorMessage string, completedAt *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	if errorMessage != "" {
		job.ErrorMessage = errorMessage
	}
	if completedAt != nil {
		job.CompletedAt = completedAt
	} else if status == StatusCompleted || status == StatusFailed || status == StatusCancelled {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	if status == StatusCompleted {
		job.Progress = 100
		job.CurrentStep = StepComplete
	}
	if status == StatusFailed {
		job.CurrentStep = StepError
	}
	job.UpdatedAt = time.Now().UTC()
	r.byID[jobID] = job
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
