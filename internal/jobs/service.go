package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dealdesk-backend/internal/realtime"
	"dealdesk-backend/internal/shared/telemetry"
)

// DefaultCompletionWindow bounds how far back the completion back-check
// looks for an analysis result.
const DefaultCompletionWindow = 10 * time.Minute

// DefaultStuckAfter is how long an active job may go without an update
// before reconciliation considers it stale.
const DefaultStuckAfter = 15 * time.Minute

// ResultChecker answers whether a deal has a recent stored analysis result.
// The analyses repo implements it.
type ResultChecker interface {
	HasResultSince(ctx context.Context, dealID string, since time.Time) (bool, error)
}

// Service owns job lifecycle operations and emits realtime change events.
type Service struct {
	Repo             Repo
	Hub              *realtime.Hub
	Results          ResultChecker
	Usage            UsageRecorder
	CompletionWindow time.Duration
	StuckAfter       time.Duration
	MaxRetries       int

	now func() time.Time
}

// NewService constructs a Service. hub and results may be nil.
func NewService(repo Repo, hub *realtime.Hub, results ResultChecker, completionWindow time.Duration) *Service {
	if completionWindow <= 0 {
		completionWindow = DefaultCompletionWindow
	}
	return &Service{
		Repo:             repo,
		Hub:              hub,
		Results:          results,
		CompletionWindow: completionWindow,
		StuckAfter:       DefaultStuckAfter,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a pending job for a deal and announces it.
func (s *Service) Create(ctx context.Context, dealID, documentID, jobType string) (Job, error) {
	job := Job{
		ID:          uuid.NewString(),
		DealID:      dealID,
		DocumentID:  documentID,
		JobType:     jobType,
		Status:      StatusPending,
		Progress:    0,
		CurrentStep: StepValidation,
		CreatedAt:   s.now(),
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return Job{}, err
	}
	s.publish(realtime.EventInsert, job)
	return job, nil
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, jobID string) (Job, error) {
	return s.Repo.GetByID(ctx, jobID)
}

// Active returns in-flight jobs of any type for a deal, newest first.
func (s *Service) Active(ctx context.Context, dealID string) ([]Job, error) {
	return s.Repo.ListActiveByDeal(ctx, dealID, "")
}

// ProjectDeal builds a tracker primed with the deal's current active job so
// realtime consumers start from a coherent snapshot instead of an empty one.
func (s *Service) ProjectDeal(ctx context.Context, dealID string) *Tracker {
	t := NewTracker(dealID, s.Usage, s.MaxRetries)
	active, err := s.Repo.ListActiveByDeal(ctx, dealID, "")
	if err != nil {
		telemetry.Warn("jobs.project.snapshot_failed", map[string]any{
			"deal_id": dealID,
			"error":   err.Error(),
		})
		return t
	}
	if len(active) > 0 {
		t.AdoptJob(active[0])
	}
	return t
}

// Progress records a progress update and announces it.
func (s *Service) Progress(ctx context.Context, jobID string, progress int, step string, agents map[string]AgentResult) error {
	if err := s.Repo.UpdateProgress(ctx, jobID, progress, step, agents); err != nil {
		return err
	}
	s.publishByID(ctx, realtime.EventUpdate, jobID)
	return nil
}

// Complete moves the job to completed and announces it.
func (s *Service) Complete(ctx context.Context, jobID string) error {
	if err := s.Repo.SetStatus(ctx, jobID, StatusCompleted, "", nil); err != nil {
		return err
	}
	s.publishByID(ctx, realtime.EventUpdate, jobID)
	return nil
}

// Fail moves the job to failed with the error message and announces it.
func (s *Service) Fail(ctx context.Context, jobID, errorMessage string) error {
	if err := s.Repo.SetStatus(ctx, jobID, StatusFailed, errorMessage, nil); err != nil {
		return err
	}
	s.publishByID(ctx, realtime.EventUpdate, jobID)
	return nil
}

// Cancel requests cooperative cancellation of an active job. The worker
// observes the status flip at its next step boundary.
func (s *Service) Cancel(ctx context.Context, dealID, jobID string) (Job, error) {
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.DealID != dealID {
		return Job{}, ErrNotFound
	}
	if !job.IsActive() {
		return Job{}, ErrNotActive
	}
	if err := s.Repo.SetStatus(ctx, jobID, StatusCancelled, "", nil); err != nil {
		return Job{}, err
	}
	job, err = s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	s.publish(realtime.EventUpdate, job)
	return job, nil
}

// RecentCompletion reports whether the deal stored an analysis result within
// the completion window. Callers use it to resolve a missed completion event
// when a view reopens.
func (s *Service) RecentCompletion(ctx context.Context, dealID string) (bool, error) {
	if s.Results == nil {
		return false, nil
	}
	return s.Results.HasResultSince(ctx, dealID, s.now().Add(-s.CompletionWindow))
}

// ReconcileDeal resolves active jobs for one deal whose completion write was
// lost: a row with a result stored since its creation is marked completed.
// Runs on every status poll and after every result insert.
func (s *Service) ReconcileDeal(ctx context.Context, dealID string) (int, error) {
	if s.Results == nil {
		return 0, nil
	}
	active, err := s.Repo.ListActiveByDeal(ctx, dealID, "")
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, job := range active {
		hasResult, err := s.Results.HasResultSince(ctx, dealID, job.CreatedAt)
		if err != nil {
			telemetry.Error("jobs.reconcile.check_failed", map[string]any{
				"job_id": job.ID,
				"error":  err.Error(),
			})
			continue
		}
		if !hasResult {
			continue
		}
		if err := s.Repo.SetStatus(ctx, job.ID, StatusCompleted, "", nil); err != nil {
			telemetry.Error("jobs.reconcile.update_failed", map[string]any{
				"job_id": job.ID,
				"error":  err.Error(),
			})
			continue
		}
		s.publishByID(ctx, realtime.EventUpdate, job.ID)
		telemetry.Info("jobs.reconciled", map[string]any{
			"job_id":  job.ID,
			"deal_id": dealID,
			"status":  StatusCompleted,
		})
		reconciled++
	}
	return reconciled, nil
}

// ReconcileStuck resolves jobs stuck in an active status. A stale job whose
// deal has a stored result is marked completed; one without is marked failed.
func (s *Service) ReconcileStuck(ctx context.Context) (int, error) {
	stuck, err := s.Repo.ListActiveOlderThan(ctx, s.now().Add(-s.StuckAfter))
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, job := range stuck {
		hasResult := false
		if s.Results != nil {
			hasResult, err = s.Results.HasResultSince(ctx, job.DealID, job.CreatedAt)
			if err != nil {
				telemetry.Error("jobs.reconcile.check_failed", map[string]any{
					"job_id": job.ID,
					"error":  err.Error(),
				})
				continue
			}
		}

		status, message := StatusFailed, "processing timeout: job made no progress"
		if hasResult {
			status, message = StatusCompleted, ""
		}
		if err := s.Repo.SetStatus(ctx, job.ID, status, message, nil); err != nil {
			telemetry.Error("jobs.reconcile.update_failed", map[string]any{
				"job_id": job.ID,
				"error":  err.Error(),
			})
			continue
		}
		s.publishByID(ctx, realtime.EventUpdate, job.ID)
		telemetry.Info("jobs.reconciled", map[string]any{
			"job_id":  job.ID,
			"deal_id": job.DealID,
			"status":  status,
		})
		reconciled++
	}
	return reconciled, nil
}

func (s *Service) publishByID(ctx context.Context, eventType string, jobID string) {
	if s.Hub == nil {
		return
	}
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return
	}
	s.publish(eventType, job)
}

func (s *Service) publish(eventType string, job Job) {
	if s.Hub == nil {
		return
	}
	s.Hub.Publish(realtime.Event{
		Table:   realtime.TableJobs,
		Type:    eventType,
		DealID:  job.DealID,
		Payload: JobEventPayload(job),
	})
}

// JobEventPayload renders a job as the row-shaped map carried in realtime
// events and consumed by Tracker.Apply.
func JobEventPayload(job Job) map[string]any {
	payload := map[string]any{
		"id":           job.ID,
		"deal_id":      job.DealID,
		"job_type":     job.JobType,
		"status":       job.Status,
		"progress":     job.Progress,
		"current_step": job.CurrentStep,
	}
	if job.ErrorMessage != "" {
		payload["error_message"] = job.ErrorMessage
	}
	if len(job.AgentResults) > 0 {
		agents := make(map[string]any, len(job.AgentResults))
		for name, res := range job.AgentResults {
			agents[name] = map[string]any{
				"status":        res.Status,
				"model":         res.Model,
				"input_tokens":  float64(res.InputTokens),
				"output_tokens": float64(res.OutputTokens),
				"processing_ms": float64(res.ProcessingMS),
			}
		}
		payload["agent_results"] = agents
	}
	return payload
}
