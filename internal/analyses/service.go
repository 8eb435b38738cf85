package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealdesk-backend/internal/aiserver"
	"dealdesk-backend/internal/documents"
	"dealdesk-backend/internal/extract"
	"dealdesk-backend/internal/jobs"
	"dealdesk-backend/internal/queue"
	"dealdesk-backend/internal/realtime"
	"dealdesk-backend/internal/shared/async"
	"dealdesk-backend/internal/shared/storage/object"
	"dealdesk-backend/internal/shared/telemetry"
)

// AIClient is the slice of the AI server client the pipelines need.
type AIClient interface {
	ProcessDocument(ctx context.Context, req aiserver.ProcessRequest) (aiserver.ProcessResult, error)
	GenerateMemo(ctx context.Context, dealID string) (map[string]any, error)
}

// DefaultProcessTimeout bounds one direct-dispatch processing run.
const DefaultProcessTimeout = 10 * time.Minute

// Service runs the analysis pipeline: validate and extract the document,
// call the AI server, store the result, and keep the job row current.
type Service struct {
	Repo    Repo
	Docs    documents.Repo
	Store   object.ObjectStore
	Jobs    *jobs.Service
	AI      AIClient
	Hub     *realtime.Hub
	Queue   queue.Client
	Usage   jobs.UsageRecorder
	Timeout time.Duration
}

// Start creates a processing job for the deal and dispatches it. With a
// queue configured the job is enqueued for the worker; otherwise it runs in
// the background of this process.
func (s *Service) Start(ctx context.Context, dealID, documentID string) (jobs.Job, error) {
	var doc documents.Document
	if documentID == "" {
		docs, err := s.Docs.ListByDeal(ctx, dealID, 1, 0)
		if err != nil {
			return jobs.Job{}, err
		}
		if len(docs) == 0 {
			return jobs.Job{}, ErrNoDocument
		}
		doc = docs[0]
		documentID = doc.ID
	} else {
		var err error
		doc, err = s.Docs.GetByID(ctx, dealID, documentID)
		if err != nil {
			return jobs.Job{}, err
		}
	}

	active, err := s.Jobs.Active(ctx, dealID)
	if err != nil {
		return jobs.Job{}, err
	}
	if len(active) > 0 {
		return active[0], ErrAlreadyRunning
	}

	job, err := s.Jobs.Create(ctx, dealID, documentID, jobTypeForDocument(doc.FileName))
	if err != nil {
		return jobs.Job{}, err
	}

	if s.Queue != nil {
		msg := queue.Message{
			JobID:      job.ID,
			DealID:     dealID,
			DocumentID: documentID,
			RequestID:  uuid.NewString(),
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		err := s.Queue.Send(ctx, msg)
		if err == nil {
			return job, nil
		}
		// Fall through to direct dispatch so the upload is not stranded.
		telemetry.Warn("analysis.enqueue_failed", map[string]any{
			"job_id": job.ID,
			"error":  err.Error(),
		})
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	async.Go("analysis.process", timeout, func(ctx context.Context) error {
		return s.Process(ctx, job.ID)
	})
	return job, nil
}

// Process runs the pipeline for one job. Cancellation is cooperative: the
// job status is re-checked at each step boundary.
func (s *Service) Process(ctx context.Context, jobID string) error {
	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == jobs.StatusCancelled {
		return nil
	}

	if err := s.Jobs.Progress(ctx, jobID, 10, jobs.StepValidation, nil); err != nil {
		return err
	}

	doc, err := s.Docs.GetByID(ctx, job.DealID, job.DocumentID)
	if err != nil {
		return s.fail(ctx, jobID, fmt.Errorf("validation: %w", err))
	}

	text, err := extract.ExtractText(ctx, s.Store, doc.StorageKey, doc.MimeType, doc.FileName)
	if err != nil {
		return s.fail(ctx, jobID, fmt.Errorf("validation: %w", err))
	}
	if err := s.Docs.SetExtractedTextKey(ctx, doc.ID, doc.StorageKey+".extracted.txt"); err != nil {
		telemetry.Warn("analysis.extracted_key_failed", map[string]any{
			"document_id": doc.ID,
			"error":       err.Error(),
		})
	}

	if cancelled, err := s.cancelled(ctx, jobID); err != nil || cancelled {
		return err
	}
	if err := s.Jobs.Progress(ctx, jobID, 30, jobs.StepAnalysis, nil); err != nil {
		return err
	}

	out, err := s.AI.ProcessDocument(ctx, aiserver.ProcessRequest{
		DealID:       job.DealID,
		DocumentID:   doc.ID,
		JobType:      job.JobType,
		FileName:     doc.FileName,
		DocumentText: text,
	})
	if err != nil {
		return s.fail(ctx, jobID, err)
	}

	agents := make(map[string]jobs.AgentResult, len(out.Agents))
	for _, a := range out.Agents {
		agents[a.Agent] = jobs.AgentResult{
			Status:       jobs.AgentCompleted,
			Model:        a.Model,
			InputTokens:  a.InputTokens,
			OutputTokens: a.OutputTokens,
			ProcessingMS: a.ProcessingMS,
		}
	}
	if err := s.Jobs.Progress(ctx, jobID, 80, jobs.StepStorage, agents); err != nil {
		return err
	}
	s.recordUsage(ctx, job.DealID, jobID, agents)

	if cancelled, err := s.cancelled(ctx, jobID); err != nil || cancelled {
		return err
	}

	res := Result{
		ID:         uuid.NewString(),
		DealID:     job.DealID,
		DocumentID: doc.ID,
		JobType:    job.JobType,
		Result:     out.Result,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, res); err != nil {
		return s.fail(ctx, jobID, fmt.Errorf("storage: %w", err))
	}
	if s.Hub != nil {
		s.Hub.Publish(realtime.Event{
			Table:  realtime.TableAnalysisResults,
			Type:   realtime.EventInsert,
			DealID: job.DealID,
			Payload: map[string]any{
				"id":      res.ID,
				"deal_id": res.DealID,
			},
		})
	}

	if err := s.Jobs.Complete(ctx, jobID); err != nil {
		return err
	}
	s.reconcileAfterInsert(ctx, job.DealID)
	telemetry.Info("analysis.completed", map[string]any{
		"deal_id": job.DealID,
		"job_id":  jobID,
	})
	return nil
}

// StartMemo creates a memo-generation job for the deal and runs it in the
// background. A memo is drafted from stored analysis, so at least one result
// must exist.
func (s *Service) StartMemo(ctx context.Context, dealID string) (jobs.Job, error) {
	if _, err := s.Repo.LatestByDeal(ctx, dealID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return jobs.Job{}, ErrNoAnalysis
		}
		return jobs.Job{}, err
	}

	active, err := s.Jobs.Active(ctx, dealID)
	if err != nil {
		return jobs.Job{}, err
	}
	if len(active) > 0 {
		return active[0], ErrAlreadyRunning
	}

	job, err := s.Jobs.Create(ctx, dealID, "", jobs.TypeMemo)
	if err != nil {
		return jobs.Job{}, err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	async.Go("memo.process", timeout, func(ctx context.Context) error {
		return s.ProcessMemo(ctx, job.ID)
	})
	return job, nil
}

// ProcessMemo runs the memo pipeline for one job.
func (s *Service) ProcessMemo(ctx context.Context, jobID string) error {
	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == jobs.StatusCancelled {
		return nil
	}

	if err := s.Jobs.Progress(ctx, jobID, 20, jobs.StepAnalysis, nil); err != nil {
		return err
	}

	memo, err := s.AI.GenerateMemo(ctx, job.DealID)
	if err != nil {
		return s.fail(ctx, jobID, err)
	}

	if cancelled, err := s.cancelled(ctx, jobID); err != nil || cancelled {
		return err
	}
	if err := s.Jobs.Progress(ctx, jobID, 80, jobs.StepStorage, nil); err != nil {
		return err
	}

	res := Result{
		ID:        uuid.NewString(),
		DealID:    job.DealID,
		JobType:   jobs.TypeMemo,
		Result:    memo,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, res); err != nil {
		return s.fail(ctx, jobID, fmt.Errorf("storage: %w", err))
	}
	if s.Hub != nil {
		s.Hub.Publish(realtime.Event{
			Table:  realtime.TableAnalysisResults,
			Type:   realtime.EventInsert,
			DealID: job.DealID,
			Payload: map[string]any{
				"id":      res.ID,
				"deal_id": res.DealID,
			},
		})
	}

	if err := s.Jobs.Complete(ctx, jobID); err != nil {
		return err
	}
	s.reconcileAfterInsert(ctx, job.DealID)
	telemetry.Info("memo.completed", map[string]any{
		"deal_id": job.DealID,
		"job_id":  jobID,
	})
	return nil
}

// Latest returns the newest stored result for a deal.
func (s *Service) Latest(ctx context.Context, dealID string) (Result, error) {
	return s.Repo.LatestByDeal(ctx, dealID)
}

func (s *Service) cancelled(ctx context.Context, jobID string) (bool, error) {
	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status == jobs.StatusCancelled {
		telemetry.Info("analysis.cancelled", map[string]any{"job_id": jobID})
		return true, nil
	}
	return false, nil
}

func (s *Service) fail(ctx context.Context, jobID string, cause error) error {
	classified := jobs.Classify(cause, "")
	telemetry.Error("analysis.failed", map[string]any{
		"job_id":     jobID,
		"error_type": string(classified.Type),
		"error":      cause.Error(),
	})
	if err := s.Jobs.Fail(ctx, jobID, cause.Error()); err != nil {
		return err
	}
	return cause
}

// reconcileAfterInsert sweeps the deal's remaining active jobs after a result
// insert, completing any whose own completion write was lost.
func (s *Service) reconcileAfterInsert(ctx context.Context, dealID string) {
	if _, err := s.Jobs.ReconcileDeal(ctx, dealID); err != nil {
		telemetry.Warn("analysis.reconcile_failed", map[string]any{
			"deal_id": dealID,
			"error":   err.Error(),
		})
	}
}

func jobTypeForDocument(fileName string) string {
	if strings.HasSuffix(strings.ToLower(fileName), ".xlsx") {
		return jobs.TypeExcelAnalysis
	}
	return jobs.TypeCIMAnalysis
}

func (s *Service) recordUsage(ctx context.Context, dealID, jobID string, agents map[string]jobs.AgentResult) {
	if s.Usage == nil {
		return
	}
	for agent, res := range agents {
		if res.InputTokens == 0 && res.OutputTokens == 0 {
			continue
		}
		if err := s.Usage.RecordAgentUsage(ctx, dealID, jobID, agent, res); err != nil {
			telemetry.Warn("analysis.usage_failed", map[string]any{
				"job_id": jobID,
				"agent":  agent,
				"error":  err.Error(),
			})
		}
	}
}
