package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dealdesk-backend/internal/jobs"
	"dealdesk-backend/internal/shared/telemetry"
)

type store interface {
	Insert(ctx context.Context, rec Record) error
	ListByDeal(ctx context.Context, dealID string) ([]Record, error)
}

// Service records agent spend and answers summary queries.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore *PGStore) *Service {
	return &Service{store: pgStore}
}

// RecordAgentUsage prices and stores one completed agent invocation. It
// satisfies jobs.UsageRecorder.
func (s *Service) RecordAgentUsage(ctx context.Context, dealID, jobID, agent string, res jobs.AgentResult) error {
	rec := Record{
		ID:           uuid.NewString(),
		DealID:       dealID,
		JobID:        jobID,
		Agent:        agent,
		Model:        res.Model,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		ProcessingMS: res.ProcessingMS,
		CostUSD:      Cost(res.Model, res.InputTokens, res.OutputTokens),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return err
	}
	telemetry.Info("usage.recorded", map[string]any{
		"deal_id":  dealID,
		"job_id":   jobID,
		"agent":    agent,
		"model":    res.Model,
		"cost_usd": rec.CostUSD,
	})
	return nil
}

// SummaryForDeal aggregates spend across all records for a deal.
func (s *Service) SummaryForDeal(ctx context.Context, dealID string) (DealSummary, error) {
	records, err := s.store.ListByDeal(ctx, dealID)
	if err != nil {
		return DealSummary{}, err
	}

	summary := DealSummary{DealID: dealID, ByAgent: map[string]float64{}}
	for _, rec := range records {
		summary.TotalCostUSD += rec.CostUSD
		summary.InputTokens += rec.InputTokens
		summary.OutputTokens += rec.OutputTokens
		summary.ByAgent[rec.Agent] += rec.CostUSD
		summary.Records++
	}
	return summary, nil
}

var _ jobs.UsageRecorder = (*Service)(nil)
