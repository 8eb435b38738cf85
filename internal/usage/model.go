package usage

import "time"

// Record is one billed agent invocation.
type Record struct {
	ID           string    `json:"id"`
	DealID       string    `json:"dealId"`
	JobID        string    `json:"jobId,omitempty"`
	Agent        string    `json:"agent"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"inputTokens"`
	OutputTokens int64     `json:"outputTokens"`
	ProcessingMS int64     `json:"processingMs"`
	CostUSD      float64   `json:"costUsd"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DealSummary aggregates spend for one deal.
type DealSummary struct {
	DealID       string             `json:"dealId"`
	TotalCostUSD float64            `json:"totalCostUsd"`
	InputTokens  int64              `json:"inputTokens"`
	OutputTokens int64              `json:"outputTokens"`
	ByAgent      map[string]float64 `json:"byAgent"`
	Records      int                `json:"records"`
}
