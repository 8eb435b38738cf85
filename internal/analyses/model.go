package analyses

import (
	"errors"
	"time"
)

// Result is one stored analysis for a deal.
type Result struct {
	ID         string         `json:"id"`
	DealID     string         `json:"dealId"`
	DocumentID string         `json:"documentId,omitempty"`
	JobType    string         `json:"jobType"`
	Result     map[string]any `json:"result"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ErrNotFound is returned when a deal has no stored analysis.
var ErrNotFound = errors.New("analysis result not found")

// ErrNoDocument is returned when analysis is requested for a deal without a
// usable document.
var ErrNoDocument = errors.New("no document to analyze")

// ErrAlreadyRunning is returned when the deal already has an active analysis
// job.
var ErrAlreadyRunning = errors.New("analysis already running")

// ErrNoAnalysis is returned when a memo is requested for a deal with no
// stored analysis to draft from.
var ErrNoAnalysis = errors.New("no analysis to build a memo from")
