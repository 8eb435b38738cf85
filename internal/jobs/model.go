package jobs

import "time"

// Job statuses as persisted in processing_jobs.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Pipeline steps. Error is orthogonal and reachable from any of the first three.
const (
	StepValidation = "validation"
	StepAnalysis   = "analysis"
	StepStorage    = "storage"
	StepComplete   = "complete"
	StepError      = "error"
)

// Known job types.
const (
	TypeCIMAnalysis   = "cim_analysis"
	TypeExcelAnalysis = "excel_analysis"
	TypeMemo          = "memo_generation"
)

// Job represents one long-running analysis operation for a deal.
type Job struct {
	ID           string                 `json:"id"`
	DealID       string                 `json:"dealId"`
	DocumentID   string                 `json:"documentId,omitempty"`
	JobType      string                 `json:"jobType"`
	Status       string                 `json:"status"`
	Progress     int                    `json:"progress"`
	CurrentStep  string                 `json:"currentStep"`
	AgentResults map[string]AgentResult `json:"agentResults,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
}

// AgentResult is one sub-agent's reported status and usage.
type AgentResult struct {
	Status       string `json:"status"`
	Model        string `json:"model,omitempty"`
	InputTokens  int64  `json:"inputTokens,omitempty"`
	OutputTokens int64  `json:"outputTokens,omitempty"`
	ProcessingMS int64  `json:"processingMs,omitempty"`
}

// AgentCompleted is the sub-status an agent reports when it has finished.
const AgentCompleted = "completed"

// IsActive reports whether the job is still in flight.
func (j Job) IsActive() bool {
	return j.Status == StatusPending || j.Status == StatusProcessing
}

// IsTerminal reports whether the job can no longer change state without an
// explicit reset or retry.
func (j Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
