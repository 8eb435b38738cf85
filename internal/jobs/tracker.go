package jobs

import (
	"context"
	"sync"
	"time"

	"dealdesk-backend/internal/realtime"
	"dealdesk-backend/internal/shared/async"
	"dealdesk-backend/internal/shared/telemetry"
)

// DefaultMaxRetries caps recovery attempts per processing session.
const DefaultMaxRetries = 3

// retryBackoffUnit is multiplied by the attempt number for linear backoff.
const retryBackoffUnit = 2 * time.Second

const usageRecordTimeout = 10 * time.Second

// State is the tracker's coherent view of one processing operation.
type State struct {
	IsProcessing bool                   `json:"isProcessing"`
	Progress     int                    `json:"progress"`
	CurrentStep  string                 `json:"currentStep"`
	AgentResults map[string]AgentResult `json:"agentResults"`
	Error        *CIMError              `json:"error,omitempty"`
	JobID        string                 `json:"jobId,omitempty"`
	FileName     string                 `json:"fileName,omitempty"`
}

// RecoveryState tracks classified errors and retry budget for one session.
type RecoveryState struct {
	Errors       []CIMError `json:"errors"`
	RetryCount   int        `json:"retryCount"`
	MaxRetries   int        `json:"maxRetries"`
	IsRecovering bool       `json:"isRecovering"`
}

// UsageRecorder records per-agent usage as a side effect of progress updates.
type UsageRecorder interface {
	RecordAgentUsage(ctx context.Context, dealID, jobID, agent string, res AgentResult) error
}

// Tracker reconciles the three status signal sources (initial snapshot,
// completion back-check, realtime events) into one idempotent state machine,
// and drives the bounded retry policy. One Tracker serves one open view of a
// deal; instances do not share state.
type Tracker struct {
	mu         sync.Mutex
	dealID     string
	usage      UsageRecorder
	maxRetries int
	state      State
	recovery   RecoveryState
	recorded   map[string]bool

	// Injection points for tests.
	sleep func(time.Duration)
	spawn func(name string, fn func(ctx context.Context) error)
}

// NewTracker constructs a Tracker for one deal. usage may be nil; a
// maxRetries of zero or less falls back to the default ceiling.
func NewTracker(dealID string, usage UsageRecorder, maxRetries int) *Tracker {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	t := &Tracker{
		dealID:     dealID,
		usage:      usage,
		maxRetries: maxRetries,
		sleep:      time.Sleep,
		spawn: func(name string, fn func(ctx context.Context) error) {
			async.Go(name, usageRecordTimeout, fn)
		},
	}
	t.Reset()
	return t
}

// Start begins a new processing attempt, clearing error-recovery and
// cost-tracking sub-state.
func (t *Tracker) Start(jobID, fileName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recovery = RecoveryState{MaxRetries: t.maxRetries}
	t.recorded = make(map[string]bool)
	t.state = State{
		IsProcessing: true,
		Progress:     0,
		CurrentStep:  StepValidation,
		AgentResults: map[string]AgentResult{},
		JobID:        jobID,
		FileName:     fileName,
	}
}

// UpdateProgress overwrites progress and step, and merges agent results.
// Completed agents carrying usage data are billed asynchronously; a billing
// failure is logged and never blocks or fails the update.
func (t *Tracker) UpdateProgress(progress int, step string, agents map[string]AgentResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Progress = clampProgress(progress)
	t.state.CurrentStep = step

	if agents == nil {
		return
	}
	if t.state.AgentResults == nil {
		t.state.AgentResults = map[string]AgentResult{}
	}
	for name, res := range agents {
		t.state.AgentResults[name] = res
		t.maybeRecordUsage(name, res)
	}
}

// maybeRecordUsage assumes t.mu is held.
func (t *Tracker) maybeRecordUsage(agent string, res AgentResult) {
	if t.usage == nil || res.Status != AgentCompleted || res.Model == "" {
		return
	}
	if res.InputTokens == 0 && res.OutputTokens == 0 {
		return
	}
	if t.recorded[agent] {
		return
	}
	t.recorded[agent] = true

	dealID, jobID := t.dealID, t.state.JobID
	t.spawn("usage.record", func(ctx context.Context) error {
		return t.usage.RecordAgentUsage(ctx, dealID, jobID, agent, res)
	})
}

// SetError classifies the failure and moves the state machine into the
// orthogonal error state.
func (t *Tracker) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setError(err)
}

// setError assumes t.mu is held.
func (t *Tracker) setError(err error) {
	classified := Classify(err, "")
	t.recovery.Errors = append(t.recovery.Errors, classified)
	t.state.IsProcessing = false
	t.state.CurrentStep = StepError
	t.state.Error = &classified
}

// Retry re-classifies the last error and, when retryable and under the
// ceiling, waits a linear backoff (network and timeout failures only) before
// invoking retryFn. A retryFn failure is caught and logged; the caller must
// re-invoke explicitly for another attempt. The lock is released around the
// backoff wait and the retry function so that progress updates from the new
// attempt are not blocked.
func (t *Tracker) Retry(ctx context.Context, retryFn func(context.Context) error) bool {
	t.mu.Lock()
	if t.state.Error == nil {
		t.mu.Unlock()
		return false
	}
	classified := Classify(errFromMessage(t.state.Error.Message), t.state.Error.Agent)
	if !classified.Retryable {
		t.mu.Unlock()
		return false
	}
	if t.recovery.RetryCount >= t.recovery.MaxRetries {
		t.mu.Unlock()
		return false
	}

	t.recovery.RetryCount++
	t.recovery.IsRecovering = true
	attempt := t.recovery.RetryCount
	t.mu.Unlock()

	if classified.Type == ErrorNetwork || classified.Type == ErrorTimeout {
		t.sleep(retryBackoffUnit * time.Duration(attempt))
	}

	err := retryFn(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		telemetry.Error("processing.retry_failed", map[string]any{
			"deal_id": t.dealID,
			"job_id":  t.state.JobID,
			"attempt": attempt,
			"error":   err.Error(),
		})
		t.recovery.Errors = append(t.recovery.Errors, Classify(err, ""))
		t.recovery.IsRecovering = false
		return false
	}

	t.recovery.IsRecovering = false
	t.state.Error = nil
	t.state.CurrentStep = StepValidation
	t.state.Progress = 0
	t.state.IsProcessing = true
	return true
}

// Reset fully clears processing and recovery state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = State{AgentResults: map[string]AgentResult{}}
	t.recovery = RecoveryState{MaxRetries: t.maxRetries}
	t.recorded = make(map[string]bool)
}

// MarkComplete forces the absorbing completed state. Applying it repeatedly
// is harmless.
func (t *Tracker) MarkComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markComplete()
}

// markComplete assumes t.mu is held.
func (t *Tracker) markComplete() {
	t.state.IsProcessing = false
	t.state.Progress = 100
	t.state.CurrentStep = StepComplete
	t.state.Error = nil
}

// AdoptJob mirrors a job row into local state, e.g. from the initial
// active-job snapshot on mount.
func (t *Tracker) AdoptJob(job Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.adoptJob(job)
}

// adoptJob assumes t.mu is held.
func (t *Tracker) adoptJob(job Job) {
	t.state.JobID = job.ID
	switch job.Status {
	case StatusCompleted:
		t.markComplete()
	case StatusFailed:
		t.setError(errFromMessage(job.ErrorMessage))
	case StatusCancelled:
		t.state.IsProcessing = false
	default:
		t.state.IsProcessing = true
		t.state.Progress = clampProgress(job.Progress)
		t.state.CurrentStep = job.CurrentStep
		if job.AgentResults != nil {
			t.state.AgentResults = job.AgentResults
		}
	}
}

// Apply feeds one realtime event into the reducer. Events for other deals
// are ignored. An analysis-result insert unconditionally forces completion.
func (t *Tracker) Apply(ev realtime.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.DealID != "" && t.dealID != "" && ev.DealID != t.dealID {
		return
	}

	switch ev.Table {
	case realtime.TableAnalysisResults:
		if ev.Type == realtime.EventInsert {
			t.markComplete()
		}
	case realtime.TableJobs:
		t.applyJobPayload(ev.Payload)
	}
}

// applyJobPayload assumes t.mu is held.
func (t *Tracker) applyJobPayload(payload map[string]any) {
	if payload == nil {
		return
	}
	job := Job{
		ID:           stringField(payload, "id"),
		Status:       stringField(payload, "status"),
		Progress:     intField(payload, "progress"),
		CurrentStep:  stringField(payload, "current_step"),
		ErrorMessage: stringField(payload, "error_message"),
		AgentResults: agentResultsField(payload, "agent_results"),
	}
	if job.ID == "" && job.Status == "" {
		return
	}
	t.adoptJob(job)
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.state
	if t.state.AgentResults != nil {
		out.AgentResults = make(map[string]AgentResult, len(t.state.AgentResults))
		for k, v := range t.state.AgentResults {
			out.AgentResults[k] = v
		}
	}
	if t.state.Error != nil {
		cp := *t.state.Error
		out.Error = &cp
	}
	return out
}

// View returns the snapshot as the realtime projector contract expects.
func (t *Tracker) View() any {
	return t.Snapshot()
}

// Recovery returns a copy of the recovery sub-state.
func (t *Tracker) Recovery() RecoveryState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.recovery
	out.Errors = append([]CIMError(nil), t.recovery.Errors...)
	return out
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

type messageError struct{ msg string }

func (e messageError) Error() string { return e.msg }

func errFromMessage(msg string) error {
	return messageError{msg: msg}
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func intField(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func agentResultsField(payload map[string]any, key string) map[string]AgentResult {
	raw, ok := payload[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]AgentResult, len(raw))
	for name, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out[name] = AgentResult{
			Status:       stringField(entry, "status"),
			Model:        stringField(entry, "model"),
			InputTokens:  int64(intField(entry, "input_tokens")),
			OutputTokens: int64(intField(entry, "output_tokens")),
			ProcessingMS: int64(intField(entry, "processing_ms")),
		}
	}
	return out
}
