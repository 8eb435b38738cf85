package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dealdesk-backend/internal/realtime"
)

type recordedUsage struct {
	dealID string
	jobID  string
	agent  string
	res    AgentResult
}

type fakeUsageRecorder struct {
	mu    sync.Mutex
	calls []recordedUsage
	err   error
}

func (f *fakeUsageRecorder) RecordAgentUsage(ctx context.Context, dealID, jobID, agent string, res AgentResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedUsage{dealID: dealID, jobID: jobID, agent: agent, res: res})
	return f.err
}

// newTestTracker makes spawn synchronous and sleep a no-op that records
// requested durations.
func newTestTracker(dealID string, usage UsageRecorder) (*Tracker, *[]time.Duration) {
	t := NewTracker(dealID, usage, 0)
	slept := &[]time.Duration{}
	t.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	t.spawn = func(name string, fn func(ctx context.Context) error) {
		_ = fn(context.Background())
	}
	return t, slept
}

func TestTrackerStartResetsState(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.SetError(errors.New("network down"))
	tr.Start("job-1", "cim.pdf")

	st := tr.Snapshot()
	if !st.IsProcessing || st.Progress != 0 || st.CurrentStep != StepValidation {
		t.Fatalf("unexpected state after Start: %+v", st)
	}
	if st.Error != nil {
		t.Fatal("Start should clear error state")
	}
	rec := tr.Recovery()
	if len(rec.Errors) != 0 || rec.RetryCount != 0 || rec.MaxRetries != DefaultMaxRetries {
		t.Fatalf("unexpected recovery after Start: %+v", rec)
	}
}

func TestTrackerProgressClampAndMerge(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")

	tr.UpdateProgress(150, StepAnalysis, map[string]AgentResult{
		"financial": {Status: "running"},
	})
	tr.UpdateProgress(-5, StepAnalysis, map[string]AgentResult{
		"market": {Status: "running"},
	})

	st := tr.Snapshot()
	if st.Progress != 0 {
		t.Fatalf("Progress = %d, want clamped 0", st.Progress)
	}
	if len(st.AgentResults) != 2 {
		t.Fatalf("agent results should merge, got %+v", st.AgentResults)
	}
}

func TestTrackerRecordsUsageOncePerAgent(t *testing.T) {
	usage := &fakeUsageRecorder{}
	tr, _ := newTestTracker("deal-1", usage)
	tr.Start("job-1", "cim.pdf")

	done := AgentResult{Status: AgentCompleted, Model: "gpt-4o", InputTokens: 1000, OutputTokens: 500}
	tr.UpdateProgress(40, StepAnalysis, map[string]AgentResult{"financial": done})
	tr.UpdateProgress(60, StepAnalysis, map[string]AgentResult{"financial": done})
	tr.UpdateProgress(80, StepAnalysis, map[string]AgentResult{"market": done})

	if len(usage.calls) != 2 {
		t.Fatalf("usage recorded %d times, want 2", len(usage.calls))
	}
	if usage.calls[0].dealID != "deal-1" || usage.calls[0].jobID != "job-1" {
		t.Fatalf("unexpected usage identity: %+v", usage.calls[0])
	}
}

func TestTrackerUsageFailureDoesNotAffectState(t *testing.T) {
	usage := &fakeUsageRecorder{err: errors.New("billing down")}
	tr, _ := newTestTracker("deal-1", usage)
	tr.Start("job-1", "cim.pdf")

	tr.UpdateProgress(40, StepAnalysis, map[string]AgentResult{
		"financial": {Status: AgentCompleted, Model: "gpt-4o", InputTokens: 10},
	})

	st := tr.Snapshot()
	if st.Error != nil || st.Progress != 40 {
		t.Fatalf("usage failure leaked into state: %+v", st)
	}
}

func TestTrackerIncompleteAgentsNotBilled(t *testing.T) {
	usage := &fakeUsageRecorder{}
	tr, _ := newTestTracker("deal-1", usage)
	tr.Start("job-1", "cim.pdf")

	tr.UpdateProgress(40, StepAnalysis, map[string]AgentResult{
		"running":   {Status: "running", Model: "gpt-4o", InputTokens: 10},
		"no_model":  {Status: AgentCompleted, InputTokens: 10},
		"no_tokens": {Status: AgentCompleted, Model: "gpt-4o"},
	})

	if len(usage.calls) != 0 {
		t.Fatalf("non-billable agents were billed: %+v", usage.calls)
	}
}

func TestTrackerSetErrorClassifies(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")
	tr.SetError(errors.New("network unreachable"))

	st := tr.Snapshot()
	if st.IsProcessing || st.CurrentStep != StepError {
		t.Fatalf("unexpected state after error: %+v", st)
	}
	if st.Error == nil || st.Error.Type != ErrorNetwork {
		t.Fatalf("error not classified: %+v", st.Error)
	}
	rec := tr.Recovery()
	if len(rec.Errors) != 1 {
		t.Fatalf("error history length = %d, want 1", len(rec.Errors))
	}
}

func TestTrackerRetryBacksOffLinearly(t *testing.T) {
	tr, slept := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")

	calls := 0
	retryFn := func(ctx context.Context) error {
		calls++
		return nil
	}

	tr.SetError(errors.New("network unreachable"))
	if !tr.Retry(context.Background(), retryFn) {
		t.Fatal("first retry should succeed")
	}
	tr.SetError(errors.New("network unreachable"))
	if !tr.Retry(context.Background(), retryFn) {
		t.Fatal("second retry should succeed")
	}

	if calls != 2 {
		t.Fatalf("retryFn called %d times, want 2", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("backoff %d = %v, want %v", i, (*slept)[i], want[i])
		}
	}

	st := tr.Snapshot()
	if !st.IsProcessing || st.Error != nil || st.CurrentStep != StepValidation {
		t.Fatalf("retry should restart processing: %+v", st)
	}
}

func TestTrackerRetryCeiling(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")

	calls := 0
	retryFn := func(ctx context.Context) error {
		calls++
		return nil
	}

	for i := 0; i < DefaultMaxRetries; i++ {
		tr.SetError(errors.New("network unreachable"))
		if !tr.Retry(context.Background(), retryFn) {
			t.Fatalf("retry %d should be allowed", i+1)
		}
	}

	tr.SetError(errors.New("network unreachable"))
	if tr.Retry(context.Background(), retryFn) {
		t.Fatal("retry past the ceiling should be refused")
	}
	if calls != DefaultMaxRetries {
		t.Fatalf("retryFn called %d times, want %d", calls, DefaultMaxRetries)
	}
	if got := tr.Recovery().RetryCount; got != DefaultMaxRetries {
		t.Fatalf("RetryCount = %d, want %d", got, DefaultMaxRetries)
	}
}

func TestTrackerConfiguredRetryCeiling(t *testing.T) {
	tr := NewTracker("deal-1", nil, 1)
	tr.sleep = func(time.Duration) {}
	tr.spawn = func(name string, fn func(ctx context.Context) error) { _ = fn(context.Background()) }
	tr.Start("job-1", "cim.pdf")

	if got := tr.Recovery().MaxRetries; got != 1 {
		t.Fatalf("MaxRetries = %d, want 1", got)
	}

	tr.SetError(errors.New("network unreachable"))
	if !tr.Retry(context.Background(), func(ctx context.Context) error { return nil }) {
		t.Fatal("first retry should be allowed")
	}
	tr.SetError(errors.New("network unreachable"))
	if tr.Retry(context.Background(), func(ctx context.Context) error { return nil }) {
		t.Fatal("configured ceiling of 1 should refuse a second retry")
	}
}

func TestTrackerRetryRefusesNonRetryable(t *testing.T) {
	tr, slept := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")
	tr.SetError(errors.New("401 unauthorized"))

	called := false
	if tr.Retry(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}) {
		t.Fatal("authentication errors must not retry")
	}
	if called {
		t.Fatal("retryFn must not run for non-retryable errors")
	}
	if len(*slept) != 0 {
		t.Fatal("no backoff should occur for refused retries")
	}
	if got := tr.Recovery().RetryCount; got != 0 {
		t.Fatalf("refused retry consumed budget: %d", got)
	}
}

func TestTrackerRetryNoBackoffForParsing(t *testing.T) {
	tr, slept := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")
	tr.SetError(errors.New("could not parse response"))

	if !tr.Retry(context.Background(), func(ctx context.Context) error { return nil }) {
		t.Fatal("parsing errors are retryable")
	}
	if len(*slept) != 0 {
		t.Fatalf("parsing retries must not back off, slept %v", *slept)
	}
}

func TestTrackerRetryFnFailureIsCaught(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")
	tr.SetError(errors.New("network unreachable"))

	if tr.Retry(context.Background(), func(ctx context.Context) error {
		return errors.New("still down")
	}) {
		t.Fatal("failed retry should report false")
	}
	rec := tr.Recovery()
	if rec.IsRecovering {
		t.Fatal("IsRecovering should clear after a failed retry")
	}
	if rec.RetryCount != 1 {
		t.Fatalf("failed retry should still consume budget, got %d", rec.RetryCount)
	}
}

func TestTrackerApplyResultInsertIsIdempotent(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")
	tr.UpdateProgress(60, StepAnalysis, nil)

	ev := realtime.Event{
		Table:  realtime.TableAnalysisResults,
		Type:   realtime.EventInsert,
		DealID: "deal-1",
	}
	tr.Apply(ev)
	first := tr.Snapshot()
	tr.Apply(ev)
	tr.Apply(ev)
	second := tr.Snapshot()

	if first.IsProcessing || first.Progress != 100 || first.CurrentStep != StepComplete {
		t.Fatalf("result insert should complete: %+v", first)
	}
	if second.IsProcessing != first.IsProcessing || second.Progress != first.Progress || second.CurrentStep != first.CurrentStep {
		t.Fatalf("repeated apply changed state: %+v vs %+v", first, second)
	}
}

func TestTrackerApplyResultInsertOverridesError(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")
	tr.SetError(errors.New("network down"))

	tr.Apply(realtime.Event{
		Table:  realtime.TableAnalysisResults,
		Type:   realtime.EventInsert,
		DealID: "deal-1",
	})

	st := tr.Snapshot()
	if st.Error != nil || st.CurrentStep != StepComplete {
		t.Fatalf("completion must clear the error view: %+v", st)
	}
}

func TestTrackerApplyIgnoresForeignDeal(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")
	tr.UpdateProgress(40, StepAnalysis, nil)

	tr.Apply(realtime.Event{
		Table:  realtime.TableAnalysisResults,
		Type:   realtime.EventInsert,
		DealID: "deal-other",
	})

	if st := tr.Snapshot(); st.CurrentStep == StepComplete {
		t.Fatal("foreign deal event mutated state")
	}
}

func TestTrackerApplyJobUpdate(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")

	tr.Apply(realtime.Event{
		Table:  realtime.TableJobs,
		Type:   realtime.EventUpdate,
		DealID: "deal-1",
		Payload: map[string]any{
			"id":           "job-1",
			"status":       StatusProcessing,
			"progress":     float64(55),
			"current_step": StepAnalysis,
			"agent_results": map[string]any{
				"financial": map[string]any{
					"status":       AgentCompleted,
					"model":        "gpt-4o",
					"input_tokens": float64(900),
				},
			},
		},
	})

	st := tr.Snapshot()
	if st.Progress != 55 || st.CurrentStep != StepAnalysis {
		t.Fatalf("job update not applied: %+v", st)
	}
	if got := st.AgentResults["financial"]; got.InputTokens != 900 {
		t.Fatalf("agent results not decoded: %+v", got)
	}
}

func TestTrackerAdoptJobTerminalStates(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.AdoptJob(Job{ID: "job-1", Status: StatusFailed, ErrorMessage: "network down"})

	st := tr.Snapshot()
	if st.Error == nil || st.Error.Type != ErrorNetwork {
		t.Fatalf("failed job should surface a classified error: %+v", st.Error)
	}

	tr.AdoptJob(Job{ID: "job-1", Status: StatusCompleted})
	st = tr.Snapshot()
	if st.Error != nil || st.Progress != 100 {
		t.Fatalf("completed job should absorb: %+v", st)
	}
}

func TestTrackerSnapshotIsACopy(t *testing.T) {
	tr, _ := newTestTracker("deal-1", nil)
	tr.Start("job-1", "cim.pdf")
	tr.UpdateProgress(10, StepAnalysis, map[string]AgentResult{"a": {Status: "running"}})

	st := tr.Snapshot()
	st.AgentResults["a"] = AgentResult{Status: "tampered"}

	if got := tr.Snapshot().AgentResults["a"].Status; got != "running" {
		t.Fatalf("snapshot aliased internal state: %q", got)
	}
}
