package analyses

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dealdesk-backend/internal/aiserver"
	"dealdesk-backend/internal/documents"
	"dealdesk-backend/internal/jobs"
	"dealdesk-backend/internal/queue"
	"dealdesk-backend/internal/realtime"
	"dealdesk-backend/internal/shared/storage/object"
	"dealdesk-backend/internal/shared/storage/object/local"
	"dealdesk-backend/internal/usage"
)

type fakeAI struct {
	out     aiserver.ProcessResult
	err     error
	gotText string

	memo    map[string]any
	memoErr error
}

func (f *fakeAI) ProcessDocument(ctx context.Context, req aiserver.ProcessRequest) (aiserver.ProcessResult, error) {
	f.gotText = req.DocumentText
	if f.err != nil {
		return aiserver.ProcessResult{}, f.err
	}
	return f.out, nil
}

func (f *fakeAI) GenerateMemo(ctx context.Context, dealID string) (map[string]any, error) {
	if f.memoErr != nil {
		return nil, f.memoErr
	}
	if f.memo != nil {
		return f.memo, nil
	}
	return map[string]any{"executive_summary": "draft memo for " + dealID}, nil
}

type fakeQueue struct {
	sent []queue.Message
	err  error
}

func (f *fakeQueue) Send(ctx context.Context, msg queue.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type pipelineFixture struct {
	svc     *Service
	jobs    *jobs.Service
	docs    *documents.Service
	docRepo documents.Repo
	hub     *realtime.Hub
	store   object.ObjectStore
	ai      *fakeAI
	usage   *usage.Service
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	store := local.New(t.TempDir())
	docRepo := documents.NewMemoryRepo()
	resultRepo := NewMemoryRepo()
	hub := realtime.NewHub()
	jobSvc := jobs.NewService(jobs.NewMemoryRepo(), hub, resultRepo, 0)
	usageSvc := usage.NewService()
	ai := &fakeAI{
		out: aiserver.ProcessResult{
			Result: map[string]any{
				"financial_metrics": map[string]any{"revenue_cagr": "15%"},
				"recommendation":    "proceed",
			},
			Agents: []aiserver.AgentUsage{
				{Agent: "financial", Model: "gpt-4o", InputTokens: 1200, OutputTokens: 300, ProcessingMS: 4200},
			},
		},
	}

	return &pipelineFixture{
		svc: &Service{
			Repo:  resultRepo,
			Docs:  docRepo,
			Store: store,
			Jobs:  jobSvc,
			AI:    ai,
			Hub:   hub,
			Usage: usageSvc,
		},
		jobs:    jobSvc,
		docs:    documents.NewService(store, docRepo),
		docRepo: docRepo,
		hub:     hub,
		store:   store,
		ai:      ai,
		usage:   usageSvc,
	}
}

func (p *pipelineFixture) uploadDoc(t *testing.T, dealID string) documents.Document {
	t.Helper()
	doc, err := p.docs.Upload(context.Background(), dealID, "cim.txt",
		bytes.NewReader([]byte("Project Atlas CIM. Revenue CAGR 15%.")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return doc
}

func TestProcessHappyPath(t *testing.T) {
	p := newPipeline(t)
	doc := p.uploadDoc(t, "deal-1")

	job, err := p.jobs.Create(context.Background(), "deal-1", doc.ID, jobs.TypeCIMAnalysis)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	events, cancel := p.hub.Subscribe("deal-1")
	defer cancel()

	if err := p.svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !strings.Contains(p.ai.gotText, "Revenue CAGR") {
		t.Fatalf("AI did not receive extracted text: %q", p.ai.gotText)
	}

	done, err := p.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if done.Status != jobs.StatusCompleted || done.Progress != 100 {
		t.Fatalf("job not completed: %+v", done)
	}
	if done.AgentResults["financial"].Model != "gpt-4o" {
		t.Fatalf("agent results not persisted: %+v", done.AgentResults)
	}

	res, err := p.svc.Latest(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if res.Result["recommendation"] != "proceed" {
		t.Fatalf("unexpected stored result: %+v", res.Result)
	}

	sawInsert := false
	deadline := time.After(time.Second)
	for !sawInsert {
		select {
		case ev := <-events:
			if ev.Table == realtime.TableAnalysisResults && ev.Type == realtime.EventInsert {
				sawInsert = true
			}
		case <-deadline:
			t.Fatal("analysis insert event not published")
		}
	}

	summary, err := p.usage.SummaryForDeal(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("usage summary: %v", err)
	}
	if summary.Records != 1 || summary.TotalCostUSD == 0 {
		t.Fatalf("usage not recorded: %+v", summary)
	}

	updated, err := p.docRepo.GetByID(context.Background(), "deal-1", doc.ID)
	if err != nil {
		t.Fatalf("get doc: %v", err)
	}
	if updated.ExtractedTextKey == "" {
		t.Fatal("extracted text key not recorded")
	}
}

func TestProcessAIFailureFailsJob(t *testing.T) {
	p := newPipeline(t)
	doc := p.uploadDoc(t, "deal-1")
	p.ai.err = errors.New("fetch failed: connection refused")

	job, err := p.jobs.Create(context.Background(), "deal-1", doc.ID, jobs.TypeCIMAnalysis)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := p.svc.Process(context.Background(), job.ID); err == nil {
		t.Fatal("expected processing error")
	}

	failed, err := p.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if failed.Status != jobs.StatusFailed {
		t.Fatalf("Status = %q, want failed", failed.Status)
	}
	if !strings.Contains(failed.ErrorMessage, "fetch failed") {
		t.Fatalf("error message not preserved: %q", failed.ErrorMessage)
	}
}

func TestProcessSkipsCancelledJob(t *testing.T) {
	p := newPipeline(t)
	doc := p.uploadDoc(t, "deal-1")

	job, err := p.jobs.Create(context.Background(), "deal-1", doc.ID, jobs.TypeCIMAnalysis)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := p.jobs.Cancel(context.Background(), "deal-1", job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := p.svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process on cancelled job should be a no-op: %v", err)
	}
	if p.ai.gotText != "" {
		t.Fatal("AI must not run for a cancelled job")
	}
	if _, err := p.svc.Latest(context.Background(), "deal-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no result should be stored, got %v", err)
	}
}

func TestStartEnqueuesWhenQueueConfigured(t *testing.T) {
	p := newPipeline(t)
	doc := p.uploadDoc(t, "deal-1")
	q := &fakeQueue{}
	p.svc.Queue = q

	job, err := p.svc.Start(context.Background(), "deal-1", doc.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(q.sent) != 1 {
		t.Fatalf("expected 1 enqueued message, got %d", len(q.sent))
	}
	if q.sent[0].JobID != job.ID || q.sent[0].DealID != "deal-1" {
		t.Fatalf("unexpected message: %+v", q.sent[0])
	}

	// Job stays pending for the worker to pick up.
	got, err := p.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != jobs.StatusPending {
		t.Fatalf("Status = %q, want pending", got.Status)
	}
}

func TestStartRefusesWithoutDocument(t *testing.T) {
	p := newPipeline(t)
	if _, err := p.svc.Start(context.Background(), "deal-1", ""); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("err = %v, want ErrNoDocument", err)
	}
}

func TestStartSelectsExcelJobType(t *testing.T) {
	p := newPipeline(t)
	p.svc.Queue = &fakeQueue{}

	doc, err := p.docs.Upload(context.Background(), "deal-1", "Model.XLSX",
		bytes.NewReader([]byte("revenue,2024\n100,120")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	job, err := p.svc.Start(context.Background(), "deal-1", doc.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.JobType != jobs.TypeExcelAnalysis {
		t.Fatalf("JobType = %q, want %q", job.JobType, jobs.TypeExcelAnalysis)
	}
}

func (p *pipelineFixture) seedResult(t *testing.T, dealID string) {
	t.Helper()
	err := p.svc.Repo.Create(context.Background(), Result{
		ID:        "res-1",
		DealID:    dealID,
		JobType:   jobs.TypeCIMAnalysis,
		Result:    map[string]any{"recommendation": "proceed"},
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("seed result: %v", err)
	}
}

func TestProcessMemoHappyPath(t *testing.T) {
	p := newPipeline(t)
	p.seedResult(t, "deal-1")
	p.ai.memo = map[string]any{
		"executive_summary": "attractive platform acquisition",
		"recommendation":    "proceed to LOI",
	}

	job, err := p.jobs.Create(context.Background(), "deal-1", "", jobs.TypeMemo)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := p.svc.ProcessMemo(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessMemo: %v", err)
	}

	done, err := p.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if done.Status != jobs.StatusCompleted || done.Progress != 100 {
		t.Fatalf("memo job not completed: %+v", done)
	}

	res, err := p.svc.Latest(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if res.JobType != jobs.TypeMemo {
		t.Fatalf("JobType = %q, want %q", res.JobType, jobs.TypeMemo)
	}
	if res.Result["recommendation"] != "proceed to LOI" {
		t.Fatalf("unexpected memo: %+v", res.Result)
	}
}

func TestProcessMemoFailureFailsJob(t *testing.T) {
	p := newPipeline(t)
	p.seedResult(t, "deal-1")
	p.ai.memoErr = errors.New("fetch failed: connection refused")

	job, err := p.jobs.Create(context.Background(), "deal-1", "", jobs.TypeMemo)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := p.svc.ProcessMemo(context.Background(), job.ID); err == nil {
		t.Fatal("expected memo error")
	}

	failed, err := p.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if failed.Status != jobs.StatusFailed {
		t.Fatalf("Status = %q, want failed", failed.Status)
	}
}

func TestStartMemoRequiresAnalysis(t *testing.T) {
	p := newPipeline(t)
	if _, err := p.svc.StartMemo(context.Background(), "deal-1"); !errors.Is(err, ErrNoAnalysis) {
		t.Fatalf("err = %v, want ErrNoAnalysis", err)
	}
}

func TestStartMemoReturnsActiveJob(t *testing.T) {
	p := newPipeline(t)
	p.seedResult(t, "deal-1")

	running, err := p.jobs.Create(context.Background(), "deal-1", "doc-1", jobs.TypeCIMAnalysis)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	again, err := p.svc.StartMemo(context.Background(), "deal-1")
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
	if again.ID != running.ID {
		t.Fatalf("expected the running job back, got %+v", again)
	}
}

func TestStartReturnsActiveJob(t *testing.T) {
	p := newPipeline(t)
	doc := p.uploadDoc(t, "deal-1")
	q := &fakeQueue{}
	p.svc.Queue = q

	first, err := p.svc.Start(context.Background(), "deal-1", doc.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	again, err := p.svc.Start(context.Background(), "deal-1", doc.ID)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected the existing job back, got %+v", again)
	}
	if len(q.sent) != 1 {
		t.Fatalf("duplicate start enqueued a second message: %d", len(q.sent))
	}
}
