package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// countingProjector folds events into a counter so the streamed snapshot is
// easy to assert on.
type countingProjector struct {
	mu     sync.Mutex
	dealID string
	seen   int
}

func (p *countingProjector) Apply(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.DealID == p.dealID {
		p.seen++
	}
}

func (p *countingProjector) View() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{"dealId": p.dealID, "seen": p.seen}
}

// closeNotifyRecorder makes httptest.ResponseRecorder usable with
// gin.Context.Stream, which requires the writer to implement
// http.CloseNotifier.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newCloseNotifyRecorder() *closeNotifyRecorder {
	return &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func newEventsRouter(hub *Hub, factory func(ctx context.Context, dealID string) Projector) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewHandler(hub)
	h.NewProjector = factory
	api := router.Group("/api/v1")
	h.RegisterRoutes(api)
	return router
}

func TestStreamSendsInitialSnapshot(t *testing.T) {
	hub := NewHub()
	router := newEventsRouter(hub, func(ctx context.Context, dealID string) Projector {
		return &countingProjector{dealID: dealID}
	})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals/deal-1/events", nil).WithContext(ctx)
	resp := newCloseNotifyRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(resp, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end after context cancel")
	}

	body := resp.Body.String()
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.Contains(body, "event:state") {
		t.Fatalf("initial state frame missing: %q", body)
	}
	if !strings.Contains(body, `\"seen\":0`) && !strings.Contains(body, `"seen":0`) {
		t.Fatalf("snapshot payload missing: %q", body)
	}
}

func TestStreamProjectsPublishedEvents(t *testing.T) {
	hub := NewHub()
	router := newEventsRouter(hub, func(ctx context.Context, dealID string) Projector {
		return &countingProjector{dealID: dealID}
	})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals/deal-1/events", nil).WithContext(ctx)
	resp := newCloseNotifyRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(resp, req)
		close(done)
	}()

	// Let the subscription register before publishing.
	time.Sleep(50 * time.Millisecond)
	hub.Publish(Event{Table: TableJobs, Type: EventUpdate, DealID: "deal-1"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end after context cancel")
	}

	body := resp.Body.String()
	if !strings.Contains(body, "event:change") {
		t.Fatalf("change frame missing: %q", body)
	}
	if !strings.Contains(body, `\"seen\":1`) && !strings.Contains(body, `"seen":1`) {
		t.Fatalf("projected snapshot missing: %q", body)
	}
}

func TestStreamWithoutProjectorStillDeliversChanges(t *testing.T) {
	hub := NewHub()
	router := newEventsRouter(hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals/deal-1/events", nil).WithContext(ctx)
	resp := newCloseNotifyRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(resp, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	hub.Publish(Event{Table: TableAnalysisResults, Type: EventInsert, DealID: "deal-1"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end after context cancel")
	}

	body := resp.Body.String()
	if strings.Contains(body, "event:state") {
		t.Fatalf("state frame should require a projector: %q", body)
	}
	if !strings.Contains(body, "event:change") {
		t.Fatalf("change frame missing: %q", body)
	}
}
