// Package realtime fans out row-change events to deal-scoped subscribers.
// Repos publish after every write; the processing-status tracker and the SSE
// endpoint consume. Delivery is best-effort: a slow subscriber drops events
// rather than blocking publishers.
package realtime

import (
	"sync"

	"dealdesk-backend/internal/shared/telemetry"
)

// Event types mirror the row-level changes subscribers care about.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
)

// Table names events are scoped to.
const (
	TableJobs            = "processing_jobs"
	TableAnalysisResults = "analysis_results"
)

// Event is one row-level change on a deal-scoped table.
type Event struct {
	Table   string         `json:"table"`
	Type    string         `json:"type"`
	DealID  string         `json:"dealId"`
	Payload map[string]any `json:"payload"`
}

const subscriberBuffer = 16

// Hub is an in-process broker for deal-scoped events.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Event)}
}

// Publish delivers the event to every subscriber of its deal. Never blocks.
func (h *Hub) Publish(ev Event) {
	if h == nil || ev.DealID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs[ev.DealID] {
		select {
		case ch <- ev:
		default:
			telemetry.Warn("realtime.drop", map[string]any{
				"deal_id":    ev.DealID,
				"table":      ev.Table,
				"subscriber": id,
			})
		}
	}
}

// Subscribe returns a channel of events for one deal and a cancel function.
// The channel is closed on cancel.
func (h *Hub) Subscribe(dealID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[dealID] == nil {
		h.subs[dealID] = make(map[int]chan Event)
	}
	h.subs[dealID][id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subs[dealID]; ok {
			if _, live := subs[id]; live {
				delete(subs, id)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subs, dealID)
			}
		}
	}
	return ch, cancel
}
