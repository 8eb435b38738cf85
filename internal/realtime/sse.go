package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"dealdesk-backend/internal/shared/server/respond"
)

// Projector folds a deal's events into one coherent view-level snapshot.
// The jobs tracker implements it.
type Projector interface {
	Apply(Event)
	View() any
}

// Handler streams deal events over server-sent events.
type Handler struct {
	Hub *Hub

	// NewProjector, when set, gives every subscription a projector whose
	// snapshot is streamed alongside the raw events.
	NewProjector func(ctx context.Context, dealID string) Projector
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{Hub: hub}
}

// RegisterRoutes attaches the SSE route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/deals/:id/events", h.streamEvents)
}

func (h *Handler) streamEvents(c *gin.Context) {
	dealID := c.Param("id")
	if dealID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "deal id is required", nil)
		return
	}

	events, cancel := h.Hub.Subscribe(dealID)
	defer cancel()

	var proj Projector
	if h.NewProjector != nil {
		proj = h.NewProjector(c.Request.Context(), dealID)
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Clients start from the current snapshot rather than an empty view.
	h.sendState(c, proj)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if proj != nil {
				proj.Apply(ev)
			}
			if data, err := json.Marshal(ev); err == nil {
				c.SSEvent("change", string(data))
			}
			h.sendState(c, proj)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *Handler) sendState(c *gin.Context, proj Projector) {
	if proj == nil {
		return
	}
	data, err := json.Marshal(proj.View())
	if err != nil {
		return
	}
	c.SSEvent("state", string(data))
}
