package usage

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dealdesk-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the usage service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches usage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/deals/:id/usage", h.dealUsage)
}

func (h *Handler) dealUsage(c *gin.Context) {
	dealID := c.Param("id")
	if dealID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "deal id is required", nil)
		return
	}

	summary, err := h.Svc.SummaryForDeal(c.Request.Context(), dealID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build usage summary", nil)
		return
	}
	respond.JSON(c, http.StatusOK, summary)
}
