package jobs

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dealdesk-backend/internal/shared/server/respond"
	"dealdesk-backend/internal/shared/telemetry"
)

// Handler wires HTTP handlers to the jobs service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/deals/:id/jobs/active", h.listActive)
	rg.POST("/deals/:id/jobs/cancel", h.cancelJob)
}

func (h *Handler) listActive(c *gin.Context) {
	dealID := c.Param("id")
	if dealID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "deal id is required", nil)
		return
	}

	// Absorb a lost completion write before reporting, so a job whose result
	// landed never shows as stuck.
	if _, err := h.Svc.ReconcileDeal(c.Request.Context(), dealID); err != nil {
		telemetry.Warn("jobs.reconcile_failed", map[string]any{
			"deal_id": dealID,
			"error":   err.Error(),
		})
	}

	active, err := h.Svc.Active(c.Request.Context(), dealID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list active jobs", nil)
		return
	}

	recent, err := h.Svc.RecentCompletion(c.Request.Context(), dealID)
	if err != nil {
		// The back-check is best effort; active jobs are still useful.
		recent = false
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"jobs":             active,
		"recentCompletion": recent,
	})
}

type cancelRequest struct {
	JobID string `json:"jobId" binding:"required"`
}

func (h *Handler) cancelJob(c *gin.Context) {
	dealID := c.Param("id")
	if dealID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "deal id is required", nil)
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "jobId is required", nil)
		return
	}

	job, err := h.Svc.Cancel(c.Request.Context(), dealID, req.JobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
		case errors.Is(err, ErrNotActive):
			respond.Error(c, http.StatusConflict, "not_active", "job is not active", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to cancel job", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}
