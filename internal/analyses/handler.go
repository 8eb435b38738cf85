package analyses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dealdesk-backend/internal/documents"
	"dealdesk-backend/internal/scan"
	"dealdesk-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc     *Service
	Scanner *scan.Scanner
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, Scanner: scan.NewScanner()}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/deals/:id/analyze", h.startAnalysis)
	rg.GET("/deals/:id/analysis", h.getAnalysis)
	rg.POST("/deals/:id/memo", h.startMemo)
}

type analyzeRequest struct {
	DocumentID string `json:"documentId"`
}

func (h *Handler) startAnalysis(c *gin.Context) {
	dealID := c.Param("id")
	if dealID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "deal id is required", nil)
		return
	}

	var req analyzeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	job, err := h.Svc.Start(c.Request.Context(), dealID, req.DocumentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			respond.JSON(c, http.StatusOK, gin.H{
				"jobId":  job.ID,
				"status": job.Status,
			})
		case errors.Is(err, ErrNoDocument), errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusBadRequest, "no_document", "upload a document before starting analysis", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) startMemo(c *gin.Context) {
	dealID := c.Param("id")
	if dealID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "deal id is required", nil)
		return
	}

	job, err := h.Svc.StartMemo(c.Request.Context(), dealID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			respond.JSON(c, http.StatusOK, gin.H{
				"jobId":  job.ID,
				"status": job.Status,
			})
		case errors.Is(err, ErrNoAnalysis):
			respond.Error(c, http.StatusBadRequest, "no_analysis", "run an analysis before generating a memo", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start memo generation", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	dealID := c.Param("id")

	res, err := h.Svc.Latest(c.Request.Context(), dealID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "no analysis for this deal yet", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}

	fields := h.Scanner.Scan(c.Request.Context(), res.Result)
	sections := scan.GroupSections(fields)

	respond.JSON(c, http.StatusOK, gin.H{
		"id":        res.ID,
		"dealId":    res.DealID,
		"jobType":   res.JobType,
		"createdAt": res.CreatedAt,
		"result":    res.Result,
		"sections":  sections,
	})
}
