package deals

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dealdesk-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the deals service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches deal routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/deals", h.createDeal)
	rg.GET("/deals", h.listDeals)
	rg.GET("/deals/:id", h.getDeal)
	rg.PATCH("/deals/:id", h.updateDeal)
	rg.DELETE("/deals/:id", h.deleteDeal)
	rg.GET("/deals/:id/summary", h.dealSummary)
}

type dealRequest struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Status  string `json:"status"`
}

func (h *Handler) createDeal(c *gin.Context) {
	var req dealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	deal, err := h.Svc.Create(c.Request.Context(), req.Name, req.Company)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "deal name is required", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create deal", nil)
		}
		return
	}

	respond.JSON(c, http.StatusCreated, deal)
}

func (h *Handler) listDeals(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	list, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list deals", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"deals": list})
}

func (h *Handler) getDeal(c *gin.Context) {
	deal, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "deal not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch deal", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, deal)
}

func (h *Handler) updateDeal(c *gin.Context) {
	var req dealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	deal, err := h.Svc.Update(c.Request.Context(), c.Param("id"), req.Name, req.Company, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "deal not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid deal status", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to update deal", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, deal)
}

func (h *Handler) deleteDeal(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "deal not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete deal", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) dealSummary(c *gin.Context) {
	summary, err := h.Svc.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "deal not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build summary", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, summary)
}
