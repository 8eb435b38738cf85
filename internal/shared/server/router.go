package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dealdesk-backend/internal/analyses"
	"dealdesk-backend/internal/deals"
	"dealdesk-backend/internal/documents"
	"dealdesk-backend/internal/jobs"
	"dealdesk-backend/internal/realtime"
	"dealdesk-backend/internal/shared/config"
	"dealdesk-backend/internal/shared/server/middleware"
	"dealdesk-backend/internal/shared/server/respond"
	"dealdesk-backend/internal/usage"
)

// RouterDeps carries the handlers the router mounts. Bootstrap fills it in.
type RouterDeps struct {
	Config          config.Config
	DealHandler     *deals.Handler
	DocumentHandler *documents.Handler
	AnalysisHandler *analyses.Handler
	JobHandler      *jobs.Handler
	UsageHandler    *usage.Handler
	EventsHandler   *realtime.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	if deps.DealHandler != nil {
		deps.DealHandler.RegisterRoutes(api)
	}
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.JobHandler != nil {
		deps.JobHandler.RegisterRoutes(api)
	}
	if deps.UsageHandler != nil {
		deps.UsageHandler.RegisterRoutes(api)
	}
	if deps.EventsHandler != nil {
		deps.EventsHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
