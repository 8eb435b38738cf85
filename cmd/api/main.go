package main

import (
	"context"
	"log"
	"time"

	"dealdesk-backend/internal/bootstrap"
	"dealdesk-backend/internal/shared/config"
	"dealdesk-backend/internal/shared/server"
	"dealdesk-backend/internal/shared/telemetry"
)

const reconcileInterval = 5 * time.Minute

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	go checkAIServer(app)
	go reconcileLoop(app)

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// checkAIServer reports whether the analysis server answers its health
// endpoint. Startup is not blocked on it; analyses fail and classify later if
// the server stays down.
func checkAIServer(app *bootstrap.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.AI.Health(ctx); err != nil {
		telemetry.Warn("aiserver.unreachable", map[string]any{
			"url":   app.Config.AIServerURL,
			"error": err.Error(),
		})
		return
	}
	telemetry.Info("aiserver.healthy", map[string]any{"url": app.Config.AIServerURL})
}

// reconcileLoop periodically resolves jobs that stopped making progress,
// completing those with a stored result and failing the rest.
func reconcileLoop(app *bootstrap.App) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		resolved, err := app.JobsService.ReconcileStuck(ctx)
		cancel()
		if err != nil {
			telemetry.Warn("jobs.reconcile_failed", map[string]any{"error": err.Error()})
			continue
		}
		if resolved > 0 {
			telemetry.Info("jobs.reconcile_pass", map[string]any{"resolved": resolved})
		}
	}
}
