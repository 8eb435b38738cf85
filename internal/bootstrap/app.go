package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"dealdesk-backend/internal/aiserver"
	"dealdesk-backend/internal/analyses"
	"dealdesk-backend/internal/deals"
	"dealdesk-backend/internal/documents"
	"dealdesk-backend/internal/jobs"
	"dealdesk-backend/internal/queue"
	"dealdesk-backend/internal/realtime"
	"dealdesk-backend/internal/shared/config"
	"dealdesk-backend/internal/shared/server"
	"dealdesk-backend/internal/shared/storage/db"
	"dealdesk-backend/internal/shared/storage/object"
	localstore "dealdesk-backend/internal/shared/storage/object/local"
	s3store "dealdesk-backend/internal/shared/storage/object/s3"
	"dealdesk-backend/internal/usage"
)

// App holds shared dependencies for the API server and the worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client
	Hub    *realtime.Hub
	AI     *aiserver.Client

	DealsRepo     deals.Repo
	DocumentsRepo documents.Repo
	JobsRepo      jobs.Repo
	AnalysesRepo  analyses.Repo

	DealsService     *deals.Service
	DocumentsService *documents.Service
	JobsService      *jobs.Service
	AnalysesService  *analyses.Service
	UsageService     *usage.Service

	DealHandler     *deals.Handler
	DocumentHandler *documents.Handler
	JobHandler      *jobs.Handler
	AnalysisHandler *analyses.Handler
	UsageHandler    *usage.Handler
	EventsHandler   *realtime.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		Hub:    realtime.NewHub(),
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		DealHandler:     app.DealHandler,
		DocumentHandler: app.DocumentHandler,
		AnalysisHandler: app.AnalysisHandler,
		JobHandler:      app.JobHandler,
		UsageHandler:    app.UsageHandler,
		EventsHandler:   app.EventsHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	// Production schemas are managed by cmd/migrate.
	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			log.Printf("bootstrap: migrations failed; using in-memory repositories: %v", err)
			sqlDB.Close()
			return nil, nil
		}
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("DD_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var dealRepo deals.Repo
	var docRepo documents.Repo
	var jobRepo jobs.Repo
	var analysisRepo analyses.Repo

	if app.DB != nil {
		dealRepo = &deals.PGRepo{DB: app.DB}
		docRepo = &documents.PGRepo{DB: app.DB}
		jobRepo = &jobs.PGRepo{DB: app.DB}
		analysisRepo = &analyses.PGRepo{DB: app.DB}
	} else {
		dealRepo = deals.NewMemoryRepo()
		docRepo = documents.NewMemoryRepo()
		jobRepo = jobs.NewMemoryRepo()
		analysisRepo = analyses.NewMemoryRepo()
	}

	docSvc := documents.NewService(app.Store, docRepo)

	var usageSvc *usage.Service
	if app.DB != nil {
		usageSvc = usage.NewPostgresService(&usage.PGStore{DB: app.DB})
	} else {
		usageSvc = usage.NewService()
	}

	jobSvc := jobs.NewService(jobRepo, app.Hub, analysisRepo, app.Config.CompletionWindow)
	jobSvc.Usage = usageSvc
	jobSvc.MaxRetries = app.Config.MaxRetries

	app.AI = aiserver.NewClient(app.Config.AIServerURL, app.Config.AIServerTimeout)

	analysisSvc := &analyses.Service{
		Repo:    analysisRepo,
		Docs:    docRepo,
		Store:   app.Store,
		Jobs:    jobSvc,
		AI:      app.AI,
		Hub:     app.Hub,
		Queue:   app.Queue,
		Usage:   usageSvc,
		Timeout: app.Config.AIServerTimeout,
	}

	dealSvc := deals.NewService(dealRepo, docRepo, jobSvc)

	app.DealsRepo = dealRepo
	app.DocumentsRepo = docRepo
	app.JobsRepo = jobRepo
	app.AnalysesRepo = analysisRepo
	app.DealsService = dealSvc
	app.DocumentsService = docSvc
	app.JobsService = jobSvc
	app.AnalysesService = analysisSvc
	app.UsageService = usageSvc
	app.DealHandler = deals.NewHandler(dealSvc)
	app.DocumentHandler = documents.NewHandler(docSvc)
	app.JobHandler = jobs.NewHandler(jobSvc)
	app.AnalysisHandler = analyses.NewHandler(analysisSvc)
	app.UsageHandler = usage.NewHandler(usageSvc)
	app.EventsHandler = realtime.NewHandler(app.Hub)
	app.EventsHandler.NewProjector = func(ctx context.Context, dealID string) realtime.Projector {
		return jobSvc.ProjectDeal(ctx, dealID)
	}

	if app.DealHandler == nil || app.DocumentHandler == nil || app.AnalysisHandler == nil {
		return errors.New("failed to initialize handlers")
	}

	return nil
}
