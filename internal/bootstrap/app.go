package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"docvault-backend/internal/audit"
	"docvault-backend/internal/documents"
	"docvault-backend/internal/notify"
	"docvault-backend/internal/queue"
	"docvault-backend/internal/shared/config"
	"docvault-backend/internal/shared/server"
	"docvault-backend/internal/shared/storage/db"
	"docvault-backend/internal/shared/storage/object"
	localstore "docvault-backend/internal/shared/storage/object/local"
	miniostore "docvault-backend/internal/shared/storage/object/minio"
	s3store "docvault-backend/internal/shared/storage/object/s3"
	"docvault-backend/internal/sharing"
	"docvault-backend/internal/uploads"
	"docvault-backend/internal/users"
)

// App holds the wired application. The API process uses Router; the worker
// process uses Orchestrator directly and leaves Router nil.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Hub    *notify.Hub
	Pool   *queue.Pool

	UsersRepo     users.Repo
	DocumentsRepo documents.Repo
	TasksRepo     uploads.Repo
	SharesRepo    sharing.Repo
	AuditRepo     audit.Repo

	UsersService     *users.Service
	SharingService   *sharing.Service
	AuditService     *audit.Service
	DocumentsService *documents.Service
	Orchestrator     *uploads.Orchestrator

	DocumentsHandler *documents.Handler
	UploadsHandler   *uploads.Handler
	SharingHandler   *sharing.Handler
	UsersHandler     *users.Handler
}

// BuildOptions selects process-specific wiring.
type BuildOptions struct {
	// WithRouter mounts the HTTP surface. The worker builds without it.
	WithRouter bool
	// DBOptions defaults to server pool sizing when zero.
	DBOptions db.Options
}

// Build prepares shared dependencies.
func Build(ctx context.Context, cfg config.Config, opts BuildOptions) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	sqlDB, err := buildDB(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Hub:    notify.NewHub(),
	}

	buildRepos(app)
	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}

	if opts.WithRouter {
		app.Router = server.NewRouter(server.RouterDeps{
			Config:           app.Config,
			DocumentsHandler: app.DocumentsHandler,
			UploadsHandler:   app.UploadsHandler,
			SharingHandler:   app.SharingHandler,
			UsersHandler:     app.UsersHandler,
		})
	}

	return app, nil
}

// Close releases held resources, draining the worker pool first.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.Pool != nil {
		if err := a.Pool.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildDB(ctx context.Context, cfg config.Config, opts BuildOptions) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	dbOpts := opts.DBOptions
	if dbOpts == (db.Options{}) {
		dbOpts = db.OptionsFromEnv(db.DefaultServerOptions())
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, dbOpts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		return miniostore.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildRepos(app *App) {
	if app.DB != nil {
		app.UsersRepo = &users.PGRepo{DB: app.DB}
		app.DocumentsRepo = &documents.PGRepo{DB: app.DB}
		app.TasksRepo = &uploads.PGRepo{DB: app.DB}
		app.SharesRepo = &sharing.PGRepo{DB: app.DB}
		app.AuditRepo = &audit.PGRepo{DB: app.DB}
		return
	}
	app.UsersRepo = users.NewMemoryRepo()
	app.DocumentsRepo = documents.NewMemoryRepo()
	app.TasksRepo = uploads.NewMemoryRepo()
	app.SharesRepo = sharing.NewMemoryRepo()
	app.AuditRepo = audit.NewMemoryRepo()
}

func buildServices(ctx context.Context, app *App) error {
	cfg := app.Config

	app.UsersService = users.NewService(app.UsersRepo)
	app.AuditService = &audit.Service{Repo: app.AuditRepo}

	app.SharingService = &sharing.Service{
		Repo:  app.SharesRepo,
		Users: app.UsersRepo,
		Docs:  documentOwners{repo: app.DocumentsRepo},
	}

	app.DocumentsService = &documents.Service{
		Repo:       app.DocumentsRepo,
		Access:     app.SharingService,
		Store:      app.Store,
		Audit:      app.AuditService,
		PresignTTL: cfg.PresignTTL,
	}

	app.Orchestrator = &uploads.Orchestrator{
		Tasks:         app.TasksRepo,
		Docs:          app.DocumentsRepo,
		Users:         app.UsersRepo,
		Store:         app.Store,
		Stage:         &uploads.Stager{Dir: cfg.StagingDir},
		Hub:           app.Hub,
		SyncThreshold: cfg.SyncThresholdBytes,
		MaxBytes:      cfg.MaxUploadBytes,
	}

	queueClient, err := buildQueue(ctx, app)
	if err != nil {
		return err
	}
	app.Orchestrator.Queue = queueClient

	app.DocumentsHandler = documents.NewHandler(app.DocumentsService)
	app.UploadsHandler = uploads.NewHandler(app.Orchestrator, app.DocumentsService, cfg.MaxUploadBytes, cfg.StatusPollWindow)
	app.SharingHandler = sharing.NewHandler(app.SharingService)
	app.UsersHandler = users.NewHandler(app.UsersService)

	return nil
}

// buildQueue returns either the in-process pool, which executes jobs with
// the orchestrator directly, or an SQS producer whose jobs are consumed by
// cmd/worker.
func buildQueue(ctx context.Context, app *App) (queue.Client, error) {
	cfg := app.Config
	if cfg.QueueBackend == "sqs" {
		return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
	}

	app.Pool = queue.NewPool(app.Orchestrator, queue.PoolOptions{
		Concurrency: cfg.WorkerConcurrency,
		MaxAttempts: cfg.JobMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		JobTimeout:  cfg.JobTimeout,
	})
	return app.Pool, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

// documentOwners adapts the documents repository to the ownership lookup
// the sharing service needs, translating not-found across the package
// boundary.
type documentOwners struct {
	repo documents.Repo
}

func (d documentOwners) Owner(ctx context.Context, documentID string) (string, error) {
	doc, err := d.repo.GetByID(ctx, documentID)
	if err != nil {
		if err == documents.ErrNotFound {
			return "", sharing.ErrDocumentNotFound
		}
		return "", err
	}
	if doc.Status == documents.StatusDeleted {
		return "", sharing.ErrDocumentNotFound
	}
	return doc.OwnerID, nil
}
