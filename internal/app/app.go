package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/handlers"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/matching"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/ternarybob/comparo/internal/queue"
	"github.com/ternarybob/comparo/internal/services/connectors"
	"github.com/ternarybob/comparo/internal/services/embeddings"
	"github.com/ternarybob/comparo/internal/services/events"
	"github.com/ternarybob/comparo/internal/services/ingest"
	"github.com/ternarybob/comparo/internal/services/llm"
	"github.com/ternarybob/comparo/internal/services/matchingjobs"
	"github.com/ternarybob/comparo/internal/services/providers"
	"github.com/ternarybob/comparo/internal/services/reports"
	"github.com/ternarybob/comparo/internal/services/scheduler"
	"github.com/ternarybob/comparo/internal/services/seed"
	"github.com/ternarybob/comparo/internal/services/vector"
	"github.com/ternarybob/comparo/internal/storage"
	badgerstorage "github.com/ternarybob/comparo/internal/storage/badger"
	"github.com/ternarybob/comparo/internal/workers"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event bus and queue
	EventService interfaces.EventService
	QueueManager interfaces.QueueManager
	WorkerPool   interfaces.WorkerPool

	// Pipeline services
	VectorService      *vector.Service
	IngestService      *ingest.Service
	MatchingRunner     *matching.Runner
	MatchingJobService *matchingjobs.Service
	ReportService      *reports.Service

	// Intake and maintenance
	GitHubConnector *connectors.GitHubConnector
	MailConnector   *connectors.MailConnector
	SeedLoader      *seed.Loader
	Scheduler       *scheduler.Service

	// HTTP handlers
	APIHandler         *handlers.APIHandler
	WSHandler          *handlers.WebSocketHandler
	WSWriter           *handlers.WebSocketWriter
	WorkspaceHandler   *handlers.WorkspaceHandler
	EntityHandler      *handlers.EntityHandler
	DocumentHandler    *handlers.DocumentHandler
	TemplateHandler    *handlers.TemplateHandler
	MatchingJobHandler *handlers.MatchingJobHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Apply the seed file once everything that ingestion depends on is wired
	if err := app.SeedLoader.LoadFile(context.Background(), cfg.Seed.Path); err != nil {
		logger.Warn().Err(err).Str("path", cfg.Seed.Path).Msg("Seed file could not be applied")
	}

	// Workers start last so no task is claimed before handlers exist
	if err := app.WorkerPool.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}

	if err := app.Scheduler.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start maintenance scheduler")
	}

	logger.Info().
		Int("queue_concurrency", cfg.Queue.Concurrency).
		Bool("mail_intake", cfg.Mail.Enabled).
		Bool("scheduler", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)

	// Queue shares the storage manager's Badger instance
	backed, ok := a.StorageManager.(interface{ DB() *badgerstorage.BadgerDB })
	if !ok {
		return fmt.Errorf("storage manager is not backed by BadgerDB (got %T)", a.StorageManager)
	}
	badgerDB := backed.DB().Store().Badger()

	queueMgr, err := queue.NewBadgerManager(badgerDB, queue.ConfigFrom(a.Config.Queue), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue manager: %w", err)
	}
	a.QueueManager = queueMgr
	a.Logger.Debug().Str("queue_name", a.Config.Queue.QueueName).Msg("Queue manager initialized")

	// Vector index, loaded from its snapshot when one exists
	vectorService, err := vector.NewService(&a.Config.Vector, a.Config.Embedding.Dimension, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector service: %w", err)
	}
	a.VectorService = vectorService

	// Long-lived embedding client for ingestion. Matching runs build their own
	// per-run clients through the provider factory.
	llmFactory := llm.NewProviderFactory(&a.Config.LLM, &a.Config.Gemini, &a.Config.Claude, a.Logger)
	embedder, err := embeddings.NewProvider(&a.Config.Embedding, llmFactory, a.Logger)
	if err != nil {
		embedder = nil
		a.Logger.Warn().Err(err).Msg("Embedding provider unavailable - document ingestion will fail until configured")
	}

	a.IngestService = ingest.NewService(
		a.StorageManager,
		a.VectorService,
		embedder,
		&a.Config.Ingest,
		&a.Config.Embedding,
		a.Logger,
	)

	providerFactory := providers.NewFactory(a.Config, a.VectorService, a.Logger)
	publisher := matching.NewBroadcastPublisher(a.StorageManager.Updates(), a.EventService, a.Logger)
	a.MatchingRunner = matching.NewRunner(a.StorageManager, providerFactory, publisher, a.Logger)

	a.MatchingJobService = matchingjobs.NewService(a.StorageManager, a.QueueManager, a.Logger)
	a.ReportService = reports.NewService(a.StorageManager, a.Logger)

	// Intake connectors
	a.GitHubConnector = connectors.NewGitHubConnector(&a.Config.GitHub, a.StorageManager, a.QueueManager, a.Logger)
	if a.Config.Mail.Enabled {
		a.MailConnector = connectors.NewMailConnector(&a.Config.Mail, a.StorageManager, a.QueueManager, a.Logger)
	}

	a.SeedLoader = seed.NewLoader(a.StorageManager, a.QueueManager, a.Logger)

	// Worker pool with one handler per task type
	pool := queue.NewPool(a.QueueManager, queue.ConfigFrom(a.Config.Queue), a.Logger)
	matchingWorker := workers.NewMatchingWorker(
		a.MatchingRunner,
		a.QueueManager,
		workers.RetryPolicyFrom(a.Config.Matching),
		a.Logger,
	)
	pool.RegisterHandler(models.TaskRunMatchingJob, matchingWorker.Handle)
	ingestWorker := workers.NewIngestWorker(a.IngestService, a.Logger)
	pool.RegisterHandler(models.TaskIngestDocument, ingestWorker.Handle)
	a.WorkerPool = pool
	a.Logger.Debug().Msg("Worker pool initialized")

	// Maintenance scheduler: stale-run sweep, index snapshots, mail polling.
	// MailConnector is nil when intake is disabled, which skips that schedule.
	var mailPoller scheduler.MailPoller
	if a.MailConnector != nil {
		mailPoller = a.MailConnector
	}
	a.Scheduler = scheduler.NewService(
		&a.Config.Scheduler,
		&a.Config.Matching,
		a.StorageManager,
		a.VectorService,
		mailPoller,
		a.Logger,
	)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)

	// Stream filtered application logs to the global websocket clients
	wsWriter, err := handlers.NewWebSocketWriter(a.WSHandler, a.Logger, &a.Config.WebSocket)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("WebSocket log writer unavailable")
	} else {
		a.WSWriter = wsWriter
	}

	a.APIHandler = handlers.NewAPIHandler(a.StorageManager, a.QueueManager, a.VectorService)
	a.WorkspaceHandler = handlers.NewWorkspaceHandler(a.StorageManager, a.Logger)
	a.EntityHandler = handlers.NewEntityHandler(a.StorageManager, a.QueueManager, a.Logger)
	a.EntityHandler.SetSyncer(a.GitHubConnector)
	a.DocumentHandler = handlers.NewDocumentHandler(a.StorageManager, a.QueueManager, a.Logger)
	a.TemplateHandler = handlers.NewTemplateHandler(a.StorageManager, a.Logger)
	a.MatchingJobHandler = handlers.NewMatchingJobHandler(a.MatchingJobService, a.ReportService, a.StorageManager, a.Logger)

	return nil
}

// Close closes all application resources in reverse initialization order
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop worker pool")
		}
	}

	if a.WSWriter != nil {
		if err := a.WSWriter.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close websocket log writer")
		}
	}

	if a.VectorService != nil {
		if err := a.VectorService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close vector service")
		} else {
			a.Logger.Info().Msg("Vector index snapshot saved")
		}
	}

	if a.QueueManager != nil {
		if err := a.QueueManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue manager")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
