// -----------------------------------------------------------------------
// Application wiring - builds every service, the scheduler, the worker
// pool and the HTTP handlers from one config.
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/handlers"
	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/registry"
	"github.com/bamtlabs/wsiflow/internal/scheduler"
	"github.com/bamtlabs/wsiflow/internal/services/branches"
	"github.com/bamtlabs/wsiflow/internal/services/execution"
	"github.com/bamtlabs/wsiflow/internal/services/jobs"
	"github.com/bamtlabs/wsiflow/internal/services/slides"
	"github.com/bamtlabs/wsiflow/internal/services/users"
	"github.com/bamtlabs/wsiflow/internal/services/workflows"
	"github.com/bamtlabs/wsiflow/internal/store"
	"github.com/bamtlabs/wsiflow/internal/templates"
	"github.com/bamtlabs/wsiflow/internal/workers"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger
	Store  *store.RedisStore

	// Domain services
	JobService       interfaces.JobService
	UserService      interfaces.UserService
	WorkflowService  interfaces.WorkflowService
	BranchService    interfaces.BranchService
	SlideService     interfaces.SlideService
	ExecutionService interfaces.ExecutionService

	// Execution machinery
	Registry    *registry.Registry
	Scheduler   *scheduler.Scheduler
	Maintenance *scheduler.Maintenance
	WorkerPool  *workers.Pool

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	UserHandler      *handlers.UserHandler
	WorkflowHandler  *handlers.WorkflowHandler
	JobHandler       *handlers.JobHandler
	SchedulerHandler *handlers.SchedulerHandler
	FileHandler      *handlers.FileHandler
	WSHandler        *handlers.WebSocketHandler
}

// New builds the application graph and prepares the schema. Nothing is
// running yet; call Start to launch the scheduler, workers and sweeps.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	redisStore, err := store.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if err := store.InitSchema(ctx, redisStore, logger); err != nil {
		redisStore.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Store:  redisStore,
	}

	// Services
	jobService := jobs.NewService(redisStore, logger)
	workflowService := workflows.NewService(redisStore, logger)
	branchService := branches.NewService(redisStore, logger)
	slideService := slides.NewService(redisStore, cfg.Storage.UploadsDir, logger)
	userService := users.NewService(redisStore, workflowService, branchService, slideService, logger)
	executionService := execution.NewService(redisStore, workflowService, branchService, jobService, slideService, logger)

	a.JobService = jobService
	a.WorkflowService = workflowService
	a.BranchService = branchService
	a.SlideService = slideService
	a.UserService = userService
	a.ExecutionService = executionService

	// Template registry, frozen after the built-ins are in
	a.Registry = registry.New()
	templateCfg := templates.Config{WorkDir: cfg.Storage.WorkDir}
	if err := templates.RegisterBuiltins(a.Registry, templateCfg, logger); err != nil {
		redisStore.Close()
		return nil, fmt.Errorf("failed to register job templates: %w", err)
	}
	a.Registry.Freeze()

	// Execution machinery
	a.Scheduler = scheduler.New(redisStore, cfg.Scheduler, logger)
	a.Maintenance = scheduler.NewMaintenance(redisStore, cfg.Maintenance, logger)
	a.WorkerPool = workers.NewPool(redisStore, jobService, userService, a.Registry, cfg.Workers.IdlePause(), logger)

	// Workflow definition files
	if cfg.Workflows.DefinitionsDir != "" {
		if err := workflows.LoadDefinitionsFromFiles(ctx, workflowService, branchService, userService, cfg.Workflows.DefinitionsDir, logger); err != nil {
			logger.Warn().Err(err).Msg("Failed to load workflow definitions")
		}
	}

	// HTTP handlers
	a.APIHandler = handlers.NewAPIHandler(redisStore)
	a.UserHandler = handlers.NewUserHandler(userService, slideService, a.WorkerPool, logger)
	a.WorkflowHandler = handlers.NewWorkflowHandler(workflowService, branchService, userService, executionService, logger)
	a.JobHandler = handlers.NewJobHandler(jobService)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.Scheduler, logger)
	a.FileHandler = handlers.NewFileHandler(slideService, userService, logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Scheduler, &cfg.WebSocket, logger)

	logger.Info().
		Str("redis", cfg.Redis.Addr).
		Int("max_active_users", cfg.Scheduler.MaxActiveUsers).
		Msg("Application initialized")
	return a, nil
}

// Start launches the admission loop, the worker pool and the maintenance
// sweeps.
func (a *App) Start(ctx context.Context) error {
	a.Scheduler.Run()
	if err := a.WorkerPool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.Maintenance.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance sweeps: %w", err)
	}
	return nil
}

// Close stops all background components and releases the store
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	a.Maintenance.Stop()
	a.Scheduler.Stop()
	a.WorkerPool.Stop()
	a.WSHandler.Close()

	if err := a.Store.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close store client")
		return err
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
