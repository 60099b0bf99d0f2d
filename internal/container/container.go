package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/dispatcher"
	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/application/service"
	"github.com/garyjia/barangay-docflow/internal/config"
	"github.com/garyjia/barangay-docflow/internal/domain/assignment"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/worker"
	httpiface "github.com/garyjia/barangay-docflow/internal/interfaces/http"
	"github.com/garyjia/barangay-docflow/internal/metrics"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	database     *DatabaseBundle
	repositories *RepositoryBundle
	cache        port.FallbackCache
	cacheCloser  io.Closer
	directory    port.UserDirectory
	notifier     port.Notifier

	// Application
	table      *assignment.Table
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers
	workers *worker.Manager

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components:
// database and repositories, cache and collaborators, dispatcher and services.
// Background workers are started separately by RunWorkers.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("driver", c.database.Conn.Driver()))

	if err := c.initCollaborators(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize collaborators: %w", err)
	}
	c.logger.Info("Cache, directory and notifier initialized")

	c.initServices()
	c.logger.Info("Application services initialized")

	c.workers = ProvideWorkers(&WorkerDeps{
		Sync:        c.config.Sync,
		SyncService: c.services.Sync,
		Assignments: c.repositories.Assignments,
		Database:    c.database.Conn,
		Logger:      c.logger.Named("worker"),
	})

	metrics.RegisterRuntimeCollectors()
	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// RunWorkers performs the startup sync when enabled and starts scheduled workers
func (c *Container) RunWorkers(ctx context.Context) error {
	if !c.ready.Load() {
		return fmt.Errorf("container is not started")
	}

	if c.config.Sync.OnStartup {
		report, err := c.services.Sync.SyncAssignments(ctx, service.SyncTriggerSchedule)
		if err != nil {
			c.logger.Error("Startup sync failed", zap.Error(err))
		} else if len(report.Warnings) > 0 {
			c.logger.Info("Startup sync finished with warnings", zap.Strings("warnings", report.Warnings))
		}
	}

	if c.workers.Count() == 0 {
		return nil
	}
	return c.workers.StartAll(ctx)
}

// Close gracefully shuts down all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.cacheCloser != nil {
		if err := c.cacheCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}

	if c.database != nil {
		if err := c.database.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health checks each dependency; a nil value means healthy
func (c *Container) Health(ctx context.Context) map[string]error {
	checks := make(map[string]error)

	if c.database == nil {
		checks["database"] = fmt.Errorf("not initialized")
	} else {
		checks["database"] = c.database.Conn.PingContext(ctx)
	}

	if c.workers != nil && c.workers.Count() > 0 && !c.workers.IsRunning() {
		checks["workers"] = fmt.Errorf("not running")
	} else {
		checks["workers"] = nil
	}

	return checks
}

// HTTPServer builds the API server over the container's services
func (c *Container) HTTPServer() *httpiface.Server {
	return httpiface.NewServer(
		ServerConfig(c.config.Server),
		httpiface.Services{
			Workflows: c.services.Workflows,
			Requests:  c.services.Requests,
			Sync:      c.services.Sync,
			Export:    c.services.Export,
		},
		c.Health,
		zapKeyValue(c.logger.Named("http")),
	)
}

func (c *Container) initDatabase(ctx context.Context) error {
	bundle, err := ProvideDatabase(ctx, c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = bundle
	c.repositories = ProvideRepositories(bundle.DB, c.logger.Named("repository"))
	return nil
}

func (c *Container) initCollaborators(ctx context.Context) error {
	fallback, closer, err := ProvideCache(ctx, c.config.Cache, c.logger.Named("cache"))
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	c.cache = fallback
	c.cacheCloser = closer

	dir, err := ProvideDirectory(c.config.Directory)
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	c.directory = dir
	c.logger.Info("Directory loaded", zap.Int("users", len(dir.IDs())))

	notifier, err := ProvideNotifier(c.config.Notification, dir, c.logger.Named("notify"))
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	c.notifier = notifier
	return nil
}

func (c *Container) initServices() {
	c.table = assignment.NewTable()
	c.dispatcher = ProvideDispatcher(c.config.Sync.Timeout, c.logger)

	c.services = ProvideServices(&ServiceDeps{
		Repositories:  c.repositories,
		Cache:         c.cache,
		Directory:     c.directory,
		Notifier:      c.notifier,
		Exporter:      ProvideExporter(c.logger.Named("export")),
		TxManager:     c.database.DB,
		Dispatcher:    c.dispatcher,
		Table:         c.table,
		DocumentTypes: c.config.DocumentTypes,
		Logger:        c.logger.Named("service"),
	})

	SubscribeHandlers(c.dispatcher, c.services, c.config.Sync.OnChange, c.logger.Named("events"))
}

// Services returns the application services
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Repositories returns the repository bundle
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// AssignmentTable returns the in-memory approver lookup
func (c *Container) AssignmentTable() *assignment.Table {
	return c.table
}

// Workers returns the worker manager
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the root logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the loaded configuration
func (c *Container) Config() *config.Config {
	return c.config
}
