package container

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/dispatcher"
	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/application/service"
	"github.com/garyjia/barangay-docflow/internal/application/workflow"
	"github.com/garyjia/barangay-docflow/internal/config"
	"github.com/garyjia/barangay-docflow/internal/domain/assignment"
	"github.com/garyjia/barangay-docflow/internal/domain/event"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/cache"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/directory"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/export"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/notify"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/worker"
	"github.com/garyjia/barangay-docflow/internal/metrics"
	"github.com/garyjia/barangay-docflow/pkg/database"
	"github.com/garyjia/barangay-docflow/pkg/utils"
)

// DatabaseBundle holds the connection and its transaction-aware wrapper
type DatabaseBundle struct {
	Conn *database.DB
	DB   *sqldb.DB
}

// RepositoryBundle groups all repositories for convenient access
type RepositoryBundle struct {
	Definitions     port.DefinitionStore
	Assignments     port.AssignmentRepository
	Requests        port.RequestRepository
	NotificationLog port.NotificationLog
}

// ServiceBundle groups all application services
type ServiceBundle struct {
	Workflows     service.WorkflowConfigService
	Requests      service.RequestService
	Sync          service.SyncService
	Notifications service.NotificationService
	Export        service.ExportService
}

// ServiceDeps holds what ProvideServices needs
type ServiceDeps struct {
	Repositories  *RepositoryBundle
	Cache         port.FallbackCache
	Directory     port.UserDirectory
	Notifier      port.Notifier
	Exporter      port.WorkflowExporter
	TxManager     port.TransactionManager
	Dispatcher    dispatcher.Dispatcher
	Table         *assignment.Table
	DocumentTypes []string
	Logger        *zap.Logger
}

// ProvideDatabase opens the database and applies pending migrations when enabled
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	conn, err := database.New(databaseConfig(cfg), logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		applied, err := database.NewMigrator(conn, logger).Run(ctx)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Migrations checked", zap.Int("applied", applied))
	}

	return &DatabaseBundle{
		Conn: conn,
		DB:   sqldb.NewDB(conn, logger),
	}, nil
}

// ProvideRepositories creates all repository instances
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Definitions:     repository.NewDefinitionRepository(db, logger),
		Assignments:     repository.NewAssignmentRepository(db, logger),
		Requests:        repository.NewRequestRepository(db, logger),
		NotificationLog: repository.NewNotificationLogRepository(db, logger),
	}
}

// ProvideCache creates the fallback cache. The closer is nil when nothing needs closing.
// The "none" driver returns a nil cache.
func ProvideCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (port.FallbackCache, io.Closer, error) {
	switch cfg.Driver {
	case config.CacheFile:
		fc, err := cache.NewFileCache(cfg.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return fc, nil, nil
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, redisConfig(cfg.Redis), logger)
		if err != nil {
			return nil, nil, err
		}
		return rc, rc, nil
	case config.CacheNone, "":
		logger.Info("Fallback cache disabled")
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}

// ProvideDirectory builds the user directory from configuration
func ProvideDirectory(cfg config.DirectoryConfig) (*directory.Static, error) {
	return directory.NewStatic(cfg.Users)
}

// ProvideNotifier creates the notifier for the configured channel
func ProvideNotifier(cfg config.NotificationConfig, dir port.UserDirectory, logger *zap.Logger) (port.Notifier, error) {
	switch cfg.Channel {
	case config.ChannelLark:
		sender := notify.NewSDKSender(larkConfig(cfg.Lark), logger)
		return notify.NewLarkNotifier(sender, dir, logger), nil
	case config.ChannelLog, "":
		return notify.NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unsupported notification channel %q", cfg.Channel)
	}
}

// ProvideDispatcher creates the event dispatcher; handlerTimeout bounds each async handler
func ProvideDispatcher(handlerTimeout time.Duration, logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKeyValueLogger(logger.Named("dispatcher"))),
		dispatcher.WithHandlerTimeout(handlerTimeout),
	)
}

// ProvideServices creates all application services
func ProvideServices(deps *ServiceDeps) *ServiceBundle {
	log := utils.NewKeyValueLogger(deps.Logger)
	engine := workflow.NewEngine(workflow.WithLogger(utils.NewKeyValueLogger(deps.Logger.Named("engine"))))

	workflows := service.NewWorkflowConfigService(
		deps.Repositories.Definitions,
		deps.Cache,
		deps.Directory,
		deps.Dispatcher,
		log,
	)

	syncSvc := service.NewSyncService(
		deps.Repositories.Definitions,
		deps.Cache,
		deps.Repositories.Assignments,
		deps.Table,
		deps.Directory,
		deps.TxManager,
		deps.Dispatcher,
		deps.DocumentTypes,
		log,
	)

	return &ServiceBundle{
		Workflows: workflows,
		Requests: service.NewRequestService(
			deps.Repositories.Requests,
			workflows,
			engine,
			deps.Directory,
			deps.TxManager,
			deps.Dispatcher,
			log,
		),
		Sync: syncSvc,
		Notifications: service.NewNotificationService(
			deps.Notifier,
			deps.Repositories.NotificationLog,
			deps.Table,
			deps.Directory,
			log,
		),
		Export: service.NewExportService(workflows, syncSvc, deps.Exporter, log),
	}
}

// ProvideExporter creates the spreadsheet exporter
func ProvideExporter(logger *zap.Logger) port.WorkflowExporter {
	return export.NewExcelExporter(logger)
}

// SubscribeHandlers connects services to domain events
func SubscribeHandlers(d dispatcher.Dispatcher, services *ServiceBundle, syncOnChange bool, logger *zap.Logger) {
	if syncOnChange {
		d.Subscribe(event.TypeWorkflowChanged, "sync_assignments", services.Sync.HandleWorkflowChanged)
	}

	d.Subscribe(event.TypeStepEntered, "notify_step_entered", services.Notifications.HandleStepEntered)
	d.Subscribe(event.TypeRequestCompleted, "notify_request_completed", services.Notifications.HandleRequestClosed)
	d.Subscribe(event.TypeRequestRejected, "notify_request_rejected", services.Notifications.HandleRequestClosed)

	d.Subscribe(event.TypeSyncCompleted, "log_sync_completed", func(ctx context.Context, evt *event.Event) error {
		logger.Info("Sync completed event",
			zap.String("event_id", evt.ID),
			zap.Any("payload", evt.Payload))
		return nil
	})
}

// WorkerDeps holds what ProvideWorkers needs
type WorkerDeps struct {
	Sync        config.SyncConfig
	SyncService service.SyncService
	Assignments port.AssignmentRepository
	Database    *database.DB
	Logger      *zap.Logger
}

// ProvideWorkers creates the scheduled sync and the metrics sampler
func ProvideWorkers(deps *WorkerDeps) *worker.Manager {
	manager := worker.NewManager(deps.Logger)

	if deps.Sync.Schedule != "" {
		manager.Register(worker.NewCronWorker("assignment_sync", deps.Sync.Schedule, deps.Sync.Timeout,
			func(ctx context.Context) error {
				_, err := deps.SyncService.SyncAssignments(ctx, service.SyncTriggerSchedule)
				return err
			}, deps.Logger))
	}

	if deps.Sync.MetricsInterval > 0 {
		schedule := fmt.Sprintf("@every %s", deps.Sync.MetricsInterval)
		manager.Register(worker.NewCronWorker("metrics_sampler", schedule, deps.Sync.MetricsInterval,
			func(ctx context.Context) error {
				if deps.Database != nil {
					metrics.UpdateDatabaseConnections(deps.Database.DB)
				}
				n, err := deps.Assignments.Count(ctx)
				if err != nil {
					return err
				}
				metrics.SetAssignmentRecords(n)
				return nil
			}, deps.Logger))
	}

	return manager
}
