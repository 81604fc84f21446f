// Package bootstrap assembles the service graph shared by the API server and
// the operator CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sla-engine/internal/audit"
	"github.com/spec-kit/ticket-sla-engine/internal/cache"
	"github.com/spec-kit/ticket-sla-engine/internal/config"
	"github.com/spec-kit/ticket-sla-engine/internal/events"
	"github.com/spec-kit/ticket-sla-engine/internal/notify"
	"github.com/spec-kit/ticket-sla-engine/internal/observability"
	"github.com/spec-kit/ticket-sla-engine/internal/persistence"
	"github.com/spec-kit/ticket-sla-engine/internal/repository"
	"github.com/spec-kit/ticket-sla-engine/internal/service"
	"github.com/spec-kit/ticket-sla-engine/internal/sla"
	"github.com/spec-kit/ticket-sla-engine/internal/storage"
)

// Components is the wired application.
type Components struct {
	Postgres      *persistence.Postgres
	Redis         *persistence.Redis
	Registry      *prometheus.Registry
	Metrics       *observability.Metrics
	Cache         *cache.Layer
	Policies      *sla.RepositoryPolicies
	Users         repository.UserRepository
	Dispatcher    *events.QueueDispatcher
	Tickets       *service.TicketService
	Assignments   *service.AssignmentService
	Notifications *service.NotificationService
	Retention     *service.RetentionService

	closers []func()
}

// Build connects to the backing stores and wires every service.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Registry: prometheus.NewRegistry()}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = observability.NewMetrics(c.Registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting postgres: %w", err)
	}
	c.Postgres = pg
	c.closers = append(c.closers, pg.Close)

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool(), cfg.Postgres.MigrationsDir, logger); err != nil {
			c.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	c.Redis = persistence.NewRedis(cfg.Redis, logger)
	c.closers = append(c.closers, c.Redis.Close)
	c.Cache = cache.NewLayer(newCacheStore(c.Redis, cfg.Cache), logger, c.Metrics, cfg.Cache.OperationTimeout())

	files, closeFiles, err := newFileStore(ctx, cfg.Retention)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.closers = append(c.closers, closeFiles)

	pool := pg.Pool()
	ticketRepo := repository.NewTicketRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	transactor := repository.NewTransactor(pool)
	c.Users = repository.NewUserRepository(pool)
	c.Policies = sla.NewRepositoryPolicies(repository.NewPolicyRepository(pool), c.Cache, cfg.Cache.PolicyTTL())

	c.Dispatcher = events.NewQueueDispatcher(cfg.Notification.QueueSize, cfg.Notification.Workers, logger, c.Metrics)
	c.closers = append(c.closers, c.Dispatcher.Stop)

	deps := service.TicketDependencies{
		TicketRepo:       ticketRepo,
		DepartmentRepo:   repository.NewDepartmentRepository(pool),
		CategoryRepo:     repository.NewCategoryRepository(pool),
		UserRepo:         c.Users,
		Recorder:         audit.NewRecorder(auditRepo, logger, c.Metrics, nil),
		Engine:           sla.NewEngine(c.Policies, nil),
		Cache:            c.Cache,
		Transactor:       transactor,
		Dispatcher:       c.Dispatcher,
		Logger:           logger,
		Metrics:          c.Metrics,
		CacheConfig:      cfg.Cache,
		TicketConfig:     cfg.Ticket,
		OperationTimeout: cfg.Postgres.OperationTimeout(),
	}
	c.Tickets = service.NewTicketService(deps)
	c.Assignments = service.NewAssignmentService(deps)
	c.Notifications = service.NewNotificationService(c.Dispatcher, newSender(cfg.Notification, logger), c.Users,
		logger, c.Metrics, cfg.Notification.SendTimeout())

	c.Retention = service.NewRetentionService(service.RetentionDependencies{
		TicketRepo:  ticketRepo,
		ImageRepo:   repository.NewImageRepository(pool),
		CommentRepo: repository.NewCommentRepository(pool),
		ViewRepo:    repository.NewTicketViewRepository(pool),
		AuditRepo:   auditRepo,
		Files:       files,
		Transactor:  transactor,
		Cache:       c.Cache,
		Logger:      logger,
		Metrics:     c.Metrics,
		Window:      cfg.Retention.Window(),
	})
	return c, nil
}

// HealthChecks lists the backends readiness depends on. The in-process cache
// store needs no check, so Redis is only listed when enabled.
func (c *Components) HealthChecks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{"postgres": c.Postgres}
	if c.Redis.Enabled() {
		checks["redis"] = c.Redis
	}
	return checks
}

// Close releases connections in reverse order of acquisition.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func newCacheStore(r *persistence.Redis, cfg config.CacheConfig) cache.Store {
	if r.Enabled() {
		return cache.NewRedisStore(r.Client(), cfg.Namespace)
	}
	return cache.NewMemoryStore()
}

func newSender(cfg config.NotificationConfig, logger *zap.Logger) notify.Sender {
	if cfg.WebhookURL != "" {
		return notify.NewWebhookSender(cfg.WebhookURL, cfg.EmailFrom, cfg.SendTimeout())
	}
	return notify.NewLogSender(logger, cfg.EmailFrom)
}

func newFileStore(ctx context.Context, cfg config.RetentionConfig) (storage.FileStore, func(), error) {
	switch cfg.FileStore {
	case config.FileStoreGCS:
		store, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentials)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return storage.NewLocalStore(cfg.LocalRoot), func() {}, nil
	}
}
