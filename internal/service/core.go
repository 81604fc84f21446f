package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/audit"
	"github.com/spec-kit/ticket-sla-engine/internal/cache"
	"github.com/spec-kit/ticket-sla-engine/internal/config"
	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	"github.com/spec-kit/ticket-sla-engine/internal/events"
	"github.com/spec-kit/ticket-sla-engine/internal/observability"
	"github.com/spec-kit/ticket-sla-engine/internal/repository"
	"github.com/spec-kit/ticket-sla-engine/internal/sla"
	apperrors "github.com/spec-kit/ticket-sla-engine/pkg/util/errorutil"
)

// TicketDependencies bundles collaborators shared by the ticket services.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	DepartmentRepo repository.DepartmentRepository
	CategoryRepo   repository.CategoryRepository
	UserRepo       repository.UserRepository
	Recorder       *audit.Recorder
	Engine         *sla.Engine
	Cache          *cache.Layer
	Transactor     repository.Transactor
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics

	CacheConfig  config.CacheConfig
	TicketConfig config.TicketConfig
	// OperationTimeout bounds each persistence round; zero leaves it to the caller.
	OperationTimeout time.Duration
	Now              func() time.Time
}

// ticketCacheDependencies declares what cached data a ticket mutation stales.
var ticketCacheDependencies = []cache.Dependency{
	{Class: cache.ClassTickets},
	{Class: cache.ClassAudit, Scoped: true},
	{Class: cache.ClassAnalysis, Fields: []string{domain.FieldDepartment, domain.FieldCategory, domain.FieldPriority}},
}

// core is the write path shared by TicketService and AssignmentService.
type core struct {
	tickets     repository.TicketRepository
	departments repository.DepartmentRepository
	categories  repository.CategoryRepository
	users       repository.UserRepository
	recorder    *audit.Recorder
	engine      *sla.Engine
	cache       *cache.Layer
	tx          repository.Transactor
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics

	cacheCfg   config.CacheConfig
	scale      domain.PriorityScale
	strict     bool
	codePrefix string
	opTimeout  time.Duration
	now        func() time.Time
}

func newCore(deps TicketDependencies) *core {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	scale, err := domain.ScaleByName(deps.TicketConfig.PriorityVocabulary)
	if err != nil {
		logger.Warn("unknown priority vocabulary, using severity", zap.Error(err))
		scale = domain.SeverityScale
	}
	strict := deps.TicketConfig.AuditMode != config.AuditModeRelaxed
	tx := deps.Transactor
	if tx == nil || !strict {
		tx = repository.NoTx{}
	}
	prefix := deps.TicketConfig.CodePrefix
	if prefix == "" {
		prefix = "REQ"
	}
	engine := deps.Engine
	if engine == nil {
		engine = sla.NewEngine(sla.StaticPolicies{}, now)
	}
	return &core{
		tickets:     deps.TicketRepo,
		departments: deps.DepartmentRepo,
		categories:  deps.CategoryRepo,
		users:       deps.UserRepo,
		recorder:    deps.Recorder,
		engine:      engine,
		cache:       deps.Cache,
		tx:          tx,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		metrics:     deps.Metrics,
		cacheCfg:    deps.CacheConfig,
		scale:       scale,
		strict:      strict,
		codePrefix:  prefix,
		opTimeout:   deps.OperationTimeout,
		now:         now,
	}
}

func (c *core) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

// load reads the current row of a ticket, bypassing the cache.
func (c *core) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	ticket, err := c.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, persistenceError(err, "ticket", ticketID)
	}
	return ticket, nil
}

// commit writes after against the version it was loaded at, records changes
// and drops the cached data they stale. In strict audit mode the row and its
// audit entries share one transaction.
func (c *core) commit(ctx context.Context, actor domain.Actor, after *domain.Ticket, changes []domain.FieldChange) error {
	writeCtx, cancel := c.bound(ctx)
	defer cancel()

	err := c.tx.WithinTx(writeCtx, func(ctx context.Context) error {
		if err := c.tickets.Update(ctx, after); err != nil {
			return err
		}
		if _, err := c.recorder.RecordChanges(ctx, domain.EntityTicket, after.ID, actor.ID, changes); err != nil {
			if c.strict {
				return &auditError{err: err}
			}
			c.logger.Error("audit write failed, mutation kept",
				zap.String("ticket_id", after.ID),
				zap.Strings("fields", audit.Fields(changes)),
				zap.Error(err))
		}
		return nil
	})
	if err != nil {
		var ae *auditError
		if errors.As(err, &ae) {
			return apperrors.NewDependencyError("audit", ae.err)
		}
		return persistenceError(err, "ticket", after.ID)
	}

	c.invalidate(ctx, after.ID, audit.Fields(changes))
	return nil
}

// invalidate never fails the caller; a failed delete leaves bounded staleness.
func (c *core) invalidate(ctx context.Context, ticketID string, fields []string) {
	plan := cache.Plan(ticketCacheDependencies, domain.EntityTicket, ticketID, fields)
	_ = c.cache.Invalidate(context.WithoutCancel(ctx), plan)
}

func (c *core) publish(ctx context.Context, event events.Event) {
	if c.dispatcher == nil {
		return
	}
	if err := c.dispatcher.Publish(ctx, event); err != nil {
		c.logger.Warn("event not published",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func (c *core) recordTransition(before, after *domain.Ticket) {
	if before.Status != after.Status {
		c.metrics.RecordTransition(string(before.Status), string(after.Status))
	}
}

// userLabel renders a user for audit values, falling back to the raw id.
func (c *core) userLabel(ctx context.Context, id *string) string {
	if id == nil {
		return ""
	}
	if c.users == nil {
		return *id
	}
	user, err := c.users.GetByID(ctx, *id)
	if err != nil {
		c.logger.Debug("user label lookup failed", zap.String("user_id", *id), zap.Error(err))
		return *id
	}
	return user.Label()
}

type auditError struct {
	err error
}

func (e *auditError) Error() string { return "audit: " + e.err.Error() }
func (e *auditError) Unwrap() error { return e.err }

func persistenceError(err error, resource, id string) error {
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict("ticket was modified concurrently, reload and retry", map[string]any{"id": id})
	default:
		return apperrors.NewDependencyError("postgres", err)
	}
}

func requireActor(actor domain.Actor) error {
	if actor.ID == "" || !actor.Role.Valid() {
		return apperrors.NewUnauthorized("actor identity required")
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
