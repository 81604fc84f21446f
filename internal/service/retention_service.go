package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/cache"
	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	"github.com/spec-kit/ticket-sla-engine/internal/observability"
	"github.com/spec-kit/ticket-sla-engine/internal/repository"
	"github.com/spec-kit/ticket-sla-engine/internal/storage"
)

const defaultRetentionBatch = 100

// RetentionDependencies bundles what the purge touches.
type RetentionDependencies struct {
	TicketRepo  repository.TicketRepository
	ImageRepo   repository.ImageRepository
	CommentRepo repository.CommentRepository
	ViewRepo    repository.TicketViewRepository
	AuditRepo   repository.AuditRepository
	Files       storage.FileStore
	Transactor  repository.Transactor
	Cache       *cache.Layer
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Window      time.Duration
	BatchSize   int
	Now         func() time.Time
}

// RetentionReport summarises one purge pass.
type RetentionReport struct {
	Cutoff     time.Time         `json:"cutoff"`
	Purged     []string          `json:"purged"`
	Failed     map[string]string `json:"failed,omitempty"`
	FileErrors int               `json:"file_errors"`
}

// RetentionService hard-deletes tickets that stayed archived past the window.
type RetentionService struct {
	tickets  repository.TicketRepository
	images   repository.ImageRepository
	comments repository.CommentRepository
	views    repository.TicketViewRepository
	audits   repository.AuditRepository
	files    storage.FileStore
	tx       repository.Transactor
	cache    *cache.Layer
	logger   *zap.Logger
	metrics  *observability.Metrics
	window   time.Duration
	batch    int
	now      func() time.Time
}

// NewRetentionService creates the service.
func NewRetentionService(deps RetentionDependencies) *RetentionService {
	svc := &RetentionService{
		tickets:  deps.TicketRepo,
		images:   deps.ImageRepo,
		comments: deps.CommentRepo,
		views:    deps.ViewRepo,
		audits:   deps.AuditRepo,
		files:    deps.Files,
		tx:       deps.Transactor,
		cache:    deps.Cache,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		window:   deps.Window,
		batch:    deps.BatchSize,
		now:      deps.Now,
	}
	if svc.tx == nil {
		svc.tx = repository.NoTx{}
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.window <= 0 {
		svc.window = 90 * 24 * time.Hour
	}
	if svc.batch <= 0 {
		svc.batch = defaultRetentionBatch
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// Purge runs one pass. Each ticket is purged on its own; a failure is logged
// and reported without stopping the rest of the batch.
func (s *RetentionService) Purge(ctx context.Context) (RetentionReport, error) {
	report := RetentionReport{
		Cutoff: s.now().UTC().Add(-s.window),
		Purged: []string{},
		Failed: map[string]string{},
	}
	candidates, err := s.tickets.ListArchivedBefore(ctx, report.Cutoff, s.batch)
	if err != nil {
		return report, fmt.Errorf("listing archived tickets: %w", err)
	}

	for i := range candidates {
		ticket := &candidates[i]
		fileErrors, err := s.purgeOne(ctx, ticket)
		report.FileErrors += fileErrors
		if err != nil {
			report.Failed[ticket.ID] = err.Error()
			s.metrics.RecordRetention("failed")
			s.logger.Error("retention purge failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("code", ticket.Code),
				zap.Error(err))
			continue
		}
		report.Purged = append(report.Purged, ticket.ID)
		s.metrics.RecordRetention("purged")
		s.logger.Info("ticket purged", zap.String("ticket_id", ticket.ID), zap.String("code", ticket.Code))
	}

	if len(report.Purged) > 0 {
		inv := cache.Invalidation{Prefixes: []string{cache.ClassTickets.Prefix(), cache.ClassAnalysis.Prefix()}}
		for _, id := range report.Purged {
			inv.Keys = append(inv.Keys, cache.AuditKey(domain.EntityTicket, id).String())
		}
		_ = s.cache.Invalidate(context.WithoutCancel(ctx), inv)
	}
	return report, nil
}

// purgeOne deletes dependent rows before the ticket row in one transaction,
// then removes the ticket's files. File failures are counted, not fatal.
func (s *RetentionService) purgeOne(ctx context.Context, ticket *domain.Ticket) (int, error) {
	var images []domain.Image
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if images, err = s.images.ListByTicket(ctx, ticket.ID); err != nil {
			return fmt.Errorf("listing images: %w", err)
		}
		if _, err := s.images.DeleteByTicket(ctx, ticket.ID); err != nil {
			return fmt.Errorf("deleting images: %w", err)
		}
		if _, err := s.comments.DeleteByTicket(ctx, ticket.ID); err != nil {
			return fmt.Errorf("deleting comments: %w", err)
		}
		if _, err := s.views.DeleteByTicket(ctx, ticket.ID); err != nil {
			return fmt.Errorf("deleting views: %w", err)
		}
		if _, err := s.audits.DeleteByEntity(ctx, domain.EntityTicket, ticket.ID); err != nil {
			return fmt.Errorf("deleting audit entries: %w", err)
		}
		if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
			return fmt.Errorf("deleting ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	fileErrors := 0
	if s.files == nil {
		return 0, nil
	}
	for _, image := range images {
		if err := s.files.Delete(ctx, image.StorageKey); err != nil {
			fileErrors++
			s.logger.Warn("retention file removal failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("storage_key", image.StorageKey),
				zap.Error(err))
		}
	}
	return fileErrors, nil
}
