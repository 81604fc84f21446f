package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	"github.com/spec-kit/ticket-sla-engine/internal/observability"
	"github.com/spec-kit/ticket-sla-engine/internal/repository"
)

// Recorder appends audit entries for field changes.
type Recorder struct {
	repo    repository.AuditRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewRecorder builds a Recorder. now defaults to time.Now.
func NewRecorder(repo repository.AuditRepository, logger *zap.Logger, metrics *observability.Metrics, now func() time.Time) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Recorder{repo: repo, logger: logger, metrics: metrics, now: now}
}

// RecordChanges writes one entry per change in a single batch and returns the
// stored entries. Changes whose old and new values match are skipped. A
// failure of any row comes back as one joined error.
func (r *Recorder) RecordChanges(ctx context.Context, entityType, entityID, actorID string, changes []domain.FieldChange) ([]domain.AuditEntry, error) {
	at := r.now().UTC()
	entries := make([]*domain.AuditEntry, 0, len(changes))
	for _, change := range changes {
		if change.Old == change.New {
			continue
		}
		entries = append(entries, &domain.AuditEntry{
			EntityType: entityType,
			EntityID:   entityID,
			Field:      change.Field,
			OldValue:   change.Old,
			NewValue:   change.New,
			ActorID:    actorID,
			CreatedAt:  at,
		})
	}
	if len(entries) == 0 {
		return nil, nil
	}

	if err := r.repo.CreateBatch(ctx, entries); err != nil {
		r.metrics.RecordAudit("failed", len(entries))
		r.logger.Warn("audit batch failed",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Int("entries", len(entries)),
			zap.Error(err))
		return nil, err
	}
	r.metrics.RecordAudit("written", len(entries))

	stored := make([]domain.AuditEntry, len(entries))
	for i, entry := range entries {
		stored[i] = *entry
	}
	return stored, nil
}

// Trail returns an entity's entries, newest first.
func (r *Recorder) Trail(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	return r.repo.ListByEntity(ctx, entityType, entityID)
}
