package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

// AuditRepository stores immutable audit entries. There is no update path.
type AuditRepository interface {
	// CreateBatch inserts every entry in one round trip. Rows that fail are
	// reported together in a single joined error; the others are still sent.
	CreateBatch(ctx context.Context, entries []*domain.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error)
	DeleteByEntity(ctx context.Context, entityType, entityID string) (int64, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) CreateBatch(ctx context.Context, entries []*domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	const query = `
        INSERT INTO audit_entries (entity_type, entity_id, field_name, old_value, new_value, actor_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`

	batch := &pgx.Batch{}
	for _, entry := range entries {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		batch.Queue(query,
			entry.EntityType,
			entry.EntityID,
			entry.Field,
			entry.OldValue,
			entry.NewValue,
			entry.ActorID,
			entry.CreatedAt,
		)
	}

	results := querier(ctx, r.pool).SendBatch(ctx, batch)
	var errs []error
	for _, entry := range entries {
		if err := results.QueryRow().Scan(&entry.ID); err != nil {
			errs = append(errs, fmt.Errorf("audit %s.%s: %w", entry.EntityID, entry.Field, err))
		}
	}
	if err := results.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// auditTrailQuery lists newest first. seq breaks ties between entries of one
// batch, which share created_at.
const auditTrailQuery = `
        SELECT id, entity_type, entity_id, field_name, old_value, new_value, actor_id, created_at
        FROM audit_entries WHERE entity_type=$1 AND entity_id=$2
        ORDER BY created_at DESC, seq DESC`

func (r *auditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, auditTrailQuery, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Field,
			&entry.OldValue,
			&entry.NewValue,
			&entry.ActorID,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *auditRepository) DeleteByEntity(ctx context.Context, entityType, entityID string) (int64, error) {
	cmd, err := querier(ctx, r.pool).Exec(ctx,
		`DELETE FROM audit_entries WHERE entity_type=$1 AND entity_id=$2`, entityType, entityID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
