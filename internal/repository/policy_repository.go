package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

// PolicyRepository reads SLA policy rows.
type PolicyRepository interface {
	GetByPriority(ctx context.Context, priority domain.Priority) (*domain.SLAPolicy, error)
	List(ctx context.Context) ([]domain.SLAPolicy, error)
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository builds the repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

func (r *policyRepository) GetByPriority(ctx context.Context, priority domain.Priority) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, priority, response_minutes, resolution_minutes, created_at, updated_at
        FROM sla_policies WHERE priority=$1`
	var policy domain.SLAPolicy
	if err := querier(ctx, r.pool).QueryRow(ctx, query, priority).Scan(
		&policy.ID,
		&policy.Priority,
		&policy.ResponseMinutes,
		&policy.ResolutionMinutes,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *policyRepository) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	const query = `
        SELECT id, priority, response_minutes, resolution_minutes, created_at, updated_at
        FROM sla_policies ORDER BY resolution_minutes DESC, priority`
	rows, err := querier(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var policy domain.SLAPolicy
		if err := rows.Scan(&policy.ID, &policy.Priority, &policy.ResponseMinutes,
			&policy.ResolutionMinutes, &policy.CreatedAt, &policy.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}
