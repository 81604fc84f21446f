package sla

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-sla-engine/internal/cache"
	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	"github.com/spec-kit/ticket-sla-engine/internal/repository"
)

// ErrPolicyGap is returned when a priority has no policy row.
var ErrPolicyGap = errors.New("no sla policy for priority")

// PolicyTable resolves the SLA policy of a priority.
type PolicyTable interface {
	PolicyFor(ctx context.Context, priority domain.Priority) (*domain.SLAPolicy, error)
	List(ctx context.Context) ([]domain.SLAPolicy, error)
}

// RepositoryPolicies reads policies from the database through the cache.
type RepositoryPolicies struct {
	repo  repository.PolicyRepository
	cache *cache.Layer
	ttl   time.Duration
}

// NewRepositoryPolicies builds a PolicyTable over repo. layer may be nil.
func NewRepositoryPolicies(repo repository.PolicyRepository, layer *cache.Layer, ttl time.Duration) *RepositoryPolicies {
	return &RepositoryPolicies{repo: repo, cache: layer, ttl: ttl}
}

func (p *RepositoryPolicies) PolicyFor(ctx context.Context, priority domain.Priority) (*domain.SLAPolicy, error) {
	policy, err := cache.GetOrCompute(ctx, p.cache, cache.PolicyKey(string(priority)), p.ttl,
		func(ctx context.Context) (*domain.SLAPolicy, error) {
			return p.repo.GetByPriority(ctx, priority)
		})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPolicyGap
	}
	return policy, err
}

func (p *RepositoryPolicies) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	return cache.GetOrCompute(ctx, p.cache, cache.NewKey(cache.ClassPolicies).With("all", "1"), p.ttl,
		p.repo.List)
}

// StaticPolicies is an in-memory PolicyTable.
type StaticPolicies map[domain.Priority]domain.SLAPolicy

func (s StaticPolicies) PolicyFor(_ context.Context, priority domain.Priority) (*domain.SLAPolicy, error) {
	policy, ok := s[priority]
	if !ok {
		return nil, ErrPolicyGap
	}
	policy.Priority = priority
	return &policy, nil
}

func (s StaticPolicies) List(context.Context) ([]domain.SLAPolicy, error) {
	out := make([]domain.SLAPolicy, 0, len(s))
	for priority, policy := range s {
		policy.Priority = priority
		out = append(out, policy)
	}
	return out, nil
}
