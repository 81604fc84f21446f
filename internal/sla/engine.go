package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

// Deadlines is the outcome of one SLA computation.
type Deadlines struct {
	PolicyID      string
	StartedAt     time.Time
	ResponseDue   time.Time
	ResolutionDue time.Time
}

// Engine derives SLA deadlines from the policy table.
type Engine struct {
	policies PolicyTable
	now      func() time.Time
}

// NewEngine builds an Engine. now defaults to time.Now.
func NewEngine(policies PolicyTable, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{policies: policies, now: now}
}

// Compute returns the deadlines of priority for a clock started at start.
// start is read as UTC and truncated to the minute.
func (e *Engine) Compute(ctx context.Context, priority domain.Priority, start time.Time) (Deadlines, error) {
	policy, err := e.policies.PolicyFor(ctx, priority)
	if err != nil {
		return Deadlines{}, err
	}
	if policy == nil {
		return Deadlines{}, ErrPolicyGap
	}
	if policy.ResponseMinutes < 0 || policy.ResolutionMinutes < 0 {
		return Deadlines{}, fmt.Errorf("sla policy %s has negative offsets", policy.ID)
	}
	start = start.UTC().Truncate(time.Minute)
	return Deadlines{
		PolicyID:      policy.ID,
		StartedAt:     start,
		ResponseDue:   start.Add(time.Duration(policy.ResponseMinutes) * time.Minute),
		ResolutionDue: start.Add(time.Duration(policy.ResolutionMinutes) * time.Minute),
	}, nil
}

// Apply stamps d onto ticket.
func (d Deadlines) Apply(ticket *domain.Ticket) {
	policyID := d.PolicyID
	started, response, resolution := d.StartedAt, d.ResponseDue, d.ResolutionDue
	ticket.SLAPolicyID = &policyID
	ticket.SLAStartedAt = &started
	ticket.ResponseDueAt = &response
	ticket.ResolutionDueAt = &resolution
}

// IsViolated reports whether ticket is past its resolution deadline while
// still in a status that runs the SLA clock.
func IsViolated(ticket *domain.Ticket, now time.Time) bool {
	if ticket == nil || ticket.ResolutionDueAt == nil {
		return false
	}
	if ticket.Status.StopsSLAClock() {
		return false
	}
	return now.After(*ticket.ResolutionDueAt)
}

// Refresh recomputes ticket.Violated against the engine clock.
func (e *Engine) Refresh(ticket *domain.Ticket) {
	if ticket == nil {
		return
	}
	ticket.Violated = IsViolated(ticket, e.now())
}

// Now exposes the engine clock.
func (e *Engine) Now() time.Time {
	return e.now()
}
