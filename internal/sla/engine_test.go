package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

var policies = StaticPolicies{
	"CRITICAL": {ID: "pol-critical", ResponseMinutes: 30, ResolutionMinutes: 240},
	"MINOR":    {ID: "pol-minor", ResponseMinutes: 240, ResolutionMinutes: 2880},
}

func TestCompute_Critical(t *testing.T) {
	engine := NewEngine(policies, nil)
	t0 := time.Date(2024, 5, 14, 8, 15, 42, 0, time.UTC)

	d, err := engine.Compute(context.Background(), "CRITICAL", t0)
	require.NoError(t, err)

	start := time.Date(2024, 5, 14, 8, 15, 0, 0, time.UTC)
	assert.Equal(t, "pol-critical", d.PolicyID)
	assert.Equal(t, start, d.StartedAt)
	assert.Equal(t, start.Add(30*time.Minute), d.ResponseDue)
	assert.Equal(t, start.Add(4*time.Hour), d.ResolutionDue)
}

func TestCompute_ReadsStartAsUTC(t *testing.T) {
	engine := NewEngine(policies, nil)
	yangon := time.FixedZone("MMT", 6*3600+30*60)
	start := time.Date(2024, 5, 14, 14, 45, 0, 0, yangon)

	d, err := engine.Compute(context.Background(), "MINOR", start)
	require.NoError(t, err)

	assert.Equal(t, time.UTC, d.StartedAt.Location())
	assert.Equal(t, time.Date(2024, 5, 14, 8, 15, 0, 0, time.UTC), d.StartedAt)
	assert.Equal(t, time.Date(2024, 5, 16, 8, 15, 0, 0, time.UTC), d.ResolutionDue)
}

func TestCompute_PolicyGap(t *testing.T) {
	engine := NewEngine(policies, nil)

	_, err := engine.Compute(context.Background(), "MAJOR", time.Now())
	assert.ErrorIs(t, err, ErrPolicyGap)
}

func TestApply(t *testing.T) {
	engine := NewEngine(policies, nil)
	d, err := engine.Compute(context.Background(), "CRITICAL", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	ticket := &domain.Ticket{}
	d.Apply(ticket)

	require.True(t, ticket.HasSLA())
	assert.Equal(t, "pol-critical", *ticket.SLAPolicyID)
	assert.Equal(t, d.ResponseDue, *ticket.ResponseDueAt)
}

func TestIsViolated(t *testing.T) {
	now := time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	cases := []struct {
		name   string
		status domain.TicketStatus
		due    *time.Time
		want   bool
	}{
		{"in progress past due", domain.TicketStatusInProgress, &past, true},
		{"open past due", domain.TicketStatusOpen, &past, true},
		{"in progress not yet due", domain.TicketStatusInProgress, &future, false},
		{"resolved past due", domain.TicketStatusResolved, &past, false},
		{"closed past due", domain.TicketStatusClosed, &past, false},
		{"canceled past due", domain.TicketStatusCanceled, &past, false},
		{"no sla", domain.TicketStatusNew, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ticket := &domain.Ticket{Status: tc.status, ResolutionDueAt: tc.due}
			assert.Equal(t, tc.want, IsViolated(ticket, now))
		})
	}
}

func TestRefresh_UsesEngineClock(t *testing.T) {
	now := time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(policies, func() time.Time { return now })
	due := now.Add(-time.Hour)
	ticket := &domain.Ticket{Status: domain.TicketStatusInProgress, ResolutionDueAt: &due}

	engine.Refresh(ticket)
	assert.True(t, ticket.Violated)

	ticket.Status = domain.TicketStatusResolved
	engine.Refresh(ticket)
	assert.False(t, ticket.Violated)
}
