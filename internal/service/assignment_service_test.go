package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	"github.com/spec-kit/ticket-sla-engine/internal/events"
	apperrors "github.com/spec-kit/ticket-sla-engine/pkg/util/errorutil"
)

func TestAssign_MovesToInProgress(t *testing.T) {
	env := newTestEnv(t, "strict")
	id := env.triaged(domain.TicketStatusOpen)

	ticket, err := env.assignment.Assign(context.Background(), agent, id, "u-agent2")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.Equal(t, "u-agent2", *ticket.AssigneeID)

	entries := env.audits.forField(id, domain.FieldAssignee)
	require.Len(t, entries, 1)
	assert.Equal(t, "", entries[0].OldValue)
	assert.Equal(t, "Hla Hla (+95 9 555)", entries[0].NewValue)

	assigned := env.published.of(events.EventTicketAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, "u-agent2", assigned[0].Payload.(events.TicketAssignedPayload).NewAssigneeID)
}

func TestAssign_SameAssigneeTwiceIsIdempotent(t *testing.T) {
	env := newTestEnv(t, "strict")
	id := env.triaged(domain.TicketStatusOpen)

	first, err := env.assignment.Assign(context.Background(), agent, id, "u-agent")
	require.NoError(t, err)
	second, err := env.assignment.Assign(context.Background(), agent, id, "u-agent")
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, domain.TicketStatusInProgress, second.Status)
	assert.Len(t, env.audits.forField(id, domain.FieldAssignee), 1)
	assert.Equal(t, 1, env.tickets.updates)
	assert.Len(t, env.published.of(events.EventTicketAssigned), 1)
}

func TestAssign_ReopensResolvedTicket(t *testing.T) {
	env := newTestEnv(t, "strict")
	id := env.triaged(domain.TicketStatusResolved)

	ticket, err := env.assignment.Assign(context.Background(), agent, id, "u-agent2")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
}

func TestAssign_Rejections(t *testing.T) {
	env := newTestEnv(t, "strict")
	open := env.triaged(domain.TicketStatusOpen)
	closed := env.triaged(domain.TicketStatusClosed)

	cases := []struct {
		name     string
		actor    domain.Actor
		ticketID string
		assignee string
		code     string
	}{
		{"requester", requester, open, "u-agent", apperrors.CodeForbidden},
		{"blank assignee", agent, open, " ", apperrors.CodeValidation},
		{"closed ticket", lead, closed, "u-agent", apperrors.CodeConflict},
		{"unknown ticket", agent, "missing", "u-agent", apperrors.CodeNotFound},
		{"unknown user", agent, open, "u-ghost", apperrors.CodeNotFound},
		{"inactive user", agent, open, "u-inactive", apperrors.CodeConflict},
		{"not an agent", agent, open, "u-req", apperrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.assignment.Assign(context.Background(), tc.actor, tc.ticketID, tc.assignee)
			assert.True(t, apperrors.IsCode(err, tc.code), "got %v", err)
		})
	}
	assert.Zero(t, env.audits.count())
	assert.Equal(t, domain.TicketStatusOpen, env.tickets.stored(open).Status)
}
