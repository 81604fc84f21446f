package service

import (
	"fmt"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	apperrors "github.com/spec-kit/ticket-sla-engine/pkg/util/errorutil"
)

// statusTransitions lists the moves changeStatus may make. NEW leaves through
// triage and any non-terminal status enters IN_PROGRESS through assignment;
// neither is listed here.
var statusTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew:        {domain.TicketStatusCanceled},
	domain.TicketStatusOpen:       {domain.TicketStatusCanceled},
	domain.TicketStatusInProgress: {domain.TicketStatusResolved, domain.TicketStatusCanceled},
	domain.TicketStatusResolved:   {domain.TicketStatusInProgress, domain.TicketStatusClosed, domain.TicketStatusCanceled},
	domain.TicketStatusClosed:     {},
	domain.TicketStatusCanceled:   {},
}

// requiredRole is the lowest role that may move a ticket into status.
func requiredRole(status domain.TicketStatus) domain.Role {
	switch status {
	case domain.TicketStatusClosed, domain.TicketStatusCanceled:
		return domain.RoleTeamLead
	default:
		return domain.RoleAgent
	}
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range statusTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// checkTransition gates by role first so an under-privileged actor learns
// nothing about the ticket's state.
func checkTransition(actor domain.Actor, from, to domain.TicketStatus) error {
	if !to.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": to})
	}
	if need := requiredRole(to); !actor.Role.AtLeast(need) {
		return apperrors.NewForbidden(fmt.Sprintf("%s may not move tickets to %s", actor.Role, to))
	}
	if !isValidTransition(from, to) {
		return apperrors.NewConflict("invalid status transition", map[string]any{"from": from, "to": to})
	}
	return nil
}
