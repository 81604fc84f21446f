package service

import (
	"context"
	"strings"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	apperrors "github.com/spec-kit/ticket-sla-engine/pkg/util/errorutil"
)

// AssignmentService handles ticket assignment operations.
type AssignmentService struct {
	*core
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps TicketDependencies) *AssignmentService {
	return &AssignmentService{core: newCore(deps)}
}

// Assign hands a ticket to assigneeID and moves it to IN_PROGRESS.
// Assigning the current assignee again changes nothing.
func (s *AssignmentService) Assign(ctx context.Context, actor domain.Actor, ticketID, assigneeID string) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, apperrors.NewValidationError("assignee is required", nil)
	}
	if !actor.Role.AtLeast(domain.RoleAgent) {
		return nil, apperrors.NewForbidden("insufficient role for assignment")
	}

	before, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if before.AssigneeID != nil && *before.AssigneeID == assigneeID {
		s.engine.Refresh(before)
		return before, nil
	}
	if err := ensureMutable(before); err != nil {
		return nil, err
	}

	after := before.Clone()
	if err := s.assignTo(ctx, actor, after, assigneeID); err != nil {
		return nil, err
	}
	if _, err := s.save(ctx, actor, before, after); err != nil {
		return nil, err
	}
	return after, nil
}

// assignTo sets the assignee on t after checking the actor and the assignee.
// Assignment always lands the ticket in IN_PROGRESS.
func (c *core) assignTo(ctx context.Context, actor domain.Actor, t *domain.Ticket, assigneeID string) error {
	if !actor.Role.AtLeast(domain.RoleAgent) {
		return apperrors.NewForbidden("insufficient role for assignment")
	}
	if t.Status.IsTerminal() {
		return apperrors.NewConflict("ticket is closed", map[string]any{"id": t.ID, "status": t.Status})
	}

	lookupCtx, cancel := c.bound(ctx)
	defer cancel()
	assignee, err := c.users.GetByID(lookupCtx, assigneeID)
	if err != nil {
		return persistenceError(err, "user", assigneeID)
	}
	if !assignee.Active {
		return apperrors.NewConflict("assignee inactive", map[string]any{"user_id": assigneeID})
	}
	if !assignee.Role.AtLeast(domain.RoleAgent) {
		return apperrors.NewValidationError("assignee must be an agent", map[string]any{"user_id": assigneeID})
	}

	t.AssigneeID = &assignee.ID
	t.Status = domain.TicketStatusInProgress
	return nil
}
