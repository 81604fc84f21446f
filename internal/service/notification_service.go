package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
	"github.com/spec-kit/ticket-sla-engine/internal/events"
	"github.com/spec-kit/ticket-sla-engine/internal/notify"
	"github.com/spec-kit/ticket-sla-engine/internal/observability"
	"github.com/spec-kit/ticket-sla-engine/internal/repository"
)

// NotificationService turns ticket events into messages for the people
// involved. Delivery failures are logged and counted, never returned.
type NotificationService struct {
	dispatcher events.Dispatcher
	sender     notify.Sender
	users      repository.UserRepository
	logger     *zap.Logger
	metrics    *observability.Metrics
	timeout    time.Duration
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, sender notify.Sender, users repository.UserRepository,
	logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		sender:     sender,
		users:      users,
		logger:     logger,
		metrics:    metrics,
		timeout:    timeout,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketDepartmentReassigned, n.handleDepartmentReassigned)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.deliver(ctx, event, n.contactsOf(ctx, payload.RequesterID),
		fmt.Sprintf("[%s] Ticket received", payload.Code),
		fmt.Sprintf("Your ticket %q was received and is waiting for triage.", payload.Title))
	return nil
}

func (n *NotificationService) handleDepartmentReassigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DepartmentReassignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	active := true
	staff, err := n.users.List(ctx, repository.UserFilter{DepartmentID: &payload.NewDepartmentID, Active: &active})
	if err != nil {
		n.fail(event, "department staff lookup failed", err)
		return nil
	}
	var recipients []string
	for _, user := range staff {
		if user.Role.AtLeast(domain.RoleAgent) {
			recipients = append(recipients, contact(&user)...)
		}
	}
	n.deliver(ctx, event, recipients,
		fmt.Sprintf("[%s] Ticket routed to your department", payload.Code),
		fmt.Sprintf("Ticket %q now belongs to your department.", payload.Title))
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.deliver(ctx, event, n.contactsOf(ctx, payload.NewAssigneeID),
		fmt.Sprintf("[%s] Ticket assigned to you", payload.Code),
		fmt.Sprintf("Ticket %q was assigned to you.", payload.Title))
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.deliver(ctx, event, n.contactsOf(ctx, payload.RequesterID),
		fmt.Sprintf("[%s] Status changed to %s", payload.Code, payload.NewStatus),
		fmt.Sprintf("Your ticket moved from %s to %s.", payload.OldStatus, payload.NewStatus))
	return nil
}

func (n *NotificationService) contactsOf(ctx context.Context, userID string) []string {
	if userID == "" || n.users == nil {
		return nil
	}
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		n.logger.Warn("notification recipient lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if !user.Active {
		return nil
	}
	return contact(user)
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event, recipients []string, subject, body string) {
	if len(recipients) == 0 {
		n.metrics.RecordNotification(string(event.Type), "skipped")
		return
	}
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := n.sender.Send(ctx, recipients, subject, body); err != nil {
		n.fail(event, "notification send failed", err)
		return
	}
	n.metrics.RecordNotification(string(event.Type), "sent")
}

func (n *NotificationService) fail(event events.Event, msg string, err error) {
	n.metrics.RecordNotification(string(event.Type), "failed")
	n.logger.Warn(msg,
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.Error(err))
}

func contact(user *domain.User) []string {
	switch {
	case user.Email != "":
		return []string{user.Email}
	case user.Phone != "":
		return []string{user.Phone}
	}
	return nil
}
