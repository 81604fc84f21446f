package events

import (
	"time"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated              EventType = "ticket_created"
	EventTicketUpdated              EventType = "ticket_updated"
	EventTicketDepartmentReassigned EventType = "ticket_department_reassigned"
	EventTicketAssigned             EventType = "ticket_assigned"
	EventTicketStatusChanged        EventType = "ticket_status_changed"
	EventTicketArchived             EventType = "ticket_archived"
	EventTicketRestored             EventType = "ticket_restored"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  string       `json:"ticket_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   any          `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	RequesterID string `json:"requester_id"`
}

// TicketUpdatedPayload lists the fields an update changed.
type TicketUpdatedPayload struct {
	Code   string   `json:"code"`
	Fields []string `json:"fields"`
}

// DepartmentReassignedPayload payload.
type DepartmentReassignedPayload struct {
	Code            string `json:"code"`
	Title           string `json:"title"`
	OldDepartmentID string `json:"old_department_id,omitempty"`
	NewDepartmentID string `json:"new_department_id"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Code          string `json:"code"`
	Title         string `json:"title"`
	OldAssigneeID string `json:"old_assignee_id,omitempty"`
	NewAssigneeID string `json:"new_assignee_id"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Code        string              `json:"code"`
	RequesterID string              `json:"requester_id"`
	OldStatus   domain.TicketStatus `json:"old_status"`
	NewStatus   domain.TicketStatus `json:"new_status"`
}
