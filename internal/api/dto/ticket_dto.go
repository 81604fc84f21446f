package dto

import (
	"time"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=10000"`
}

// UpdateTicketRequest payload. Absent fields are left unchanged.
type UpdateTicketRequest struct {
	Title        *string `json:"title" validate:"omitempty,max=200"`
	Description  *string `json:"description" validate:"omitempty,max=10000"`
	DepartmentID *string `json:"department_id" validate:"omitempty,min=1"`
	CategoryID   *string `json:"category_id" validate:"omitempty,min=1"`
	Priority     *string `json:"priority" validate:"omitempty,alpha"`
	Status       *string `json:"status" validate:"omitempty,ticket_status"`
	AssigneeID   *string `json:"assignee_id" validate:"omitempty,min=1"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID string `json:"assignee_id" validate:"required"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,ticket_status"`
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID              string              `json:"id"`
	Code            string              `json:"code"`
	RequesterID     string              `json:"requester_id"`
	DepartmentID    *string             `json:"department_id"`
	CategoryID      *string             `json:"category_id"`
	AssigneeID      *string             `json:"assignee_id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Status          domain.TicketStatus `json:"status"`
	Priority        *domain.Priority    `json:"priority"`
	SLAPolicyID     *string             `json:"sla_policy_id"`
	SLAStartedAt    *time.Time          `json:"sla_started_at"`
	ResponseDueAt   *time.Time          `json:"response_due_at"`
	ResolutionDueAt *time.Time          `json:"resolution_due_at"`
	Violated        bool                `json:"violated"`
	Archived        bool                `json:"archived"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// TicketPageResponse is one page of a ticket listing.
type TicketPageResponse struct {
	Items    []TicketResponse `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// AuditEntryResponse is one audit row.
type AuditEntryResponse struct {
	ID        string    `json:"id"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SLAPolicyResponse is one policy row.
type SLAPolicyResponse struct {
	ID                string          `json:"id"`
	Priority          domain.Priority `json:"priority"`
	ResponseMinutes   int             `json:"response_minutes"`
	ResolutionMinutes int             `json:"resolution_minutes"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:              t.ID,
		Code:            t.Code,
		RequesterID:     t.RequesterID,
		DepartmentID:    t.DepartmentID,
		CategoryID:      t.CategoryID,
		AssigneeID:      t.AssigneeID,
		Title:           t.Title,
		Description:     t.Description,
		Status:          t.Status,
		Priority:        t.Priority,
		SLAPolicyID:     t.SLAPolicyID,
		SLAStartedAt:    t.SLAStartedAt,
		ResponseDueAt:   t.ResponseDueAt,
		ResolutionDueAt: t.ResolutionDueAt,
		Violated:        t.Violated,
		Archived:        t.Archived,
		Version:         t.Version,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// NewAuditEntryResponses maps a trail, keeping its order.
func NewAuditEntryResponses(entries []domain.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:        e.ID,
			Field:     e.Field,
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			ActorID:   e.ActorID,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
