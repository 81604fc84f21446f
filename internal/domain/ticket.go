package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "NEW"
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusCanceled   TicketStatus = "CANCELED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusInProgress,
		TicketStatusResolved, TicketStatusClosed, TicketStatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions leave s.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCanceled
}

// StopsSLAClock reports whether a ticket in s can no longer violate its SLA.
func (s TicketStatus) StopsSLAClock() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed || s == TicketStatusCanceled
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           string
	Code         string
	RequesterID  string
	DepartmentID *string
	CategoryID   *string
	AssigneeID   *string
	Title        string
	Description  string
	Status       TicketStatus
	Priority     *Priority

	SLAPolicyID     *string
	SLAStartedAt    *time.Time
	ResponseDueAt   *time.Time
	ResolutionDueAt *time.Time

	// Violated is a snapshot refreshed on every read and write.
	Violated bool
	Archived bool

	// Version guards concurrent writers; updates commit only against the version they read.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSLA reports whether deadlines were computed for the ticket.
func (t *Ticket) HasSLA() bool {
	return t.SLAStartedAt != nil && t.ResolutionDueAt != nil
}

// Triaged reports whether department, category and priority are all set.
func (t *Ticket) Triaged() bool {
	return t.DepartmentID != nil && t.CategoryID != nil && t.Priority != nil
}

// Clone returns a deep copy so callers can mutate without touching t.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.DepartmentID = cloneString(t.DepartmentID)
	c.CategoryID = cloneString(t.CategoryID)
	c.AssigneeID = cloneString(t.AssigneeID)
	c.SLAPolicyID = cloneString(t.SLAPolicyID)
	c.SLAStartedAt = cloneTime(t.SLAStartedAt)
	c.ResponseDueAt = cloneTime(t.ResponseDueAt)
	c.ResolutionDueAt = cloneTime(t.ResolutionDueAt)
	if t.Priority != nil {
		p := *t.Priority
		c.Priority = &p
	}
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
