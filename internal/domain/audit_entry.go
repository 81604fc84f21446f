package domain

import "time"

// EntityTicket is the entity type recorded on ticket audit entries.
const EntityTicket = "ticket"

// Audited ticket fields.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldDepartment  = "department"
	FieldCategory    = "category"
	FieldPriority    = "priority"
	FieldStatus      = "status"
	FieldAssignee    = "assignee"
	FieldArchived    = "archived"
)

// FieldChange is one field's transition from Old to New.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// AuditEntry is an immutable record of one field change.
type AuditEntry struct {
	ID         string
	EntityType string
	EntityID   string
	Field      string
	OldValue   string
	NewValue   string
	ActorID    string
	CreatedAt  time.Time
}
