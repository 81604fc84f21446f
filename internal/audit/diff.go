package audit

import (
	"strconv"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

// Diff lists the audited fields that differ between before and after, in a
// fixed order. Nil references render as "".
func Diff(before, after *domain.Ticket) []domain.FieldChange {
	var changes []domain.FieldChange
	add := func(field, from, to string) {
		if from != to {
			changes = append(changes, domain.FieldChange{Field: field, Old: from, New: to})
		}
	}
	add(domain.FieldTitle, before.Title, after.Title)
	add(domain.FieldDescription, before.Description, after.Description)
	add(domain.FieldDepartment, deref(before.DepartmentID), deref(after.DepartmentID))
	add(domain.FieldCategory, deref(before.CategoryID), deref(after.CategoryID))
	add(domain.FieldPriority, priority(before.Priority), priority(after.Priority))
	add(domain.FieldStatus, string(before.Status), string(after.Status))
	add(domain.FieldAssignee, deref(before.AssigneeID), deref(after.AssigneeID))
	add(domain.FieldArchived, strconv.FormatBool(before.Archived), strconv.FormatBool(after.Archived))
	return changes
}

// Relabel swaps the raw values recorded for field with display values.
func Relabel(changes []domain.FieldChange, field, from, to string) []domain.FieldChange {
	for i := range changes {
		if changes[i].Field == field {
			changes[i].Old = from
			changes[i].New = to
		}
	}
	return changes
}

// Fields returns the names of changed fields.
func Fields(changes []domain.FieldChange) []string {
	fields := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.Field
	}
	return fields
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func priority(p *domain.Priority) string {
	if p == nil {
		return ""
	}
	return string(*p)
}
