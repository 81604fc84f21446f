package domain

import "time"

// SLAPolicy maps a priority to response and resolution offsets.
type SLAPolicy struct {
	ID                string
	Priority          Priority
	ResponseMinutes   int
	ResolutionMinutes int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
