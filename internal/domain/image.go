package domain

import "time"

// Image is an uploaded file attached to a ticket; the bytes live in a file store.
type Image struct {
	ID         string
	TicketID   string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}
