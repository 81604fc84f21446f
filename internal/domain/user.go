package domain

import (
	"fmt"
	"time"
)

// User is anyone who can raise, work on, or administer tickets.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Role         Role
	DepartmentID *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Label renders the user for audit trails and notifications.
func (u *User) Label() string {
	if u == nil {
		return ""
	}
	contact := u.Email
	if contact == "" {
		contact = u.Phone
	}
	if contact == "" {
		return u.Name
	}
	return fmt.Sprintf("%s (%s)", u.Name, contact)
}
