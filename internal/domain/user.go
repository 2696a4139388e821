// Package domain contains core domain types for the FitMind chat service.
package domain

import (
	"strings"
	"time"
)

// User represents a visitor profile. Guests are never written to the store.
type User struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Guest       bool      `json:"guest"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FirstName returns the first word of the display name, falling back to the
// local part of the e-mail address. Empty when neither is known.
func (u *User) FirstName() string {
	if u == nil {
		return ""
	}
	if fields := strings.Fields(u.DisplayName); len(fields) > 0 {
		return fields[0]
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return ""
}
