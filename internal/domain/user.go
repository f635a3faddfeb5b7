// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxDisplayNameLen = 64

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type UserID string

// Identity is the authenticated user attached to a connection.
// Immutable for the connection's lifetime.
type Identity struct {
	UserID      UserID `json:"id"`
	DisplayName string `json:"name"`
	AvatarURL   string `json:"image,omitempty"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(id UserID, name, avatar string) (*Identity, error) {
	if len(name) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Identity{UserID: id, DisplayName: name, AvatarURL: avatar}, nil
}
