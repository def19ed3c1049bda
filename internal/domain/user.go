// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 36
)

var (
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrUserIDTooLong      = errors.New("user id too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

// UserID is the stable identifier supplied by the identity provider.
type UserID string

type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id string, displayName string) (*User, error) {
	uid, err := ParseUserID(id)
	if err != nil {
		return nil, err
	}
	u := &User{ID: uid}
	if err := u.SetDisplayName(displayName); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetDisplayName(name string) error {
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	if name == "" {
		name = string(u.ID)
	}
	u.DisplayName = name
	return nil
}

func ParseUserID(raw string) (UserID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrUserIDEmpty
	}
	if len(raw) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(raw), nil
}

// IsOfferer reports whether self produces the session offer for a call with peer.
// The lexicographically lower id always offers, whoever placed the call.
func IsOfferer(self, peer UserID) bool {
	return self < peer
}
