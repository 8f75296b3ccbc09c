package domain

import "time"

// User is the account record owned by the credential store.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string

	// RefreshTokenHash is the fingerprint of the single live refresh token.
	// nil means there is no active session.
	RefreshTokenHash *string

	FailedLoginAttempts int
	LockedUntil         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// HasActiveSession reports whether a refresh token fingerprint is registered.
func (u *User) HasActiveSession() bool {
	return u.RefreshTokenHash != nil && *u.RefreshTokenHash != ""
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Roles != nil {
		c.Roles = append([]string(nil), u.Roles...)
	}
	if u.RefreshTokenHash != nil {
		h := *u.RefreshTokenHash
		c.RefreshTokenHash = &h
	}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}
