package domain

//go:generate mockgen -destination=../../mocks/mock_user_repository.go -package=mocks github.com/AnthoniusHendriyanto/auth-session/internal/auth/domain UserRepository

import "context"

// UserRepository is the credential store. Lookups return (nil, nil) when no
// live record matches.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	// Create fails with ErrEmailAlreadyInUse when the email is taken.
	Create(ctx context.Context, user *User) error
	// Update persists the mutable session and lockout fields of user.
	Update(ctx context.Context, user *User) error
}
