// Package memory is an in-process credential store. Records are copied on the
// way in and out so callers get the same read-modify-write semantics as with
// a database: concurrent updates to one account are last-write-wins.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/domain"
	autherror "github.com/AnthoniusHendriyanto/auth-session/internal/errors"
)

type Repository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

func NewRepository() *Repository {
	return &Repository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *Repository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[emailKey(email)]
	if !ok {
		return nil, nil
	}
	return r.live(id), nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.live(id), nil
}

func (r *Repository) live(id string) *domain.User {
	user, ok := r.byID[id]
	if !ok || user.DeletedAt != nil {
		return nil
	}
	return user.Clone()
}

func (r *Repository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := emailKey(user.Email)
	if _, taken := r.byEmail[key]; taken {
		return autherror.ErrEmailAlreadyInUse
	}
	r.byID[user.ID] = user.Clone()
	r.byEmail[key] = user.ID
	return nil
}

func (r *Repository) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok || current.DeletedAt != nil {
		return autherror.ErrUserNotFound
	}

	next := current.Clone()
	next.RefreshTokenHash = user.Clone().RefreshTokenHash
	next.FailedLoginAttempts = user.FailedLoginAttempts
	next.LockedUntil = user.Clone().LockedUntil
	next.UpdatedAt = user.UpdatedAt
	r.byID[user.ID] = next
	return nil
}
