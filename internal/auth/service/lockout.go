package service

import (
	"time"

	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/domain"
	autherror "github.com/AnthoniusHendriyanto/auth-session/internal/errors"
)

const (
	DefaultMaxLoginAttempts = 5
	DefaultLockDuration     = 15 * time.Minute
)

// LockoutPolicy derives lock state from the account's failure counter and
// lockedUntil timestamp. Nothing expires locks in the background: a lock is
// simply a timestamp that admission compares against the caller's clock.
//
// The failure counter is not reset when a lock lapses, only on a successful
// login, so an account whose lock has expired re-locks on its next failure.
type LockoutPolicy struct {
	maxAttempts  int
	lockDuration time.Duration
}

type LockoutOption func(*LockoutPolicy)

func WithMaxAttempts(n int) LockoutOption {
	return func(p *LockoutPolicy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithLockDuration(d time.Duration) LockoutOption {
	return func(p *LockoutPolicy) {
		if d > 0 {
			p.lockDuration = d
		}
	}
}

func NewLockoutPolicy(opts ...LockoutOption) *LockoutPolicy {
	p := &LockoutPolicy{
		maxAttempts:  DefaultMaxLoginAttempts,
		lockDuration: DefaultLockDuration,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LockoutPolicy) MaxAttempts() int            { return p.maxAttempts }
func (p *LockoutPolicy) LockDuration() time.Duration { return p.lockDuration }

// IsLocked reports whether user is inside an active lock window at now.
func (p *LockoutPolicy) IsLocked(user *domain.User, now time.Time) bool {
	return user.LockedUntil != nil && user.LockedUntil.After(now)
}

// CheckAdmission returns ErrAccountLocked while the lock window is open.
// It must run before the password is compared.
func (p *LockoutPolicy) CheckAdmission(user *domain.User, now time.Time) error {
	if p.IsLocked(user, now) {
		return autherror.ErrAccountLocked
	}
	return nil
}

// RecordFailure counts a failed password and reports whether this failure
// engaged a lock.
func (p *LockoutPolicy) RecordFailure(user *domain.User, now time.Time) bool {
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts < p.maxAttempts {
		return false
	}
	until := now.Add(p.lockDuration)
	user.LockedUntil = &until
	return true
}

func (p *LockoutPolicy) RecordSuccess(user *domain.User) {
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
}
