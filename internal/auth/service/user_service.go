package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnthoniusHendriyanto/auth-session/config"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/domain"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/dto"
	autherror "github.com/AnthoniusHendriyanto/auth-session/internal/errors"
	"github.com/AnthoniusHendriyanto/auth-session/internal/metrics"
	authconstant "github.com/AnthoniusHendriyanto/auth-session/pkg/constant"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// UserService drives the session lifecycle of an account: Register, Login,
// Refresh and Logout. It is the only component that talks to the credential
// store.
//
// Every operation reads the account, mutates it in memory and writes it back.
// The write is not conditional, so concurrent operations on one account are
// last-write-wins: a failure increment or a fingerprint rotation can be lost.
type UserService struct {
	repo    domain.UserRepository
	tokens  TokenGenerator
	hasher  PasswordHasher
	lockout *LockoutPolicy
	metrics *metrics.AuthMetrics
	log     *logrus.Entry

	now          func() time.Time
	newUserID    func() string
	newSessionID func() string
}

type Option func(*UserService)

// WithClock replaces the wall clock used for lockout decisions and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *UserService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithPasswordHasher(h PasswordHasher) Option {
	return func(s *UserService) {
		if h != nil {
			s.hasher = h
		}
	}
}

func WithLockoutPolicy(p *LockoutPolicy) Option {
	return func(s *UserService) {
		if p != nil {
			s.lockout = p
		}
	}
}

func WithMetrics(m *metrics.AuthMetrics) Option {
	return func(s *UserService) {
		s.metrics = m
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(s *UserService) {
		if log != nil {
			s.log = log.WithField("component", "user_service")
		}
	}
}

func NewUserService(repo domain.UserRepository, tokenService TokenGenerator, cfg *config.Config, opts ...Option) *UserService {
	if cfg == nil {
		cfg = &config.Config{}
	}

	s := &UserService{
		repo:   repo,
		tokens: tokenService,
		hasher: NewBcryptHasher(cfg.BcryptCost),
		lockout: NewLockoutPolicy(
			WithMaxAttempts(cfg.LoginMaxAttempts),
			WithLockDuration(cfg.LockDuration()),
		),
		log:          logrus.StandardLogger().WithField("component", "user_service"),
		now:          time.Now,
		newUserID:    uuid.NewString,
		newSessionID: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *UserService) Register(ctx context.Context, input dto.RegisterInput) (*domain.User, error) {
	existingUser, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		s.metrics.ObserveRegister(metrics.OutcomeError)
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	if existingUser != nil {
		s.metrics.ObserveRegister(metrics.OutcomeConflict)
		return nil, autherror.ErrEmailAlreadyInUse
	}

	hashedPassword, err := s.hasher.Hash(input.Password)
	if err != nil {
		s.metrics.ObserveRegister(metrics.OutcomeError)
		return nil, err
	}

	now := s.now()

	user := &domain.User{
		ID:           s.newUserID(),
		Email:        input.Email,
		PasswordHash: hashedPassword,
		Roles:        []string{authconstant.DefaultUserRole},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, autherror.ErrEmailAlreadyInUse) {
			s.metrics.ObserveRegister(metrics.OutcomeConflict)
			return nil, autherror.ErrEmailAlreadyInUse
		}
		s.metrics.ObserveRegister(metrics.OutcomeError)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.metrics.ObserveRegister(metrics.OutcomeSuccess)
	s.log.WithField("user_id", user.ID).Info("auth.register")

	return user, nil
}

// Login verifies credentials and opens a session. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials. A locked account yields
// ErrAccountLocked without its password being compared, and so does the
// failure that engages the lock.
func (s *UserService) Login(ctx context.Context, input dto.LoginInput) (*dto.TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		s.metrics.ObserveLogin(metrics.OutcomeError)
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	if user == nil {
		s.metrics.ObserveLogin(metrics.OutcomeInvalidCredentials)
		return nil, autherror.ErrInvalidCredentials
	}

	now := s.now()
	entry := s.log.WithFields(logrus.Fields{"user_id": user.ID, "ip": input.IPAddress, "user_agent": input.UserAgent})

	if err := s.lockout.CheckAdmission(user, now); err != nil {
		s.metrics.ObserveLogin(metrics.OutcomeLocked)
		entry.Info("auth.login.locked")
		return nil, err
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		locked := s.lockout.RecordFailure(user, now)
		user.UpdatedAt = now
		if err := s.repo.Update(ctx, user); err != nil {
			s.metrics.ObserveLogin(metrics.OutcomeError)
			return nil, fmt.Errorf("record failed login: %w", err)
		}

		entry = entry.WithField("failed_attempts", user.FailedLoginAttempts)
		if locked {
			s.metrics.ObserveLockout()
			s.metrics.ObserveLogin(metrics.OutcomeLocked)
			entry.WithField("locked_until", user.LockedUntil).Warn("auth.lockout.engaged")
			return nil, autherror.ErrAccountLocked
		}

		s.metrics.ObserveLogin(metrics.OutcomeInvalidCredentials)
		entry.Info("auth.login.failed")
		return nil, autherror.ErrInvalidCredentials
	}

	s.lockout.RecordSuccess(user)

	resp, err := s.openSession(ctx, user, now)
	if err != nil {
		s.metrics.ObserveLogin(metrics.OutcomeError)
		return nil, err
	}

	s.metrics.ObserveLogin(metrics.OutcomeSuccess)
	entry.Info("auth.login.success")

	return resp, nil
}

// Refresh redeems a refresh token for a new token pair. The presented token
// must be the one whose fingerprint is registered on the account. Any other
// token that still verifies is treated as stolen: the session is cleared and
// ErrRefreshTokenReused is returned.
func (s *UserService) Refresh(ctx context.Context, rawRefreshToken string) (*dto.TokenResponse, error) {
	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	if rawRefreshToken == "" {
		s.metrics.ObserveRefresh(metrics.OutcomeInvalid)
		return nil, autherror.ErrRefreshTokenMissing
	}

	claims, err := s.tokens.VerifyRefresh(rawRefreshToken)
	if err != nil {
		s.metrics.ObserveRefresh(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: %w", autherror.ErrInvalidRefreshToken, err)
	}

	user, err := s.repo.GetByID(ctx, claims.SubjectID())
	if err != nil {
		s.metrics.ObserveRefresh(metrics.OutcomeError)
		return nil, fmt.Errorf("lookup user by id: %w", err)
	}
	if user == nil || !user.HasActiveSession() {
		s.metrics.ObserveRefresh(metrics.OutcomeInvalid)
		return nil, autherror.ErrNoActiveSession
	}

	now := s.now()

	if !fingerprintsEqual(FingerprintRefreshToken(rawRefreshToken), *user.RefreshTokenHash) {
		user.RefreshTokenHash = nil
		user.UpdatedAt = now
		if err := s.repo.Update(ctx, user); err != nil {
			s.metrics.ObserveRefresh(metrics.OutcomeError)
			return nil, fmt.Errorf("revoke session: %w", err)
		}
		s.metrics.ObserveRefresh(metrics.OutcomeReuseDetected)
		s.log.WithFields(logrus.Fields{
			"user_id":    user.ID,
			"session_id": claims.SessionID(),
		}).Warn("auth.refresh.reuse_detected")
		return nil, autherror.ErrRefreshTokenReused
	}

	resp, err := s.openSession(ctx, user, now)
	if err != nil {
		s.metrics.ObserveRefresh(metrics.OutcomeError)
		return nil, err
	}

	s.metrics.ObserveRefresh(metrics.OutcomeSuccess)
	return resp, nil
}

// Logout clears the session bound to rawRefreshToken when it can. It never
// fails: a missing, invalid or unknown token is ignored.
func (s *UserService) Logout(ctx context.Context, rawRefreshToken string) {
	s.metrics.ObserveLogout()

	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	if rawRefreshToken == "" {
		return
	}

	claims, err := s.tokens.VerifyRefresh(rawRefreshToken)
	if err != nil {
		s.log.WithError(err).Debug("auth.logout.swallowed")
		return
	}

	user, err := s.repo.GetByID(ctx, claims.SubjectID())
	if err != nil {
		s.log.WithError(err).Warn("auth.logout.swallowed")
		return
	}
	if user == nil || user.RefreshTokenHash == nil {
		return
	}

	user.RefreshTokenHash = nil
	user.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, user); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("auth.logout.swallowed")
		return
	}

	s.log.WithField("user_id", user.ID).Info("auth.logout")
}

// Authenticate verifies a bearer access token.
func (s *UserService) Authenticate(accessToken string) (*AccessClaims, error) {
	return s.tokens.VerifyAccess(accessToken)
}

// Profile loads the account identified by id.
func (s *UserService) Profile(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup user by id: %w", err)
	}
	if user == nil {
		return nil, autherror.ErrUserNotFound
	}
	return user, nil
}

// RefreshTokenTTL is the lifetime the transport uses for the refresh cookie.
func (s *UserService) RefreshTokenTTL() time.Duration {
	return s.tokens.GetRefreshTokenExpiry()
}

// openSession mints a token pair under a fresh session id, registers the
// refresh token fingerprint on user and persists it.
func (s *UserService) openSession(ctx context.Context, user *domain.User, now time.Time) (*dto.TokenResponse, error) {
	sessionID := s.newSessionID()

	accessToken, err := s.tokens.SignAccess(user.ID, user.Roles, sessionID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.SignRefresh(user.ID, sessionID)
	if err != nil {
		return nil, err
	}

	fingerprint := FingerprintRefreshToken(refreshToken)
	user.RefreshTokenHash = &fingerprint
	user.UpdatedAt = now

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    authconstant.DefaultTokenType,
		ExpiresIn:    int(s.tokens.GetAccessTokenExpiry().Seconds()),
		RefreshToken: refreshToken,
	}, nil
}
