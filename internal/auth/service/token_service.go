package service

//go:generate mockgen -destination=../../mocks/mock_token_generator.go -package=mocks github.com/AnthoniusHendriyanto/auth-session/internal/auth/service TokenGenerator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	autherror "github.com/AnthoniusHendriyanto/auth-session/internal/errors"
	authconstant "github.com/AnthoniusHendriyanto/auth-session/pkg/constant"
	"github.com/golang-jwt/jwt/v5"
)

type TokenGenerator interface {
	SignAccess(subjectID string, roles []string, sessionID string) (string, error)
	SignRefresh(subjectID, sessionID string) (string, error)
	VerifyAccess(tokenString string) (*AccessClaims, error)
	VerifyRefresh(tokenString string) (*RefreshClaims, error)
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

// AccessClaims identify the account (sub), its roles and the session (jti).
type AccessClaims struct {
	jwt.RegisteredClaims
	Roles    []string `json:"roles"`
	TokenUse string   `json:"token_use"`
}

func (c *AccessClaims) SubjectID() string { return c.Subject }
func (c *AccessClaims) SessionID() string { return c.ID }

// HasRole reports whether role is present in the token.
func (c *AccessClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type RefreshClaims struct {
	jwt.RegisteredClaims
	TokenUse string `json:"token_use"`
}

func (c *RefreshClaims) SubjectID() string { return c.Subject }
func (c *RefreshClaims) SessionID() string { return c.ID }

// tokenSigner signs and verifies one class of token with its own secret and lifetime.
type tokenSigner struct {
	secret []byte
	ttl    time.Duration
}

func (s tokenSigner) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s tokenSigner) parse(tokenString string, claims jwt.Claims, now func() time.Time) error {
	if strings.TrimSpace(tokenString) == "" {
		return autherror.ErrTokenMalformed
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return classifyTokenError(err)
	}
	return nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", autherror.ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", autherror.ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", autherror.ErrTokenInvalid, err)
	}
}

type TokenService struct {
	access  tokenSigner
	refresh tokenSigner
	now     func() time.Time
}

type TokenOption func(*TokenService)

// WithTokenClock replaces the wall clock used for iat/exp and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, opts ...TokenOption) *TokenService {
	ts := &TokenService{
		access:  tokenSigner{secret: []byte(accessSecret), ttl: accessTTL},
		refresh: tokenSigner{secret: []byte(refreshSecret), ttl: refreshTTL},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

func (ts *TokenService) registered(subjectID, sessionID string, ttl time.Duration) jwt.RegisteredClaims {
	now := ts.now()
	return jwt.RegisteredClaims{
		Subject:   subjectID,
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (ts *TokenService) SignAccess(subjectID string, roles []string, sessionID string) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: ts.registered(subjectID, sessionID, ts.access.ttl),
		Roles:            roles,
		TokenUse:         authconstant.TokenUseAccess,
	}
	token, err := ts.access.sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

func (ts *TokenService) SignRefresh(subjectID, sessionID string) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: ts.registered(subjectID, sessionID, ts.refresh.ttl),
		TokenUse:         authconstant.TokenUseRefresh,
	}
	token, err := ts.refresh.sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return token, nil
}

// VerifyAccess parses and validates the given access token string.
func (ts *TokenService) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ts.access.parse(tokenString, claims, ts.now); err != nil {
		return nil, err
	}
	if claims.TokenUse != authconstant.TokenUseAccess || claims.Subject == "" || claims.ID == "" {
		return nil, autherror.ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh parses and validates the given refresh token string.
func (ts *TokenService) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ts.refresh.parse(tokenString, claims, ts.now); err != nil {
		return nil, err
	}
	if claims.TokenUse != authconstant.TokenUseRefresh || claims.Subject == "" || claims.ID == "" {
		return nil, autherror.ErrTokenInvalid
	}
	return claims, nil
}

func (ts *TokenService) GetAccessTokenExpiry() time.Duration {
	return ts.access.ttl
}

func (ts *TokenService) GetRefreshTokenExpiry() time.Duration {
	return ts.refresh.ttl
}
