package handler

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/dto"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/service"
	"github.com/AnthoniusHendriyanto/auth-session/internal/ratelimit"
	authconstant "github.com/AnthoniusHendriyanto/auth-session/pkg/constant"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// RequireAuth verifies the bearer access token and stores its claims in Locals.
func (h *AuthHandler) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, authconstant.DefaultTokenType) || strings.TrimSpace(token) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Unauthorized"})
	}

	claims, err := h.userService.Authenticate(strings.TrimSpace(token))
	if err != nil {
		h.log.WithError(err).Debug("bearer token rejected")
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Unauthorized"})
	}

	c.Locals(authconstant.LocalsClaimsKey, claims)
	return c.Next()
}

// RequireRole must run after RequireAuth.
func (h *AuthHandler) RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := claimsFromContext(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Unauthorized"})
		}
		if !claims.HasRole(role) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "Forbidden"})
		}
		return c.Next()
	}
}

func claimsFromContext(c *fiber.Ctx) (*service.AccessClaims, bool) {
	claims, ok := c.Locals(authconstant.LocalsClaimsKey).(*service.AccessClaims)
	return claims, ok && claims != nil
}

// LoginRateLimit throttles requests per client IP. Limiter errors are logged
// and the request is let through.
func LoginRateLimit(limiter ratelimit.Limiter, logger *logrus.Logger) fiber.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "login_rate_limit")
	return func(c *fiber.Ctx) error {
		allowed, err := limiter.Allow(c.UserContext(), c.IP())
		if err != nil {
			log.WithError(err).Warn("rate limiter unavailable")
		}
		if !allowed {
			log.WithField("ip", c.IP()).Info("auth.login.throttled")
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(limiter.RetryAfter(c.UserContext(), c.IP()))))
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{Error: "too many login attempts"})
		}
		return c.Next()
	}
}

// retryAfterSeconds rounds d up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// RequestLogger logs one line per request.
func RequestLogger(logger *logrus.Logger) fiber.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		entry := logger.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.IP(),
		})
		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error("http request")
		case status >= fiber.StatusBadRequest:
			entry.Warn("http request")
		default:
			entry.Info("http request")
		}
		return err
	}
}
