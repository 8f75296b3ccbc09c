package handler

import (
	"errors"
	"time"

	"github.com/AnthoniusHendriyanto/auth-session/config"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/domain"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/dto"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/service"
	autherror "github.com/AnthoniusHendriyanto/auth-session/internal/errors"
	authconstant "github.com/AnthoniusHendriyanto/auth-session/pkg/constant"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CookieConfig scopes the refresh token cookie.
type CookieConfig struct {
	Domain string
	Secure bool
}

type AuthHandler struct {
	userService *service.UserService
	cookie      CookieConfig
	log         *logrus.Entry
}

func NewAuthHandler(userService *service.UserService, cfg *config.Config, logger *logrus.Logger) *AuthHandler {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthHandler{
		userService: userService,
		cookie:      CookieConfig{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure},
		log:         logger.WithField("component", "auth_handler"),
	}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input dto.RegisterInput
	if err := c.BodyParser(&input); err != nil || input.Email == "" || input.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid input"})
	}

	if _, err := h.userService.Register(c.UserContext(), input); err != nil {
		return h.writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.MessageResponse{Message: "User registered"})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid input"})
	}

	// Capture metadata
	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	tokenPair, err := h.userService.Login(c.UserContext(), input)
	if err != nil {
		return h.writeError(c, err)
	}

	h.setRefreshCookie(c, tokenPair.RefreshToken)
	return c.Status(fiber.StatusOK).JSON(tokenPair)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	tokens, err := h.userService.Refresh(c.UserContext(), c.Cookies(authconstant.RefreshCookieName))
	if err != nil {
		// Every rejection looks the same to the client; the cause is only logged.
		h.log.WithError(err).WithField("ip", c.IP()).Info("auth.refresh.rejected")
		h.clearRefreshCookie(c)
		return h.writeError(c, err)
	}

	h.setRefreshCookie(c, tokens.RefreshToken)
	return c.Status(fiber.StatusOK).JSON(tokens)
}

// Logout always succeeds and always expires the refresh cookie.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.userService.Logout(c.UserContext(), c.Cookies(authconstant.RefreshCookieName))
	h.clearRefreshCookie(c)
	return c.Status(fiber.StatusOK).JSON(dto.MessageResponse{Message: "Logged out"})
}

// Me returns the account behind the bearer token.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claims, ok := claimsFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Unauthorized"})
	}
	return h.writeProfile(c, claims.SubjectID())
}

// GetUser returns any account by id. Mounted behind RequireRole("admin").
// Ids that are not UUIDs cannot name an account and are not looked up.
func (h *AuthHandler) GetUser(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "User not found"})
	}
	return h.writeProfile(c, id)
}

func (h *AuthHandler) writeProfile(c *fiber.Ctx, id string) error {
	user, err := h.userService.Profile(c.UserContext(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(toUserOutput(user))
}

func toUserOutput(user *domain.User) dto.UserOutput {
	return dto.UserOutput{
		ID:        user.ID,
		Email:     user.Email,
		Roles:     user.Roles,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, refreshToken string) {
	ttl := h.userService.RefreshTokenTTL()
	c.Cookie(&fiber.Cookie{
		Name:     authconstant.RefreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		Secure:   h.cookie.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     authconstant.RefreshCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cookie.Domain,
		Expires:  time.Unix(0, 0),
		Secure:   h.cookie.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// invalidRefreshMessage is shared by all refresh failures so a caller cannot
// tell a missing, expired, forged or replayed token apart.
const invalidRefreshMessage = "Invalid refresh token"

type errorMapping struct {
	target  error
	status  int
	message string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{autherror.ErrEmailAlreadyInUse, fiber.StatusConflict, "Email already registered"},
	{autherror.ErrAccountLocked, fiber.StatusLocked, "Account locked"},
	{autherror.ErrTooManyLoginAttempts, fiber.StatusTooManyRequests, "too many login attempts"},
	{autherror.ErrPasswordTooLong, fiber.StatusBadRequest, "password too long"},
	{autherror.ErrInvalidCredentials, fiber.StatusUnauthorized, "Invalid credentials"},
	{autherror.ErrRefreshTokenMissing, fiber.StatusUnauthorized, invalidRefreshMessage},
	{autherror.ErrInvalidRefreshToken, fiber.StatusUnauthorized, invalidRefreshMessage},
	{autherror.ErrNoActiveSession, fiber.StatusUnauthorized, invalidRefreshMessage},
	{autherror.ErrRefreshTokenReused, fiber.StatusUnauthorized, invalidRefreshMessage},
	{autherror.ErrUserNotFound, fiber.StatusNotFound, "User not found"},
}

// writeError renders err as {"error": ...}. Unrecognised errors are logged
// and reported as an opaque 500.
func (h *AuthHandler) writeError(c *fiber.Ctx, err error) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return c.Status(m.status).JSON(dto.ErrorResponse{Error: m.message})
		}
	}
	if autherror.IsUnauthorized(err) {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Unauthorized"})
	}

	h.log.WithError(err).WithFields(logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}).Error("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "Internal Server Error"})
}
