package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/AnthoniusHendriyanto/auth-session/config"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/domain"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/dto"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/handler"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/repository/memory"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/service"
	"github.com/AnthoniusHendriyanto/auth-session/internal/metrics"
	"github.com/AnthoniusHendriyanto/auth-session/internal/mocks"
	"github.com/AnthoniusHendriyanto/auth-session/internal/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "a@x.com"
	testPassword = "pw1"
)

type testServer struct {
	app    *fiber.App
	repo   *memory.Repository
	tokens *service.TokenService
	hasher *service.BcryptHasher
}

func newTestServer(t *testing.T, limiter ratelimit.Limiter) *testServer {
	t.Helper()

	logger, _ := logtest.NewNullLogger()
	cfg := &config.Config{LoginMaxAttempts: 5, LockDurationMin: 15}
	repo := memory.NewRepository()
	tokens := service.NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	hasher := service.NewBcryptHasher(bcrypt.MinCost)
	registry := prometheus.NewRegistry()

	userService := service.NewUserService(repo, tokens, cfg,
		service.WithPasswordHasher(hasher),
		service.WithMetrics(metrics.NewAuthMetrics(registry)),
		service.WithLogger(logger),
	)
	authHandler := handler.NewAuthHandler(userService, cfg, logger)

	app := handler.NewApp(cfg, logger)
	handler.RegisterRoutes(app, authHandler, limiter, registry, logger)

	return &testServer{app: app, repo: repo, tokens: tokens, hasher: hasher}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, opts ...func(*http.Request)) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func withCookie(value string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "jid", Value: value})
	}
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "jid" {
			return c
		}
	}
	return nil
}

func (s *testServer) register(t *testing.T) {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/v1/register", dto.RegisterInput{Email: testEmail, Password: testPassword})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func (s *testServer) login(t *testing.T, password string) *http.Response {
	t.Helper()
	return s.do(t, http.MethodPost, "/api/v1/login", dto.LoginInput{Email: testEmail, Password: password})
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("success", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/v1/register", dto.RegisterInput{Email: testEmail, Password: testPassword})
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, "User registered", decode(t, resp)["message"])
		assert.Nil(t, refreshCookie(resp), "registration issues no tokens")
	})

	t.Run("duplicate email", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/v1/register", dto.RegisterInput{Email: testEmail, Password: "other"})
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
		assert.Equal(t, "Email already registered", decode(t, resp)["error"])
	})

	t.Run("bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/register", bytes.NewReader([]byte("{")))
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("password too long", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/v1/register", dto.RegisterInput{Email: "b@x.com", Password: strings.Repeat("p", 73)})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t)

	t.Run("success", func(t *testing.T) {
		resp := s.login(t, testPassword)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		cookie := refreshCookie(resp)
		require.NotNil(t, cookie)
		assert.NotEmpty(t, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Equal(t, "/", cookie.Path)
		assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)

		body := decode(t, resp)
		assert.NotEmpty(t, body["accessToken"])
		assert.Equal(t, "Bearer", body["tokenType"])
		assert.Equal(t, float64(900), body["expiresIn"])
		for _, v := range body {
			assert.NotEqual(t, cookie.Value, v, "refresh token never travels in the body")
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/v1/login", dto.LoginInput{Email: "nobody@x.com", Password: testPassword})
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Invalid credentials", decode(t, resp)["error"])
	})

	t.Run("bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewReader([]byte("not json")))
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogin_LockoutScenario(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t)

	for i := 1; i <= 4; i++ {
		resp := s.login(t, "wrong")
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "attempt %d", i)
	}

	resp := s.login(t, "wrong")
	assert.Equal(t, fiber.StatusLocked, resp.StatusCode)
	assert.Equal(t, "Account locked", decode(t, resp)["error"])

	resp = s.login(t, testPassword)
	assert.Equal(t, fiber.StatusLocked, resp.StatusCode)
	assert.Nil(t, refreshCookie(resp))
}

func TestRefresh(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t)

	loginResp := s.login(t, testPassword)
	require.Equal(t, fiber.StatusOK, loginResp.StatusCode)
	original := refreshCookie(loginResp)
	require.NotNil(t, original)

	user, err := s.repo.GetByEmail(context.Background(), testEmail)
	require.NoError(t, err)

	forged, err := service.NewTokenService("other-access", "other-refresh", 15*time.Minute, time.Hour).
		SignRefresh(user.ID, "forged-session")
	require.NoError(t, err)
	expired, err := service.NewTokenService("access-secret", "refresh-secret", 15*time.Minute, -time.Minute).
		SignRefresh(user.ID, "expired-session")
	require.NoError(t, err)

	var rotated *http.Cookie
	t.Run("rotates", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/v1/refresh", nil, withCookie(original.Value))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		rotated = refreshCookie(resp)
		require.NotNil(t, rotated)
		assert.NotEqual(t, original.Value, rotated.Value)
		assert.NotEmpty(t, decode(t, resp)["accessToken"])
	})
	require.NotNil(t, rotated)

	// Requests run in order: the replay revokes the session, after which the
	// rotated token no longer has an active session behind it.
	rejections := []struct {
		name string
		opts []func(*http.Request)
	}{
		{name: "missing cookie"},
		{name: "garbage token", opts: []func(*http.Request){withCookie("garbage")}},
		{name: "forged token", opts: []func(*http.Request){withCookie(forged)}},
		{name: "expired token", opts: []func(*http.Request){withCookie(expired)}},
		{name: "replayed token", opts: []func(*http.Request){withCookie(original.Value)}},
		{name: "token of revoked session", opts: []func(*http.Request){withCookie(rotated.Value)}},
	}

	var firstBody string
	for _, rj := range rejections {
		resp := s.do(t, http.MethodPost, "/api/v1/refresh", nil, rj.opts...)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, rj.name)

		cleared := refreshCookie(resp)
		if assert.NotNil(t, cleared, rj.name) {
			assert.Empty(t, cleared.Value, rj.name)
			assert.True(t, cleared.Expires.Before(time.Now()), rj.name)
		}

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()

		if firstBody == "" {
			firstBody = string(raw)
			assert.Contains(t, firstBody, "Invalid refresh token")
			continue
		}
		assert.Equal(t, firstBody, string(raw), "%s must be indistinguishable", rj.name)
	}

	stored, err := s.repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.RefreshTokenHash, "replay revoked the session")
}

func TestLogout(t *testing.T) {
	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/logout"},
		{http.MethodDelete, "/api/v1/session"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			s := newTestServer(t, nil)
			s.register(t)

			loginResp := s.login(t, testPassword)
			require.Equal(t, fiber.StatusOK, loginResp.StatusCode)
			cookie := refreshCookie(loginResp)
			require.NotNil(t, cookie)

			resp := s.do(t, route.method, route.path, nil, withCookie(cookie.Value))
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			cleared := refreshCookie(resp)
			require.NotNil(t, cleared)
			assert.Empty(t, cleared.Value)
			assert.True(t, cleared.Expires.Before(time.Now()))
			assert.Equal(t, "Logged out", decode(t, resp)["message"])

			user, err := s.repo.GetByEmail(context.Background(), testEmail)
			require.NoError(t, err)
			assert.Nil(t, user.RefreshTokenHash)

			resp = s.do(t, http.MethodPost, "/api/v1/refresh", nil, withCookie(cookie.Value))
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}

	t.Run("without cookie still succeeds", func(t *testing.T) {
		s := newTestServer(t, nil)

		resp := s.do(t, http.MethodPost, "/api/v1/logout", nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		require.NotNil(t, refreshCookie(resp))
	})

	t.Run("with garbage cookie still succeeds", func(t *testing.T) {
		s := newTestServer(t, nil)

		resp := s.do(t, http.MethodPost, "/api/v1/logout", nil, withCookie("garbage"))
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}

func TestMe(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t)

	loginResp := s.login(t, testPassword)
	require.Equal(t, fiber.StatusOK, loginResp.StatusCode)
	accessToken := decode(t, loginResp)["accessToken"].(string)

	t.Run("fails without auth header", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/v1/me", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("fails with malformed header", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/v1/me", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "BearerInvalidToken")
		})
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("fails with refresh token", func(t *testing.T) {
		cookie := refreshCookie(loginResp)
		resp := s.do(t, http.MethodGet, "/api/v1/me", nil, withBearer(cookie.Value))
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("returns profile", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/v1/me", nil, withBearer(accessToken))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decode(t, resp)
		assert.Equal(t, testEmail, body["email"])
		assert.Equal(t, []interface{}{"user"}, body["roles"])
		assert.NotContains(t, body, "passwordHash")
	})
}

const adminID = "3f1c2b9e-8a4d-4c1e-9b7a-2d5e6f708192"

func TestRequireRoleMiddleware(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t)

	digest, err := s.hasher.Hash("admin-pw")
	require.NoError(t, err)
	require.NoError(t, s.repo.Create(context.Background(), &domain.User{
		ID:           adminID,
		Email:        "admin@x.com",
		PasswordHash: digest,
		Roles:        []string{"user", "admin"},
	}))

	userResp := s.login(t, testPassword)
	require.Equal(t, fiber.StatusOK, userResp.StatusCode)
	userToken := decode(t, userResp)["accessToken"].(string)

	adminResp := s.do(t, http.MethodPost, "/api/v1/login", dto.LoginInput{Email: "admin@x.com", Password: "admin-pw"})
	require.Equal(t, fiber.StatusOK, adminResp.StatusCode)
	adminToken := decode(t, adminResp)["accessToken"].(string)

	t.Run("fails without auth header", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/v1/admin/users/"+adminID, nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("fails for non-admin user", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/v1/admin/users/"+adminID, nil, withBearer(userToken))
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("succeeds for admin user", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/v1/admin/users/"+adminID, nil, withBearer(adminToken))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "admin@x.com", decode(t, resp)["email"])
	})

	t.Run("unknown user", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/v1/admin/users/9b2e4c71-0d3a-4f6b-8e15-6a7c8d9e0f12", nil, withBearer(adminToken))
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, ratelimit.NewLocalLimiter(2, time.Minute))
	s.register(t)

	assert.Equal(t, fiber.StatusOK, s.login(t, testPassword).StatusCode)
	assert.Equal(t, fiber.StatusUnauthorized, s.login(t, "wrong").StatusCode)

	resp := s.login(t, testPassword)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 30, "one token refills every 30s at 2/min")
	assert.Equal(t, "too many login attempts", decode(t, resp)["error"])

	user, err := s.repo.GetByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, user.FailedLoginAttempts, "throttled requests never reach the account")
}

func TestLoginRateLimit_RetryAfterIsRemainingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ratelimit.NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s := newTestServer(t, ratelimit.NewRedisLimiter(client, 1, time.Minute, ""))
	s.register(t)

	assert.Equal(t, fiber.StatusOK, s.login(t, testPassword).StatusCode)
	mr.FastForward(20 * time.Second)

	resp := s.login(t, testPassword)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "40", resp.Header.Get("Retry-After"))
}

func TestGetUser_NonUUIDIsNotLookedUp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// no GetByID expectation: any repository call fails the test
	mockRepo := mocks.NewMockUserRepository(ctrl)
	logger, _ := logtest.NewNullLogger()
	tokens := service.NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	userService := service.NewUserService(mockRepo, tokens, &config.Config{}, service.WithLogger(logger))
	authHandler := handler.NewAuthHandler(userService, &config.Config{}, logger)

	app := handler.NewApp(&config.Config{}, logger)
	handler.RegisterRoutes(app, authHandler, nil, nil, logger)

	adminToken, err := tokens.SignAccess(adminID, []string{"user", "admin"}, "session-1")
	require.NoError(t, err)

	for _, id := range []string{"missing", "1", "3f1c2b9e-8a4d-4c1e-9b7a"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users/"+id, nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, id)
		assert.Equal(t, "User not found", decode(t, resp)["error"], id)
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockUserRepository(ctrl)
	logger, hook := logtest.NewNullLogger()
	userService := service.NewUserService(mockRepo, nil, &config.Config{}, service.WithLogger(logger))
	authHandler := handler.NewAuthHandler(userService, &config.Config{}, logger)

	app := handler.NewApp(&config.Config{}, logger)
	handler.RegisterRoutes(app, authHandler, nil, nil, logger)

	mockRepo.EXPECT().GetByEmail(gomock.Any(), testEmail).Return(nil, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	body, _ := json.Marshal(dto.RegisterInput{Email: testEmail, Password: testPassword})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "10.0.0.5")
	assert.Contains(t, string(raw), "Internal Server Error")

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Message == "request failed" {
			logged = true
		}
	}
	assert.True(t, logged)
}
