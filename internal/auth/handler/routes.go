package handler

import (
	"errors"

	"github.com/AnthoniusHendriyanto/auth-session/config"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/dto"
	"github.com/AnthoniusHendriyanto/auth-session/internal/ratelimit"
	authconstant "github.com/AnthoniusHendriyanto/auth-session/pkg/constant"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewApp builds the fiber app with the global middleware stack.
func NewApp(cfg *config.Config, logger *logrus.Logger) *fiber.App {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app := fiber.New(fiber.Config{
		AppName:      "auth-session",
		ErrorHandler: errorHandler(logger),
	})

	origin := cfg.CORSOrigin
	if origin == "" {
		origin = config.DefaultCORSOrigin
	}

	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: origin,
		// fiber refuses credentials together with a wildcard origin
		AllowCredentials: origin != "*",
	}))
	app.Use(RequestLogger(logger))

	return app
}

func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			logger.WithError(err).Error("unhandled error")
		}

		return c.Status(code).JSON(dto.ErrorResponse{Error: message})
	}
}

// RegisterRoutes mounts the API. A nil limiter disables login throttling and
// a nil gatherer omits /metrics.
func RegisterRoutes(app *fiber.App, h *AuthHandler, limiter ratelimit.Limiter, gatherer prometheus.Gatherer, logger *logrus.Logger) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "OK"})
	})
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	loginHandlers := []fiber.Handler{h.Login}
	if limiter != nil {
		loginHandlers = append([]fiber.Handler{LoginRateLimit(limiter, logger)}, loginHandlers...)
	}

	api := app.Group("/api/v1")
	api.Post("/register", h.Register)
	api.Post("/login", loginHandlers...)
	api.Post("/refresh", h.Refresh)
	api.Post("/logout", h.Logout)
	api.Delete("/session", h.Logout)

	api.Get("/me", h.RequireAuth, h.Me)

	// Admin-only endpoints
	admin := api.Group("/admin", h.RequireAuth, h.RequireRole(authconstant.AdminRole))
	admin.Get("/users/:id", h.GetUser)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "Not Found"})
	})
}
