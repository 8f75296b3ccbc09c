package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnthoniusHendriyanto/auth-session/config"
	"github.com/AnthoniusHendriyanto/auth-session/db"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/handler"
	repo "github.com/AnthoniusHendriyanto/auth-session/internal/auth/repository/postgres"
	"github.com/AnthoniusHendriyanto/auth-session/internal/auth/service"
	"github.com/AnthoniusHendriyanto/auth-session/internal/metrics"
	"github.com/AnthoniusHendriyanto/auth-session/internal/ratelimit"
	"github.com/AnthoniusHendriyanto/auth-session/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer dbPool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	userRepo := repo.NewPostgresRepository(dbPool)
	tokenService := service.NewTokenService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	userService := service.NewUserService(userRepo, tokenService, cfg,
		service.WithMetrics(metrics.NewAuthMetrics(registry)),
		service.WithLogger(log),
	)
	authHandler := handler.NewAuthHandler(userService, cfg, log)

	limiter, closeLimiter := newLoginLimiter(ctx, cfg, log)
	defer closeLimiter()

	app := handler.NewApp(cfg, log)
	handler.RegisterRoutes(app, authHandler, limiter, registry, log)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
		}
	}()

	log.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.Env}).Info("auth-session listening")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

// newLoginLimiter prefers a Redis limiter shared across instances and falls
// back to an in-process one when REDIS_URL is unset or unreachable. The
// returned func releases the Redis connection, if any.
func newLoginLimiter(ctx context.Context, cfg *config.Config, log *logrus.Logger) (ratelimit.Limiter, func()) {
	if cfg.LoginRateLimit <= 0 {
		return nil, func() {}
	}
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			limiter := ratelimit.NewRedisLimiter(client, cfg.LoginRateLimit, ratelimit.DefaultWindow, "")
			return limiter, func() {
				if err := limiter.Close(); err != nil {
					log.WithError(err).Warn("closing redis client")
				}
			}
		}
		log.WithError(err).Warn("redis unavailable, using in-process login limiter")
	}
	return ratelimit.NewLocalLimiter(cfg.LoginRateLimit, ratelimit.DefaultWindow), func() {}
}
