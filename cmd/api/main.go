package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-sla-engine/internal/api/http"
	"github.com/spec-kit/ticket-sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sla-engine/internal/auth"
	"github.com/spec-kit/ticket-sla-engine/internal/bootstrap"
	"github.com/spec-kit/ticket-sla-engine/internal/config"
	"github.com/spec-kit/ticket-sla-engine/internal/observability"
	"github.com/spec-kit/ticket-sla-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer components.Close()

	stopNotifications := worker.StartNotificationWorker(ctx, components.Notifications, components.Dispatcher)
	if cfg.Retention.Enabled {
		go worker.RunRetention(ctx, components.Retention, cfg.Retention.Interval(), logger)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, 0)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, components.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, components.HealthChecks()),
		Tickets:        handlers.NewTicketsHandler(components.Tickets, components.Assignments),
		Policies:       handlers.NewPoliciesHandler(components.Policies),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, components.Users),
		Gatherer:       components.Registry,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	stopNotifications()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
