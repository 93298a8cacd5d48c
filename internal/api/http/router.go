package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/leanrobert/telegram-jira-bot/internal/api/http/handlers"
	"github.com/leanrobert/telegram-jira-bot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Subscriptions  *handlers.SubscriptionsHandler
	Reconcile      *handlers.ReconcileHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	subscriptions := protected.Group("/subscriptions")
	subscriptions.Get("/:chatID", cfg.Subscriptions.Get)
	subscriptions.Post("/:chatID/enable", cfg.Subscriptions.Enable)
	subscriptions.Post("/:chatID/disable", cfg.Subscriptions.Disable)

	reconcile := protected.Group("/reconcile")
	reconcile.Post("/", cfg.Reconcile.Run)
	reconcile.Get("/unsent", cfg.Reconcile.Unsent)
}
