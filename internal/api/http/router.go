package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lastwayz/ticketd/internal/api/http/handlers"
	"github.com/lastwayz/ticketd/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Lifecycle operations require a staff
// token; schedule and announcement management require an admin token.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireStaff())
	tickets.Post("", cfg.Tickets.Create)
	tickets.Post("/close", cfg.Tickets.Close)
	// force-close targets an arbitrary channel id; the close path is identical.
	tickets.Post("/force-close", cfg.Tickets.Close)
	tickets.Post("/participants", cfg.Tickets.AddParticipant)
	tickets.Post("/notify", cfg.Tickets.Notify)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Post("/schedule", cfg.Admin.ToggleSchedule)
	admin.Get("/stats", cfg.Admin.Stats)
	admin.Post("/entry-message", cfg.Admin.AnnounceEntry)
}
