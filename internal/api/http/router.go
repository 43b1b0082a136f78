package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-client/internal/api/http/handlers"
	"github.com/spec-kit/support-client/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Sessions       *handlers.SessionHandler
	Tickets        *handlers.TicketsHandler
	Agents         *handlers.AgentHandler
	AuthMiddleware *auth.AuthMiddleware
	RateLimiter    *RateLimiter
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	v1 := app.Group("/v1", cfg.AuthMiddleware.APIKey)
	v1.Post("/sessions", cfg.RateLimiter.Handle, cfg.Sessions.OpenSession)
	v1.Get("/branding", cfg.Sessions.Branding)
	v1.Get("/attachments/:id", cfg.Tickets.GetAttachment)

	sandbox := v1.Group("/sandbox")
	sandbox.Post("/tickets/:id/replies", cfg.Agents.Reply)
	sandbox.Put("/tickets/:id/state", cfg.Agents.SetState)
	sandbox.Put("/branding", cfg.Agents.SetBranding)

	customer := v1.Group("", cfg.AuthMiddleware.Handle, auth.RequireCustomer(), cfg.RateLimiter.Handle)
	customer.Patch("/customer", cfg.Sessions.UpdateCustomer)
	customer.Put("/device", cfg.Sessions.UpdateDevice)
	customer.Post("/tickets", cfg.Tickets.CreateTicket)
	customer.Get("/tickets", cfg.Tickets.ListTickets)
	customer.Get("/tickets/:id", cfg.Tickets.GetTicket)
	customer.Post("/tickets/:id/messages", cfg.Tickets.AddMessage)
	customer.Post("/tickets/:id/read", cfg.Tickets.MarkRead)
}
