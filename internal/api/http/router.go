package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/ticket-sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sla-engine/internal/auth"
	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Policies       *handlers.PoliciesHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Get("/:id/audit", cfg.Tickets.GetAuditTrail)
	tickets.Post("/:id/assign", auth.RequireRole(domain.RoleAgent), cfg.Tickets.AssignTicket)
	tickets.Post("/:id/status", auth.RequireRole(domain.RoleAgent), cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/archive", auth.RequireRole(domain.RoleTeamLead), cfg.Tickets.ArchiveTicket)
	tickets.Post("/:id/restore", auth.RequireRole(domain.RoleTeamLead), cfg.Tickets.RestoreTicket)

	api.Get("/sla-policies", auth.RequireRole(domain.RoleAgent), cfg.Policies.ListPolicies)
}
