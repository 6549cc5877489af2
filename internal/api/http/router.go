package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Staff          *handlers.StaffHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Confirm        *handlers.ConfirmHandler
	Outbox         *handlers.OutboxHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/staff/login", cfg.Staff.Login)

	// Confirmation links carry their own capability; no bearer auth here.
	app.Get("/confirm", cfg.Confirm.Redeem)
	app.Post("/confirm", cfg.Confirm.Redeem)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireUser())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)

	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	staff.Get("/tickets", cfg.StaffTickets.ListTickets)
	staff.Get("/tickets/:id", cfg.StaffTickets.GetTicket)
	staff.Post("/tickets/:id/solutions", cfg.StaffTickets.ProposeSolution)
	staff.Get("/tickets/:id/attempts", cfg.StaffTickets.ListAttempts)
	staff.Post("/tickets/:id/escalate", cfg.StaffTickets.Escalate)
	staff.Post("/tickets/:id/deescalate", cfg.StaffTickets.Deescalate)
	staff.Get("/tickets/:id/escalations", cfg.StaffTickets.EscalationHistory)

	leads := staff.Group("", auth.RequireStaffRole(domain.StaffRoleTeamLead, domain.StaffRoleManager))
	leads.Post("/tickets/:id/archive", cfg.StaffTickets.Archive)
	leads.Get("/outbox", cfg.Outbox.List)
	leads.Post("/outbox/:id/retry", cfg.Outbox.Retry)
}
