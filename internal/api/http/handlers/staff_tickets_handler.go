package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// StaffTicketsHandler handles the staff resolution surface: ticket reads,
// proposing fixes, escalation and the audit trail.
type StaffTicketsHandler struct {
	tickets    *service.TicketService
	workflow   *service.WorkflowService
	ledger     *service.ResolutionLedger
	escalation *service.EscalationService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(tickets *service.TicketService, workflow *service.WorkflowService, ledger *service.ResolutionLedger, escalation *service.EscalationService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: tickets, workflow: workflow, ledger: ledger, escalation: escalation}
}

// ListTickets GET /staff/tickets.
func (h *StaffTicketsHandler) ListTickets(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	tickets, err := h.tickets.ListStaffTickets(c.Context(), parseStaffTicketFilter(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /staff/tickets/:id.
func (h *StaffTicketsHandler) GetTicket(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// ProposeSolution POST /staff/tickets/:id/solutions. Runs the send gate,
// records the attempt and mails the confirmation links to the requester.
func (h *StaffTicketsHandler) ProposeSolution(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ProposeSolutionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperrors.NewValidationError("text required", nil)
	}

	result, err := h.workflow.ProposeAndSend(c.Context(), c.Params("id"), req.Text, staff)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ProposeSolutionResponse{
		Solution: dto.NewSolutionResponse(result.Solution),
		Attempt:  dto.NewAttemptResponse(result.Attempt),
	}})
}

// ListAttempts GET /staff/tickets/:id/attempts.
func (h *StaffTicketsHandler) ListAttempts(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	attempts, err := h.ledger.ListAttempts(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AttemptResponse, 0, len(attempts))
	for i := range attempts {
		items = append(items, dto.NewAttemptResponse(&attempts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Escalate POST /staff/tickets/:id/escalate.
func (h *StaffTicketsHandler) Escalate(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.escalation.Escalate(c.Context(), staff, c.Params("id"), req.ToLevel, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// Deescalate POST /staff/tickets/:id/deescalate.
func (h *StaffTicketsHandler) Deescalate(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.DeescalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.escalation.Deescalate(c.Context(), staff, c.Params("id"), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// EscalationHistory GET /staff/tickets/:id/escalations.
func (h *StaffTicketsHandler) EscalationHistory(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	entries, err := h.escalation.History(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.EscalationEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewEscalationEntryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Archive POST /staff/tickets/:id/archive.
func (h *StaffTicketsHandler) Archive(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	ticket, err := h.tickets.ArchiveTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

func staffPrincipal(c *fiber.Ctx) (*domain.StaffMember, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	return principal.Staff, nil
}

func parseStaffTicketFilter(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if levelStr := c.Query("level"); levelStr != "" {
		if level, err := strconv.Atoi(levelStr); err == nil {
			filter.Level = &level
		}
	}
	filter.IncludeArchived = c.QueryBool("include_archived")
	filter.Limit, filter.Offset = parsePagination(c)
	return filter
}
