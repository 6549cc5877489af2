package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// OutboxHandler is the operator surface for the notification queue.
type OutboxHandler struct {
	outbox repository.OutboxRepository
	redis  *persistence.Redis
}

// NewOutboxHandler constructs handler.
func NewOutboxHandler(outbox repository.OutboxRepository, redis *persistence.Redis) *OutboxHandler {
	return &OutboxHandler{outbox: outbox, redis: redis}
}

// List GET /staff/outbox?status=PENDING.
func (h *OutboxHandler) List(c *fiber.Ctx) error {
	status := domain.OutboxStatus(c.Query("status", string(domain.OutboxStatusPending)))
	switch status {
	case domain.OutboxStatusPending, domain.OutboxStatusClaimed, domain.OutboxStatusSent, domain.OutboxStatusFailed:
	default:
		return apperrors.NewValidationError("unknown outbox status", map[string]any{"status": status})
	}

	limit, offset := parsePagination(c)
	messages, err := h.outbox.ListByStatus(c.Context(), status, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.OutboxMessageResponse, 0, len(messages))
	for i := range messages {
		items = append(items, dto.NewOutboxMessageResponse(&messages[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Retry POST /staff/outbox/:id/retry. Re-queues a failed message and nudges
// the workers.
func (h *OutboxHandler) Retry(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("invalid message id", nil)
	}
	if err := h.outbox.Retry(c.Context(), id); err != nil {
		return err
	}
	h.redis.NotifyOutbox(c.Context())

	msg, err := h.outbox.GetByID(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewOutboxMessageResponse(msg)})
}
