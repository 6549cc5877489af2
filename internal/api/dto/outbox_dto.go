package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// OutboxMessageResponse is the operator view of a queued notification. The
// body is omitted from list responses to keep payloads small.
type OutboxMessageResponse struct {
	ID        int64               `json:"id"`
	TicketID  *string             `json:"ticket_id"`
	To        string              `json:"to"`
	Subject   string              `json:"subject"`
	Status    domain.OutboxStatus `json:"status"`
	Error     *string             `json:"error"`
	CreatedAt time.Time           `json:"created_at"`
	SentAt    *time.Time          `json:"sent_at"`
}

// NewOutboxMessageResponse maps a domain outbox message.
func NewOutboxMessageResponse(m *domain.OutboxMessage) OutboxMessageResponse {
	return OutboxMessageResponse{
		ID:        m.ID,
		TicketID:  m.TicketID,
		To:        m.To,
		Subject:   m.Subject,
		Status:    m.Status,
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
		SentAt:    m.SentAt,
	}
}
