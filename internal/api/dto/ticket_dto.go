package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string                `json:"subject"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// TicketListQuery captures query filters for the staff list endpoint.
type TicketListQuery struct {
	Statuses        []domain.TicketStatus
	Priorities      []domain.TicketPriority
	Level           *int
	IncludeArchived bool
	Page            int
	PageSize        int
}

// TicketSummary response.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	Subject     string                `json:"subject"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	Level       int                   `json:"level"`
	Archived    bool                  `json:"archived"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	RequesterID string                `json:"requester_id"`
	Subject     string                `json:"subject"`
	Description string                `json:"description"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	Level       int                   `json:"level"`
	Archived    bool                  `json:"archived"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	ClosedAt    *time.Time            `json:"closed_at"`
}

// NewTicketSummary maps a domain ticket to the list representation.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:          t.ID,
		ExternalKey: t.ExternalKey,
		Subject:     t.Subject,
		Status:      t.Status,
		Priority:    t.Priority,
		Level:       t.Level,
		Archived:    t.Archived,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewTicketDetail maps a domain ticket to the detail representation.
func NewTicketDetail(t *domain.Ticket) TicketDetailResponse {
	return TicketDetailResponse{
		ID:          t.ID,
		ExternalKey: t.ExternalKey,
		RequesterID: t.RequesterID,
		Subject:     t.Subject,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		Level:       t.Level,
		Archived:    t.Archived,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ClosedAt:    t.ClosedAt,
	}
}
