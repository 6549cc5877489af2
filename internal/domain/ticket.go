package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusEscalated   TicketStatus = "ESCALATED"
	TicketStatusDeescalated TicketStatus = "DE_ESCALATED"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// HighUrgency reports whether a priority triggers the fast escalation path.
func (p TicketPriority) HighUrgency() bool {
	return p == TicketPriorityHigh || p == TicketPriorityUrgent
}

// Support tier bounds. Level 1 is first-line, MaxLevel is the manager tier.
const (
	MinLevel = 1
	MaxLevel = 4
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	ExternalKey string
	RequesterID string
	Subject     string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	Level       int
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}
