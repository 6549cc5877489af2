package domain

import "time"

// EscalationDirection records which way a manual transition moved the ticket.
type EscalationDirection string

const (
	EscalationUp   EscalationDirection = "ESCALATED"
	EscalationDown EscalationDirection = "DE_ESCALATED"
)

// EscalationEntry is an immutable audit record of a level transition.
// Entries are append-only and never mutated.
type EscalationEntry struct {
	ID        string
	TicketID  string
	ActorType SubjectType
	ActorID   *string
	Direction EscalationDirection
	OldLevel  int
	NewLevel  int
	Note      string
	CreatedAt time.Time
}
