package domain

import "time"

// OutboxStatus tracks delivery state of a queued notification.
// Transitions: pending -> claimed -> sent | failed. A failed message only
// re-enters pending through an explicit operator retry.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusClaimed OutboxStatus = "CLAIMED"
	OutboxStatusSent    OutboxStatus = "SENT"
	OutboxStatusFailed  OutboxStatus = "FAILED"
)

// OutboxMessage is a durably queued outbound notification. Rows are retained
// indefinitely for audit.
type OutboxMessage struct {
	ID        int64
	TicketID  *string
	To        string
	CC        []string
	Subject   string
	Body      string
	Status    OutboxStatus
	Error     *string
	CreatedAt time.Time
	SentAt    *time.Time
}
