package domain

import "time"

// SolutionStatus enumerates proposal lifecycle states.
type SolutionStatus string

const (
	SolutionStatusDraft     SolutionStatus = "DRAFT"
	SolutionStatusSent      SolutionStatus = "SENT_FOR_CONFIRMATION"
	SolutionStatusConfirmed SolutionStatus = "CONFIRMED"
	SolutionStatusRejected  SolutionStatus = "REJECTED"
)

// Solution is a proposed fix for a ticket. The fingerprint is a content hash
// of the normalized text; two solutions with the same fingerprint on the same
// ticket are duplicates.
type Solution struct {
	ID             int64
	TicketID       string
	ProposerID     *string
	Text           string
	NormalizedText string
	Fingerprint    string
	Status         SolutionStatus
	CreatedAt      time.Time
	SentAt         *time.Time
	ConfirmedAt    *time.Time
}
