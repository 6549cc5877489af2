package events

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket_created"
	EventTicketClosed      EventType = "ticket_closed"
	EventSolutionSent      EventType = "solution_sent"
	EventAttemptConfirmed  EventType = "attempt_confirmed"
	EventAttemptRejected   EventType = "attempt_rejected"
	EventTicketEscalated   EventType = "ticket_escalated"
	EventTicketDeescalated EventType = "ticket_deescalated"
	EventLiveAssistFlagged EventType = "live_assist_requested"
	EventDiagnosticsAsked  EventType = "diagnostics_requested"
	EventNewSolutionWanted EventType = "new_solution_requested"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	UserID  *string            `json:"user_id,omitempty"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services. Payload is one of the
// typed structs below; the envelope is only serialized at the persistence and
// transport boundaries.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Priority domain.TicketPriority `json:"priority"`
	Subject  string                `json:"subject"`
}

// SolutionSentPayload payload.
type SolutionSentPayload struct {
	SolutionID int64 `json:"solution_id"`
	AttemptID  int64 `json:"attempt_id"`
	AttemptNo  int   `json:"attempt_no"`
}

// AttemptConfirmedPayload payload.
type AttemptConfirmedPayload struct {
	SolutionID int64 `json:"solution_id"`
	AttemptID  int64 `json:"attempt_id"`
	AttemptNo  int   `json:"attempt_no"`
}

// AttemptRejectedPayload payload.
type AttemptRejectedPayload struct {
	SolutionID int64   `json:"solution_id"`
	AttemptID  int64   `json:"attempt_id"`
	AttemptNo  int     `json:"attempt_no"`
	Reason     *string `json:"reason,omitempty"`
}

// EscalatedPayload payload, shared by manual and policy-driven escalation.
type EscalatedPayload struct {
	FromLevel int    `json:"from_level"`
	ToLevel   int    `json:"to_level"`
	Reason    string `json:"reason,omitempty"`
}

// DeescalatedPayload payload.
type DeescalatedPayload struct {
	FromLevel int    `json:"from_level"`
	ToLevel   int    `json:"to_level"`
	Note      string `json:"note,omitempty"`
}

// LiveAssistPayload payload.
type LiveAssistPayload struct {
	AttemptNo int `json:"attempt_no"`
}

// DiagnosticsPayload payload.
type DiagnosticsPayload struct {
	AttemptNo int `json:"attempt_no"`
}
