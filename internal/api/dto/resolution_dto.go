package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// ProposeSolutionRequest payload for sending a proposed fix.
type ProposeSolutionRequest struct {
	Text string `json:"text"`
}

// ProposeSolutionResponse returns the recorded solution and attempt.
type ProposeSolutionResponse struct {
	Solution SolutionResponse `json:"solution"`
	Attempt  AttemptResponse  `json:"attempt"`
}

// SolutionResponse representation of a proposed fix.
type SolutionResponse struct {
	ID          int64                 `json:"id"`
	TicketID    string                `json:"ticket_id"`
	Text        string                `json:"text"`
	Fingerprint string                `json:"fingerprint"`
	Status      domain.SolutionStatus `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	SentAt      *time.Time            `json:"sent_at"`
	ConfirmedAt *time.Time            `json:"confirmed_at"`
}

// AttemptResponse representation of one confirmation cycle.
type AttemptResponse struct {
	ID              int64                 `json:"id"`
	TicketID        string                `json:"ticket_id"`
	SolutionID      int64                 `json:"solution_id"`
	AttemptNo       int                   `json:"attempt_no"`
	Outcome         domain.AttemptOutcome `json:"outcome"`
	RejectionReason *string               `json:"rejection_reason"`
	SentAt          time.Time             `json:"sent_at"`
	ClosedAt        *time.Time            `json:"closed_at"`
}

// EscalateRequest payload for manual escalation.
type EscalateRequest struct {
	ToLevel int    `json:"to_level"`
	Note    string `json:"note"`
}

// DeescalateRequest payload. De-escalation always moves one level down, so
// only the note is carried.
type DeescalateRequest struct {
	Note string `json:"note"`
}

// EscalationEntryResponse is one row of the per-ticket audit trail.
type EscalationEntryResponse struct {
	ID        string                     `json:"id"`
	ActorType domain.SubjectType         `json:"actor_type"`
	ActorID   *string                    `json:"actor_id"`
	Direction domain.EscalationDirection `json:"direction"`
	OldLevel  int                        `json:"old_level"`
	NewLevel  int                        `json:"new_level"`
	Note      string                     `json:"note"`
	CreatedAt time.Time                  `json:"created_at"`
}

// NewSolutionResponse maps a domain solution.
func NewSolutionResponse(s *domain.Solution) SolutionResponse {
	return SolutionResponse{
		ID:          s.ID,
		TicketID:    s.TicketID,
		Text:        s.Text,
		Fingerprint: s.Fingerprint,
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
		SentAt:      s.SentAt,
		ConfirmedAt: s.ConfirmedAt,
	}
}

// NewAttemptResponse maps a domain attempt.
func NewAttemptResponse(a *domain.ResolutionAttempt) AttemptResponse {
	return AttemptResponse{
		ID:              a.ID,
		TicketID:        a.TicketID,
		SolutionID:      a.SolutionID,
		AttemptNo:       a.AttemptNo,
		Outcome:         a.Outcome,
		RejectionReason: a.RejectionReason,
		SentAt:          a.SentAt,
		ClosedAt:        a.ClosedAt,
	}
}

// NewEscalationEntryResponse maps an audit entry.
func NewEscalationEntryResponse(e *domain.EscalationEntry) EscalationEntryResponse {
	return EscalationEntryResponse{
		ID:        e.ID,
		ActorType: e.ActorType,
		ActorID:   e.ActorID,
		Direction: e.Direction,
		OldLevel:  e.OldLevel,
		NewLevel:  e.NewLevel,
		Note:      e.Note,
		CreatedAt: e.CreatedAt,
	}
}
