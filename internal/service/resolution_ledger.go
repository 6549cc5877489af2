package service

import (
	"context"
	"errors"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/textutil"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// Gate refusal messages surfaced to callers as user-correctable conflicts.
const (
	gateReasonPending    = "previous solution still pending"
	gateReasonTooSimilar = "too similar to last rejected fix"
)

// ResolutionLedger owns attempt gating, numbering and outcome recording for a
// ticket's proposed solutions. Numbering itself happens inside the attempt
// repository's transaction; the ledger adds the policy gate on top.
type ResolutionLedger struct {
	attempts repository.AttemptRepository
}

// NewResolutionLedger constructs the ledger.
func NewResolutionLedger(attempts repository.AttemptRepository) *ResolutionLedger {
	return &ResolutionLedger{attempts: attempts}
}

// CheckSendGate refuses a new proposal while an attempt is pending, or when
// the text is not materially different from the last rejected solution.
func (l *ResolutionLedger) CheckSendGate(ctx context.Context, ticketID, text string) error {
	pending, err := l.attempts.HasPending(ctx, ticketID)
	if err != nil {
		return err
	}
	if pending {
		return apperrors.NewConflict(gateReasonPending, nil)
	}

	lastRejected, err := l.attempts.LastRejectedSolutionText(ctx, ticketID)
	if err != nil {
		return err
	}
	if lastRejected != nil && !textutil.MateriallyDifferent(text, *lastRejected) {
		return apperrors.NewConflict(gateReasonTooSimilar, nil)
	}
	return nil
}

// CreateAttempt allocates the next attempt number and records a pending
// attempt. The repository enforces the pending gate again inside its
// transaction, so losing a race surfaces as a conflict rather than corrupt
// numbering.
func (l *ResolutionLedger) CreateAttempt(ctx context.Context, ticketID string, solutionID int64) (*domain.ResolutionAttempt, error) {
	attempt, err := l.attempts.Create(ctx, ticketID, solutionID)
	if errors.Is(err, repository.ErrPendingAttempt) {
		return nil, apperrors.NewConflict(gateReasonPending, nil)
	}
	return attempt, err
}

// Settle transitions pending -> confirmed|rejected exactly once.
// ErrAlreadySettled passes through untranslated; redemption treats it as a
// prior success, not a failure.
func (l *ResolutionLedger) Settle(ctx context.Context, attemptID int64, outcome domain.AttemptOutcome, reason *string) error {
	return l.attempts.Settle(ctx, attemptID, outcome, reason)
}

// Discard removes a still-pending attempt. Used to unwind a send whose
// later steps failed, so the ticket does not stay blocked behind an attempt
// no confirmation mail was queued for.
func (l *ResolutionLedger) Discard(ctx context.Context, attemptID int64) error {
	return l.attempts.DeletePending(ctx, attemptID)
}

// Reopen returns a just-settled attempt to pending. Used to unwind a
// redemption whose follow-up writes failed; the confirmation link becomes
// redeemable again.
func (l *ResolutionLedger) Reopen(ctx context.Context, attemptID int64) error {
	return l.attempts.Reopen(ctx, attemptID)
}

// GetAttempt loads an attempt by id.
func (l *ResolutionLedger) GetAttempt(ctx context.Context, attemptID int64) (*domain.ResolutionAttempt, error) {
	return l.attempts.GetByID(ctx, attemptID)
}

// HasPendingAttempt reports whether the ticket has an unsettled attempt.
func (l *ResolutionLedger) HasPendingAttempt(ctx context.Context, ticketID string) (bool, error) {
	return l.attempts.HasPending(ctx, ticketID)
}

// LastRejectedSolutionText returns the most recent rejected solution's text.
func (l *ResolutionLedger) LastRejectedSolutionText(ctx context.Context, ticketID string) (*string, error) {
	return l.attempts.LastRejectedSolutionText(ctx, ticketID)
}

// ListAttempts returns all attempts for a ticket ordered by attempt number.
func (l *ResolutionLedger) ListAttempts(ctx context.Context, ticketID string) ([]domain.ResolutionAttempt, error) {
	return l.attempts.ListByTicket(ctx, ticketID)
}
