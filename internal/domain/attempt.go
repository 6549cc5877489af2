package domain

import "time"

// AttemptOutcome is the terminal state of a resolution attempt.
type AttemptOutcome string

const (
	AttemptOutcomePending   AttemptOutcome = "PENDING"
	AttemptOutcomeConfirmed AttemptOutcome = "CONFIRMED"
	AttemptOutcomeRejected  AttemptOutcome = "REJECTED"
)

// Rejection reasons with dedicated escalation handling. Any other reason text
// is carried through verbatim.
const (
	RejectionReasonNoPermissions    = "no_permissions"
	RejectionReasonNeedsAdminAccess = "needs_admin_access"
)

// ResolutionAttempt is one proposed-solution send cycle awaiting user
// confirmation. Per ticket, attempt numbers form a gapless ascending sequence
// starting at 1 and at most one attempt may be pending at any time.
type ResolutionAttempt struct {
	ID              int64
	TicketID        string
	SolutionID      int64
	AttemptNo       int
	Outcome         AttemptOutcome
	RejectionReason *string
	SentAt          time.Time
	ClosedAt        *time.Time
}

// Settled reports whether the attempt has reached a terminal outcome.
func (a *ResolutionAttempt) Settled() bool {
	return a.Outcome != AttemptOutcomePending
}
