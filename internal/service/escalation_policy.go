package service

import "github.com/spec-kit/support-desk/internal/domain"

// ActionKind enumerates what the policy wants to happen next.
type ActionKind string

const (
	ActionCollectDiagnostics ActionKind = "COLLECT_DIAGNOSTICS"
	ActionNewSolution        ActionKind = "NEW_SOLUTION"
	ActionEscalate           ActionKind = "ESCALATE"
	ActionLiveAssist         ActionKind = "LIVE_ASSIST"
)

// Action is the policy's decision. ToLevel is set only for ActionEscalate.
type Action struct {
	Kind    ActionKind
	ToLevel int
}

// NextAction maps the state of a just-rejected attempt to the next step.
// Pure function; rules are evaluated in order.
func NextAction(priority domain.TicketPriority, level, attemptNo int, rejectionReason *string) Action {
	if rejectionReason != nil {
		switch *rejectionReason {
		case domain.RejectionReasonNoPermissions, domain.RejectionReasonNeedsAdminAccess:
			return Action{Kind: ActionEscalate, ToLevel: maxLevel2(level)}
		}
	}
	if priority.HighUrgency() && attemptNo >= 1 {
		return Action{Kind: ActionEscalate, ToLevel: maxLevel2(level)}
	}
	switch attemptNo {
	case 1:
		return Action{Kind: ActionCollectDiagnostics}
	case 2:
		return Action{Kind: ActionNewSolution}
	case 3:
		return Action{Kind: ActionEscalate, ToLevel: maxLevel2(level)}
	}
	// Safety cap against infinite attempt loops.
	return Action{Kind: ActionLiveAssist}
}

func maxLevel2(level int) int {
	if level > 2 {
		return level
	}
	return 2
}
