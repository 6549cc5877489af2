package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/support-desk/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestNextAction(t *testing.T) {
	tests := []struct {
		name      string
		priority  domain.TicketPriority
		level     int
		attemptNo int
		reason    *string
		want      Action
	}{
		{
			name:      "no permissions fast path",
			priority:  domain.TicketPriorityLow,
			level:     1,
			attemptNo: 1,
			reason:    strPtr(domain.RejectionReasonNoPermissions),
			want:      Action{Kind: ActionEscalate, ToLevel: 2},
		},
		{
			name:      "needs admin access fast path keeps higher level",
			priority:  domain.TicketPriorityLow,
			level:     3,
			attemptNo: 2,
			reason:    strPtr(domain.RejectionReasonNeedsAdminAccess),
			want:      Action{Kind: ActionEscalate, ToLevel: 3},
		},
		{
			name:      "free text reason does not trigger fast path",
			priority:  domain.TicketPriorityLow,
			level:     1,
			attemptNo: 1,
			reason:    strPtr("did not help"),
			want:      Action{Kind: ActionCollectDiagnostics},
		},
		{
			name:      "high priority escalates on first rejection",
			priority:  domain.TicketPriorityHigh,
			level:     1,
			attemptNo: 1,
			want:      Action{Kind: ActionEscalate, ToLevel: 2},
		},
		{
			name:      "urgent priority escalates too",
			priority:  domain.TicketPriorityUrgent,
			level:     2,
			attemptNo: 1,
			want:      Action{Kind: ActionEscalate, ToLevel: 2},
		},
		{
			name:      "first rejection collects diagnostics",
			priority:  domain.TicketPriorityMedium,
			level:     1,
			attemptNo: 1,
			want:      Action{Kind: ActionCollectDiagnostics},
		},
		{
			name:      "second rejection wants a new solution",
			priority:  domain.TicketPriorityMedium,
			level:     1,
			attemptNo: 2,
			want:      Action{Kind: ActionNewSolution},
		},
		{
			name:      "third rejection escalates",
			priority:  domain.TicketPriorityLow,
			level:     1,
			attemptNo: 3,
			want:      Action{Kind: ActionEscalate, ToLevel: 2},
		},
		{
			name:      "fourth rejection flags live assist",
			priority:  domain.TicketPriorityLow,
			level:     2,
			attemptNo: 4,
			want:      Action{Kind: ActionLiveAssist},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NextAction(tc.priority, tc.level, tc.attemptNo, tc.reason)
			assert.Equal(t, tc.want, got)
		})
	}
}
