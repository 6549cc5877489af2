package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/token"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

type fakeTicketRepo struct {
	mu        sync.Mutex
	tickets   map[string]domain.Ticket
	updateErr error // returned once by Update, then cleared
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (f *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = fmt.Sprintf("tck-%d", len(f.tickets)+1)
	}
	f.tickets[ticket.ID] = *ticket
	return nil
}

func (f *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		err := f.updateErr
		f.updateErr = nil
		return err
	}
	if _, ok := f.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	f.tickets[ticket.ID] = *ticket
	return nil
}

func (f *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := ticket
	return &copy, nil
}

func (f *fakeTicketRepo) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ticket := range f.tickets {
		if ticket.ExternalKey == key {
			copy := ticket
			return &copy, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range f.tickets {
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		if !filter.IncludeArchived && ticket.Archived {
			continue
		}
		out = append(out, ticket)
	}
	return out, nil
}

type fakeUserRepo struct {
	users  map[string]domain.User
	getErr error // returned once by GetByID, then cleared
}

func (f *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if f.getErr != nil {
		err := f.getErr
		f.getErr = nil
		return nil, err
	}
	user, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := user
	return &copy, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			copy := user
			return &copy, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type fakeSolutionRepo struct {
	mu        sync.Mutex
	nextID    int64
	solutions map[int64]domain.Solution
}

func newFakeSolutionRepo() *fakeSolutionRepo {
	return &fakeSolutionRepo{solutions: make(map[int64]domain.Solution)}
}

func (f *fakeSolutionRepo) Create(ctx context.Context, solution *domain.Solution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	solution.ID = f.nextID
	f.solutions[solution.ID] = *solution
	return nil
}

func (f *fakeSolutionRepo) GetByID(ctx context.Context, id int64) (*domain.Solution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	solution, ok := f.solutions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := solution
	return &copy, nil
}

func (f *fakeSolutionRepo) FindByFingerprint(ctx context.Context, ticketID, fingerprint string) (*domain.Solution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.Solution
	for id := int64(1); id <= f.nextID; id++ {
		solution, ok := f.solutions[id]
		if ok && solution.TicketID == ticketID && solution.Fingerprint == fingerprint {
			copy := solution
			latest = &copy
		}
	}
	return latest, nil
}

func (f *fakeSolutionRepo) UpdateStatus(ctx context.Context, id int64, status domain.SolutionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	solution, ok := f.solutions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	solution.Status = status
	f.solutions[id] = solution
	return nil
}

type fakeAttemptRepo struct {
	mu        sync.Mutex
	nextID    int64
	attempts  map[int64]domain.ResolutionAttempt
	solutions *fakeSolutionRepo
}

func newFakeAttemptRepo(solutions *fakeSolutionRepo) *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[int64]domain.ResolutionAttempt), solutions: solutions}
}

func (f *fakeAttemptRepo) Create(ctx context.Context, ticketID string, solutionID int64) (*domain.ResolutionAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maxNo := 0
	for _, attempt := range f.attempts {
		if attempt.TicketID != ticketID {
			continue
		}
		if attempt.Outcome == domain.AttemptOutcomePending {
			return nil, repository.ErrPendingAttempt
		}
		if attempt.AttemptNo > maxNo {
			maxNo = attempt.AttemptNo
		}
	}
	f.nextID++
	attempt := domain.ResolutionAttempt{
		ID:         f.nextID,
		TicketID:   ticketID,
		SolutionID: solutionID,
		AttemptNo:  maxNo + 1,
		Outcome:    domain.AttemptOutcomePending,
	}
	f.attempts[attempt.ID] = attempt
	copy := attempt
	return &copy, nil
}

func (f *fakeAttemptRepo) GetByID(ctx context.Context, id int64) (*domain.ResolutionAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := attempt
	return &copy, nil
}

func (f *fakeAttemptRepo) HasPending(ctx context.Context, ticketID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, attempt := range f.attempts {
		if attempt.TicketID == ticketID && attempt.Outcome == domain.AttemptOutcomePending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAttemptRepo) Settle(ctx context.Context, id int64, outcome domain.AttemptOutcome, reason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if attempt.Outcome != domain.AttemptOutcomePending {
		return repository.ErrAlreadySettled
	}
	attempt.Outcome = outcome
	attempt.RejectionReason = reason
	f.attempts[id] = attempt
	return nil
}

func (f *fakeAttemptRepo) DeletePending(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok || attempt.Outcome != domain.AttemptOutcomePending {
		return pgx.ErrNoRows
	}
	delete(f.attempts, id)
	return nil
}

func (f *fakeAttemptRepo) Reopen(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok || attempt.Outcome == domain.AttemptOutcomePending {
		return pgx.ErrNoRows
	}
	attempt.Outcome = domain.AttemptOutcomePending
	attempt.RejectionReason = nil
	attempt.ClosedAt = nil
	f.attempts[id] = attempt
	return nil
}

func (f *fakeAttemptRepo) LastRejectedSolutionText(ctx context.Context, ticketID string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.ResolutionAttempt
	for id := int64(1); id <= f.nextID; id++ {
		attempt, ok := f.attempts[id]
		if ok && attempt.TicketID == ticketID && attempt.Outcome == domain.AttemptOutcomeRejected {
			copy := attempt
			latest = &copy
		}
	}
	if latest == nil {
		return nil, nil
	}
	solution, err := f.solutions.GetByID(ctx, latest.SolutionID)
	if err != nil {
		return nil, err
	}
	return &solution.Text, nil
}

func (f *fakeAttemptRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.ResolutionAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ResolutionAttempt
	for id := int64(1); id <= f.nextID; id++ {
		if attempt, ok := f.attempts[id]; ok && attempt.TicketID == ticketID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

type fakeOutboxRepo struct {
	mu         sync.Mutex
	nextID     int64
	messages   map[int64]domain.OutboxMessage
	enqueueErr error // returned once by Enqueue, then cleared
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{messages: make(map[int64]domain.OutboxMessage)}
}

func (f *fakeOutboxRepo) Enqueue(ctx context.Context, msg *domain.OutboxMessage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		err := f.enqueueErr
		f.enqueueErr = nil
		return false, err
	}
	for _, existing := range f.messages {
		if existing.Status != domain.OutboxStatusPending {
			continue
		}
		sameTicket := (existing.TicketID == nil && msg.TicketID == nil) ||
			(existing.TicketID != nil && msg.TicketID != nil && *existing.TicketID == *msg.TicketID)
		if sameTicket && existing.To == msg.To && existing.Subject == msg.Subject && existing.Body == msg.Body {
			return false, nil
		}
	}
	f.nextID++
	msg.ID = f.nextID
	msg.Status = domain.OutboxStatusPending
	f.messages[msg.ID] = *msg
	return true, nil
}

func (f *fakeOutboxRepo) Claim(ctx context.Context, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var won []int64
	for id := int64(1); id <= f.nextID && len(won) < limit; id++ {
		msg, ok := f.messages[id]
		if ok && msg.Status == domain.OutboxStatusPending {
			msg.Status = domain.OutboxStatusClaimed
			f.messages[id] = msg
			won = append(won, id)
		}
	}
	return won, nil
}

func (f *fakeOutboxRepo) GetByID(ctx context.Context, id int64) (*domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := msg
	return &copy, nil
}

func (f *fakeOutboxRepo) MarkSent(ctx context.Context, id int64) error {
	return f.settle(id, domain.OutboxStatusSent, domain.OutboxStatusClaimed, nil)
}

func (f *fakeOutboxRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	return f.settle(id, domain.OutboxStatusFailed, domain.OutboxStatusClaimed, &reason)
}

func (f *fakeOutboxRepo) Retry(ctx context.Context, id int64) error {
	return f.settle(id, domain.OutboxStatusPending, domain.OutboxStatusFailed, nil)
}

func (f *fakeOutboxRepo) settle(id int64, to, from domain.OutboxStatus, errText *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok || msg.Status != from {
		return pgx.ErrNoRows
	}
	msg.Status = to
	msg.Error = errText
	f.messages[id] = msg
	return nil
}

func (f *fakeOutboxRepo) ListByStatus(ctx context.Context, status domain.OutboxStatus, limit, offset int) ([]domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OutboxMessage
	for id := int64(1); id <= f.nextID; id++ {
		if msg, ok := f.messages[id]; ok && msg.Status == status {
			out = append(out, msg)
		}
	}
	return out, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.EscalationEntry
}

func (f *fakeHistoryRepo) Create(ctx context.Context, entry *domain.EscalationEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeHistoryRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EscalationEntry
	for _, entry := range f.entries {
		if entry.TicketID == ticketID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type workflowFixture struct {
	tickets    *fakeTicketRepo
	users      *fakeUserRepo
	solutions  *fakeSolutionRepo
	attempts   *fakeAttemptRepo
	outbox     *fakeOutboxRepo
	history    *fakeHistoryRepo
	tokens     *token.Service
	ledger     *ResolutionLedger
	escalation *EscalationService
	workflow   *WorkflowService
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher()

	tickets := newFakeTicketRepo()
	users := &fakeUserRepo{users: map[string]domain.User{
		"usr-1": {ID: "usr-1", Name: "Dana", Email: "dana@example.com", Status: domain.UserStatusActive},
	}}
	solutions := newFakeSolutionRepo()
	attempts := newFakeAttemptRepo(solutions)
	outbox := newFakeOutboxRepo()
	history := &fakeHistoryRepo{}

	ledger := NewResolutionLedger(attempts)
	escalation := NewEscalationService(tickets, history, dispatcher)
	notifier := NewNotificationService(NotificationDependencies{
		OutboxRepo: outbox,
		TicketRepo: tickets,
		UserRepo:   users,
		Dispatcher: dispatcher,
		Redis:      nil,
		Logger:     logger,
	})
	notifier.RegisterHandlers()

	tokens := token.NewService("workflow-test-secret", 0)
	workflow := NewWorkflowService(WorkflowDependencies{
		TicketRepo:   tickets,
		UserRepo:     users,
		SolutionRepo: solutions,
		Ledger:       ledger,
		Escalation:   escalation,
		Tokens:       tokens,
		Notifier:     notifier,
		Dispatcher:   dispatcher,
		Confirm:      config.ConfirmConfig{Secret: "workflow-test-secret", BaseURL: "https://support.example.com"},
		Logger:       logger,
	})

	return &workflowFixture{
		tickets:    tickets,
		users:      users,
		solutions:  solutions,
		attempts:   attempts,
		outbox:     outbox,
		history:    history,
		tokens:     tokens,
		ledger:     ledger,
		escalation: escalation,
		workflow:   workflow,
	}
}

func (fx *workflowFixture) seedTicket(t *testing.T, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		ID:          "tck-1",
		ExternalKey: "TCK-0001",
		RequesterID: "usr-1",
		Subject:     "No internet",
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		Level:       domain.MinLevel,
	}
	require.NoError(t, fx.tickets.Create(context.Background(), ticket))
	return ticket
}

// pendingToken finds the confirmation token in the latest outbox mail via a
// fresh issue on the same triple, which verifies to the same reference.
func (fx *workflowFixture) issueToken(t *testing.T, result *ProposeResult) string {
	t.Helper()
	tok, err := fx.tokens.Issue(token.Ref{
		TicketID:   result.Attempt.TicketID,
		SolutionID: result.Solution.ID,
		AttemptID:  result.Attempt.ID,
	})
	require.NoError(t, err)
	return tok
}

func TestProposeAndSendRecordsAttemptAndMail(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Attempt.AttemptNo)
	assert.Equal(t, domain.AttemptOutcomePending, result.Attempt.Outcome)
	assert.Equal(t, domain.SolutionStatusSent, result.Solution.Status)

	pending, err := fx.outbox.ListByStatus(ctx, domain.OutboxStatusPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "dana@example.com", pending[0].To)
	assert.Contains(t, pending[0].Body, "Restart the router")
	assert.Contains(t, pending[0].Body, "https://support.example.com/confirm?token=")
	assert.Contains(t, pending[0].Body, "a=confirm")
	assert.Contains(t, pending[0].Body, "a=not_confirm")
}

func TestProposeAndSendRefusedWhilePending(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	_, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)

	_, err = fx.workflow.ProposeAndSend(ctx, "tck-1", "Replace the network cable", nil)
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "CONFLICT", domainErr.Code)
}

func TestProposeAndSendRefusesSimilarAfterRejection(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	first, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Please restart the router and wait two minutes", nil)
	require.NoError(t, err)

	_, err = fx.workflow.Redeem(ctx, fx.issueToken(t, first), RedeemReject, nil)
	require.NoError(t, err)

	// A near-identical resend is refused.
	_, err = fx.workflow.ProposeAndSend(ctx, "tck-1", "Please restart the router and wait two minutes!", nil)
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "CONFLICT", domainErr.Code)
	assert.Contains(t, strings.ToLower(domainErr.Message), "similar")

	// A materially different fix goes through as attempt two.
	second, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Update the network adapter driver and reboot the machine", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempt.AttemptNo)
}

func TestProposeAndSendRefusedOnClosedTicket(t *testing.T) {
	fx := newWorkflowFixture(t)
	ticket := fx.seedTicket(t, domain.TicketPriorityMedium)
	ticket.Status = domain.TicketStatusClosed
	require.NoError(t, fx.tickets.Update(context.Background(), ticket))

	_, err := fx.workflow.ProposeAndSend(context.Background(), "tck-1", "Restart the router", nil)
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
}

func TestRedeemConfirmResolvesTicket(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)
	tok := fx.issueToken(t, result)

	redeemed, err := fx.workflow.Redeem(ctx, tok, RedeemConfirm, nil)
	require.NoError(t, err)
	assert.True(t, redeemed.Ok)
	assert.True(t, redeemed.Confirmed)
	assert.Equal(t, "resolved", redeemed.Next)

	ticket, err := fx.tickets.GetByID(ctx, "tck-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)

	solution, err := fx.solutions.GetByID(ctx, result.Solution.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SolutionStatusConfirmed, solution.Status)

	// The confirmation notification went out to the requester.
	pending, err := fx.outbox.ListByStatus(ctx, domain.OutboxStatusPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Contains(t, pending[1].Subject, "resolved")
}

func TestRedeemIsIdempotent(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)
	tok := fx.issueToken(t, result)

	first, err := fx.workflow.Redeem(ctx, tok, RedeemConfirm, nil)
	require.NoError(t, err)
	require.True(t, first.Confirmed)

	// A second click on either link reports the recorded outcome.
	again, err := fx.workflow.Redeem(ctx, tok, RedeemReject, nil)
	require.NoError(t, err)
	assert.True(t, again.Ok)
	assert.True(t, again.Confirmed)
	assert.Equal(t, first.AttemptID, again.AttemptID)

	attempt, err := fx.attempts.GetByID(ctx, result.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptOutcomeConfirmed, attempt.Outcome)
}

func TestRedeemRejectHighPriorityEscalates(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityHigh)
	ctx := context.Background()

	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)

	redeemed, err := fx.workflow.Redeem(ctx, fx.issueToken(t, result), RedeemReject, nil)
	require.NoError(t, err)
	assert.True(t, redeemed.Ok)
	assert.False(t, redeemed.Confirmed)
	assert.Equal(t, "escalate:2", redeemed.Next)

	ticket, err := fx.tickets.GetByID(ctx, "tck-1")
	require.NoError(t, err)
	assert.Equal(t, 2, ticket.Level)
	assert.Equal(t, domain.TicketStatusEscalated, ticket.Status)

	entries, err := fx.history.ListByTicket(ctx, "tck-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SubjectTypeSystem, entries[0].ActorType)
	assert.Equal(t, 1, entries[0].OldLevel)
	assert.Equal(t, 2, entries[0].NewLevel)
}

func TestRedeemRejectFastPathOnPermissionReason(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityLow)
	ctx := context.Background()

	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)

	reason := domain.RejectionReasonNoPermissions
	redeemed, err := fx.workflow.Redeem(ctx, fx.issueToken(t, result), RedeemReject, &reason)
	require.NoError(t, err)
	assert.Equal(t, "escalate:2", redeemed.Next)

	attempt, err := fx.attempts.GetByID(ctx, result.Attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, attempt.RejectionReason)
	assert.Equal(t, reason, *attempt.RejectionReason)
}

func TestRedeemRejectFirstAttemptCollectsDiagnostics(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)

	redeemed, err := fx.workflow.Redeem(ctx, fx.issueToken(t, result), RedeemReject, nil)
	require.NoError(t, err)
	assert.Equal(t, "collect_diagnostics", redeemed.Next)

	// The diagnostics prompt was queued for the requester.
	pending, err := fx.outbox.ListByStatus(ctx, domain.OutboxStatusPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Contains(t, pending[1].Subject, "more information")
}

func TestRedeemRejectsBadToken(t *testing.T) {
	fx := newWorkflowFixture(t)

	_, err := fx.workflow.Redeem(context.Background(), "garbage", RedeemConfirm, nil)
	require.Error(t, err)
	assert.Equal(t, "LINK_INVALID", apperrors.ToDomainError(err).Code)
}

func TestRedeemRejectsUnknownAction(t *testing.T) {
	fx := newWorkflowFixture(t)

	_, err := fx.workflow.Redeem(context.Background(), "whatever", "maybe", nil)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestProposeAndSendLeavesNoAttemptOnRequesterLookupFailure(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	fx.users.getErr = errors.New("connection reset")
	_, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.Error(t, err)

	pending, err := fx.ledger.HasPendingAttempt(ctx, "tck-1")
	require.NoError(t, err)
	assert.False(t, pending)

	// The ticket is not blocked: the same proposal goes through on retry.
	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempt.AttemptNo)
}

func TestProposeAndSendRollsBackAttemptOnEnqueueFailure(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	fx.outbox.enqueueErr = errors.New("insert failed")
	_, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.Error(t, err)

	// No pending attempt and no mail survived the failed send.
	pending, err := fx.ledger.HasPendingAttempt(ctx, "tck-1")
	require.NoError(t, err)
	assert.False(t, pending)
	queued, err := fx.outbox.ListByStatus(ctx, domain.OutboxStatusPending, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, queued)

	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempt.AttemptNo)
	assert.Equal(t, domain.SolutionStatusSent, result.Solution.Status)

	queued, err = fx.outbox.ListByStatus(ctx, domain.OutboxStatusPending, 10, 0)
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestRedeemConfirmReopensAttemptOnTicketUpdateFailure(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)
	tok := fx.issueToken(t, result)

	fx.tickets.updateErr = errors.New("write refused")
	_, err = fx.workflow.Redeem(ctx, tok, RedeemConfirm, nil)
	require.Error(t, err)

	// The failed redemption left nothing half-applied.
	attempt, err := fx.attempts.GetByID(ctx, result.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptOutcomePending, attempt.Outcome)
	solution, err := fx.solutions.GetByID(ctx, result.Solution.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SolutionStatusSent, solution.Status)

	// The link still works once the store recovers.
	redeemed, err := fx.workflow.Redeem(ctx, tok, RedeemConfirm, nil)
	require.NoError(t, err)
	assert.True(t, redeemed.Confirmed)
	ticket, err := fx.tickets.GetByID(ctx, "tck-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
}

func TestRedeemConfirmKeepsClosedTicketClosed(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)
	tok := fx.issueToken(t, result)

	ticket, err := fx.tickets.GetByID(ctx, "tck-1")
	require.NoError(t, err)
	ticket.Status = domain.TicketStatusClosed
	require.NoError(t, fx.tickets.Update(ctx, ticket))

	redeemed, err := fx.workflow.Redeem(ctx, tok, RedeemConfirm, nil)
	require.NoError(t, err)
	assert.True(t, redeemed.Confirmed)

	// The attempt settles but the closed ticket is not reopened.
	ticket, err = fx.tickets.GetByID(ctx, "tck-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, ticket.Status)
	attempt, err := fx.attempts.GetByID(ctx, result.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptOutcomeConfirmed, attempt.Outcome)
}

func TestRedeemRejectsMismatchedTriple(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedTicket(t, domain.TicketPriorityMedium)
	ctx := context.Background()

	result, err := fx.workflow.ProposeAndSend(ctx, "tck-1", "Restart the router", nil)
	require.NoError(t, err)

	// Token bound to a different solution id must not settle the attempt.
	tok, err := fx.tokens.Issue(token.Ref{
		TicketID:   "tck-1",
		SolutionID: result.Solution.ID + 99,
		AttemptID:  result.Attempt.ID,
	})
	require.NoError(t, err)

	_, err = fx.workflow.Redeem(ctx, tok, RedeemConfirm, nil)
	require.Error(t, err)
	assert.Equal(t, "LINK_INVALID", apperrors.ToDomainError(err).Code)

	attempt, err := fx.attempts.GetByID(ctx, result.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptOutcomePending, attempt.Outcome)
}
