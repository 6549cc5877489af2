package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/textutil"
	"github.com/spec-kit/support-desk/internal/token"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// Redemption actions accepted on the confirmation link.
const (
	RedeemConfirm = "confirm"
	RedeemReject  = "not_confirm"
)

// WorkflowService sequences the resolution lifecycle: it validates through
// the ledger, decides through the policy, signs through the token service and
// notifies through the outbox. It carries no business rules of its own.
type WorkflowService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	solutions  repository.SolutionRepository
	ledger     *ResolutionLedger
	escalation *EscalationService
	tokens     *token.Service
	notifier   *NotificationService
	dispatcher events.Dispatcher
	confirm    config.ConfirmConfig
	logger     *zap.Logger
}

// WorkflowDependencies bundles collaborators.
type WorkflowDependencies struct {
	TicketRepo   repository.TicketRepository
	UserRepo     repository.UserRepository
	SolutionRepo repository.SolutionRepository
	Ledger       *ResolutionLedger
	Escalation   *EscalationService
	Tokens       *token.Service
	Notifier     *NotificationService
	Dispatcher   events.Dispatcher
	Confirm      config.ConfirmConfig
	Logger       *zap.Logger
}

// NewWorkflowService constructs the orchestrator.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	return &WorkflowService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		solutions:  deps.SolutionRepo,
		ledger:     deps.Ledger,
		escalation: deps.Escalation,
		tokens:     deps.Tokens,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		confirm:    deps.Confirm,
		logger:     deps.Logger,
	}
}

// ProposeResult reports a successful propose-and-send.
type ProposeResult struct {
	Solution *domain.Solution
	Attempt  *domain.ResolutionAttempt
}

// ProposeAndSend validates a proposed fix through the send gate, records the
// attempt and queues the confirmation mail.
func (s *WorkflowService) ProposeAndSend(ctx context.Context, ticketID, text string, proposer *domain.StaffMember) (*ProposeResult, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusClosed || ticket.Archived {
		return nil, apperrors.NewConflict("ticket is closed", nil)
	}
	if textutil.Normalize(text) == "" {
		return nil, apperrors.NewValidationError("solution text required", nil)
	}

	if err := s.ledger.CheckSendGate(ctx, ticketID, text); err != nil {
		return nil, err
	}

	requester, err := s.users.GetByID(ctx, ticket.RequesterID)
	if err != nil {
		return nil, err
	}

	solution, err := s.findOrCreateSolution(ctx, ticket, text, proposer)
	if err != nil {
		return nil, err
	}

	attempt, err := s.ledger.CreateAttempt(ctx, ticketID, solution.ID)
	if err != nil {
		return nil, err
	}

	// Every step past this point unwinds through rollbackSend on failure:
	// a pending attempt without a queued confirmation mail would block the
	// ticket with no way to settle it.
	tok, err := s.tokens.Issue(token.Ref{
		TicketID:   ticket.ID,
		SolutionID: solution.ID,
		AttemptID:  attempt.ID,
	})
	if err != nil {
		return nil, s.rollbackSend(ctx, attempt, solution, err)
	}

	if err := s.solutions.UpdateStatus(ctx, solution.ID, domain.SolutionStatusSent); err != nil {
		return nil, s.rollbackSend(ctx, attempt, solution, err)
	}
	solution.Status = domain.SolutionStatusSent

	if err := s.notifier.Enqueue(ctx, s.confirmationMail(ticket, requester, solution, tok)); err != nil {
		return nil, s.rollbackSend(ctx, attempt, solution, err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventSolutionSent,
		TicketID: ticket.ID,
		Actor:    staffActor(proposer),
		Payload: events.SolutionSentPayload{
			SolutionID: solution.ID,
			AttemptID:  attempt.ID,
			AttemptNo:  attempt.AttemptNo,
		},
	})

	return &ProposeResult{Solution: solution, Attempt: attempt}, nil
}

// RedeemResult is returned for both fresh and repeated redemptions.
type RedeemResult struct {
	Ok         bool   `json:"ok"`
	Confirmed  bool   `json:"confirmed"`
	TicketID   string `json:"ticket_id"`
	AttemptID  int64  `json:"attempt_id"`
	SolutionID int64  `json:"solution_id"`
	Next       string `json:"next,omitempty"`
}

// Redeem verifies a confirmation token and applies the outcome. Repeated
// redemption of a settled attempt returns the prior outcome instead of an
// error; the token stays valid until expiry, single-use semantics live in the
// ledger's settle step.
func (s *WorkflowService) Redeem(ctx context.Context, tokenStr, action string, reason *string) (*RedeemResult, error) {
	if action != RedeemConfirm && action != RedeemReject {
		return nil, apperrors.NewValidationError("unknown confirmation action", map[string]any{"action": action})
	}

	ref, err := s.tokens.Verify(tokenStr)
	if errors.Is(err, token.ErrExpired) {
		return nil, apperrors.NewLinkExpired("this confirmation link has expired")
	}
	if err != nil {
		return nil, apperrors.NewLinkInvalid("this confirmation link is not valid")
	}

	attempt, err := s.ledger.GetAttempt(ctx, ref.AttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.TicketID != ref.TicketID || attempt.SolutionID != ref.SolutionID {
		return nil, apperrors.NewLinkInvalid("this confirmation link is not valid")
	}

	if attempt.Settled() {
		return priorOutcome(attempt), nil
	}

	if action == RedeemConfirm {
		return s.applyConfirm(ctx, attempt)
	}
	return s.applyReject(ctx, attempt, reason)
}

func (s *WorkflowService) applyConfirm(ctx context.Context, attempt *domain.ResolutionAttempt) (*RedeemResult, error) {
	if err := s.ledger.Settle(ctx, attempt.ID, domain.AttemptOutcomeConfirmed, nil); err != nil {
		if errors.Is(err, repository.ErrAlreadySettled) {
			return s.settledElsewhere(ctx, attempt.ID)
		}
		return nil, err
	}
	if err := s.solutions.UpdateStatus(ctx, attempt.SolutionID, domain.SolutionStatusConfirmed); err != nil {
		return nil, s.rollbackSettle(ctx, attempt, err)
	}

	ticket, err := s.tickets.GetByID(ctx, attempt.TicketID)
	if err != nil {
		return nil, s.rollbackSettle(ctx, attempt, err)
	}
	// A ticket closed or archived in the meantime keeps its terminal state;
	// the confirmation still settles the attempt.
	if ticket.Status != domain.TicketStatusClosed && !ticket.Archived {
		ticket.Status = domain.TicketStatusResolved
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, s.rollbackSettle(ctx, attempt, err)
		}
	}

	s.publish(ctx, events.Event{
		Type:     events.EventAttemptConfirmed,
		TicketID: attempt.TicketID,
		Actor:    events.Actor{Type: domain.SubjectTypeUser},
		Payload: events.AttemptConfirmedPayload{
			SolutionID: attempt.SolutionID,
			AttemptID:  attempt.ID,
			AttemptNo:  attempt.AttemptNo,
		},
	})

	return &RedeemResult{
		Ok:         true,
		Confirmed:  true,
		TicketID:   attempt.TicketID,
		AttemptID:  attempt.ID,
		SolutionID: attempt.SolutionID,
		Next:       "resolved",
	}, nil
}

func (s *WorkflowService) applyReject(ctx context.Context, attempt *domain.ResolutionAttempt, reason *string) (*RedeemResult, error) {
	if err := s.ledger.Settle(ctx, attempt.ID, domain.AttemptOutcomeRejected, reason); err != nil {
		if errors.Is(err, repository.ErrAlreadySettled) {
			return s.settledElsewhere(ctx, attempt.ID)
		}
		return nil, err
	}
	if err := s.solutions.UpdateStatus(ctx, attempt.SolutionID, domain.SolutionStatusRejected); err != nil {
		return nil, s.rollbackSettle(ctx, attempt, err)
	}

	ticket, err := s.tickets.GetByID(ctx, attempt.TicketID)
	if err != nil {
		return nil, s.rollbackSettle(ctx, attempt, err)
	}

	action := NextAction(ticket.Priority, ticket.Level, attempt.AttemptNo, reason)
	next, err := s.applyPolicyAction(ctx, ticket, attempt, action, reason)
	if err != nil {
		return nil, s.rollbackSettle(ctx, attempt, err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventAttemptRejected,
		TicketID: attempt.TicketID,
		Actor:    events.Actor{Type: domain.SubjectTypeUser},
		Payload: events.AttemptRejectedPayload{
			SolutionID: attempt.SolutionID,
			AttemptID:  attempt.ID,
			AttemptNo:  attempt.AttemptNo,
			Reason:     reason,
		},
	})

	return &RedeemResult{
		Ok:         true,
		Confirmed:  false,
		TicketID:   attempt.TicketID,
		AttemptID:  attempt.ID,
		SolutionID: attempt.SolutionID,
		Next:       next,
	}, nil
}

func (s *WorkflowService) applyPolicyAction(ctx context.Context, ticket *domain.Ticket, attempt *domain.ResolutionAttempt, action Action, reason *string) (string, error) {
	switch action.Kind {
	case ActionEscalate:
		note := "rejected fix"
		if reason != nil {
			note = fmt.Sprintf("rejected fix: %s", *reason)
		}
		if _, err := s.escalation.EscalateByPolicy(ctx, ticket, action.ToLevel, note); err != nil {
			return "", err
		}
		return fmt.Sprintf("escalate:%d", action.ToLevel), nil
	case ActionCollectDiagnostics:
		s.publish(ctx, events.Event{
			Type:     events.EventDiagnosticsAsked,
			TicketID: ticket.ID,
			Actor:    events.Actor{Type: domain.SubjectTypeSystem},
			Payload:  events.DiagnosticsPayload{AttemptNo: attempt.AttemptNo},
		})
		return "collect_diagnostics", nil
	case ActionNewSolution:
		s.publish(ctx, events.Event{
			Type:     events.EventNewSolutionWanted,
			TicketID: ticket.ID,
			Actor:    events.Actor{Type: domain.SubjectTypeSystem},
			Payload:  events.AttemptRejectedPayload{SolutionID: attempt.SolutionID, AttemptID: attempt.ID, AttemptNo: attempt.AttemptNo},
		})
		return "new_solution", nil
	default:
		s.publish(ctx, events.Event{
			Type:     events.EventLiveAssistFlagged,
			TicketID: ticket.ID,
			Actor:    events.Actor{Type: domain.SubjectTypeSystem},
			Payload:  events.LiveAssistPayload{AttemptNo: attempt.AttemptNo},
		})
		return "live_assist", nil
	}
}

// rollbackSend unwinds a partially applied send: the pending attempt is
// removed and the solution returns to draft, so the next proposal starts
// from a clean slate. The original cause is returned either way; compensation
// failures are logged, never surfaced over it.
func (s *WorkflowService) rollbackSend(ctx context.Context, attempt *domain.ResolutionAttempt, solution *domain.Solution, cause error) error {
	if err := s.ledger.Discard(ctx, attempt.ID); err != nil {
		s.logger.Error("send rollback could not discard attempt",
			zap.Int64("attempt_id", attempt.ID),
			zap.Error(err))
	}
	if err := s.solutions.UpdateStatus(ctx, solution.ID, domain.SolutionStatusDraft); err != nil {
		s.logger.Error("send rollback could not reset solution status",
			zap.Int64("solution_id", solution.ID),
			zap.Error(err))
	}
	return cause
}

// rollbackSettle unwinds a redemption whose follow-up writes failed: the
// attempt reopens as pending and the solution returns to sent, so the link
// can be redeemed again instead of leaving a settled attempt on an
// unchanged ticket.
func (s *WorkflowService) rollbackSettle(ctx context.Context, attempt *domain.ResolutionAttempt, cause error) error {
	if err := s.solutions.UpdateStatus(ctx, attempt.SolutionID, domain.SolutionStatusSent); err != nil {
		s.logger.Error("settle rollback could not reset solution status",
			zap.Int64("solution_id", attempt.SolutionID),
			zap.Error(err))
	}
	if err := s.ledger.Reopen(ctx, attempt.ID); err != nil {
		s.logger.Error("settle rollback could not reopen attempt",
			zap.Int64("attempt_id", attempt.ID),
			zap.Error(err))
	}
	return cause
}

// settledElsewhere covers losing a settle race to a duplicate click: the
// attempt is re-read and the recorded outcome returned as a success.
func (s *WorkflowService) settledElsewhere(ctx context.Context, attemptID int64) (*RedeemResult, error) {
	attempt, err := s.ledger.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return priorOutcome(attempt), nil
}

func priorOutcome(attempt *domain.ResolutionAttempt) *RedeemResult {
	return &RedeemResult{
		Ok:         true,
		Confirmed:  attempt.Outcome == domain.AttemptOutcomeConfirmed,
		TicketID:   attempt.TicketID,
		AttemptID:  attempt.ID,
		SolutionID: attempt.SolutionID,
	}
}

func (s *WorkflowService) findOrCreateSolution(ctx context.Context, ticket *domain.Ticket, text string, proposer *domain.StaffMember) (*domain.Solution, error) {
	normalized := textutil.Normalize(text)
	fingerprint := textutil.Fingerprint(text)

	existing, err := s.solutions.FindByFingerprint(ctx, ticket.ID, fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == domain.SolutionStatusDraft {
		return existing, nil
	}

	solution := &domain.Solution{
		TicketID:       ticket.ID,
		Text:           text,
		NormalizedText: normalized,
		Fingerprint:    fingerprint,
		Status:         domain.SolutionStatusDraft,
	}
	if proposer != nil {
		proposerID := proposer.ID
		solution.ProposerID = &proposerID
	}
	if err := s.solutions.Create(ctx, solution); err != nil {
		return nil, err
	}
	return solution, nil
}

func (s *WorkflowService) confirmationMail(ticket *domain.Ticket, requester *domain.User, solution *domain.Solution, tok string) *domain.OutboxMessage {
	confirmURL := s.confirmLink(tok, RedeemConfirm)
	rejectURL := s.confirmLink(tok, RedeemReject)
	body := fmt.Sprintf(
		"Hello %s,\n\nWe believe the following may fix your issue (%s):\n\n%s\n\n"+
			"Did this solve your problem?\n\n  Yes, it worked: %s\n  No, it did not: %s\n\n"+
			"This link is valid for 7 days.\n",
		requester.Name, ticket.ExternalKey, solution.Text, confirmURL, rejectURL)
	return &domain.OutboxMessage{
		TicketID: &ticket.ID,
		To:       requester.Email,
		Subject:  fmt.Sprintf("Proposed fix for your ticket %s", ticket.ExternalKey),
		Body:     body,
	}
}

func (s *WorkflowService) confirmLink(tok, action string) string {
	return fmt.Sprintf("%s/confirm?token=%s&a=%s", s.confirm.BaseURL, url.QueryEscape(tok), action)
}

func (s *WorkflowService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func staffActor(staff *domain.StaffMember) events.Actor {
	if staff == nil {
		return events.Actor{Type: domain.SubjectTypeSystem}
	}
	id := staff.ID
	return events.Actor{Type: domain.SubjectTypeStaff, StaffID: &id}
}
