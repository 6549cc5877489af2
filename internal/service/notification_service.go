package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
)

// NotificationService turns lifecycle events into durable outbox rows and
// nudges the worker pool. It never sends mail itself; delivery belongs to the
// outbox workers.
type NotificationService struct {
	outbox     repository.OutboxRepository
	tickets    repository.TicketRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	redis      *persistence.Redis
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	OutboxRepo repository.OutboxRepository
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Redis      *persistence.Redis
	Logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	return &NotificationService{
		outbox:     deps.OutboxRepo,
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		redis:      deps.Redis,
		logger:     deps.Logger,
	}
}

// RegisterHandlers subscribes to lifecycle events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAttemptConfirmed, n.handleConfirmed)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleEscalated)
	n.dispatcher.Subscribe(events.EventTicketDeescalated, n.handleDeescalated)
	n.dispatcher.Subscribe(events.EventDiagnosticsAsked, n.handleDiagnostics)
	n.dispatcher.Subscribe(events.EventNewSolutionWanted, n.handleNewSolution)
	n.dispatcher.Subscribe(events.EventLiveAssistFlagged, n.handleLiveAssist)
}

// Enqueue inserts a message into the outbox and wakes a worker. Duplicate
// pending messages collapse into the existing row.
func (n *NotificationService) Enqueue(ctx context.Context, msg *domain.OutboxMessage) error {
	inserted, err := n.outbox.Enqueue(ctx, msg)
	if err != nil {
		return err
	}
	if !inserted {
		n.logger.Debug("duplicate outbox message suppressed",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject))
		return nil
	}
	n.redis.NotifyOutbox(ctx)
	return nil
}

func (n *NotificationService) handleConfirmed(ctx context.Context, event events.Event) error {
	return n.notifyRequester(ctx, event.TicketID,
		"Your ticket has been resolved",
		"Thanks for confirming the fix. We have marked your ticket %s as resolved.")
}

func (n *NotificationService) handleEscalated(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.EscalatedPayload)
	return n.notifyRequester(ctx, event.TicketID,
		"Your ticket has been escalated",
		fmt.Sprintf("Your ticket %%s has been escalated to support tier %d. A specialist will follow up.", payload.ToLevel))
}

func (n *NotificationService) handleDeescalated(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.DeescalatedPayload)
	return n.notifyRequester(ctx, event.TicketID,
		"Update on your ticket",
		fmt.Sprintf("Your ticket %%s has been moved back to support tier %d.", payload.ToLevel))
}

func (n *NotificationService) handleDiagnostics(ctx context.Context, event events.Event) error {
	return n.notifyRequester(ctx, event.TicketID,
		"We need a bit more information",
		"The proposed fix for ticket %s did not work. Please reply with any error messages or screenshots so we can narrow the problem down.")
}

func (n *NotificationService) handleNewSolution(ctx context.Context, event events.Event) error {
	return n.notifyRequester(ctx, event.TicketID,
		"We are preparing a new fix",
		"Thanks for the feedback on ticket %s. An agent is working on a different solution and will be in touch shortly.")
}

func (n *NotificationService) handleLiveAssist(ctx context.Context, event events.Event) error {
	return n.notifyRequester(ctx, event.TicketID,
		"A support agent will contact you",
		"The suggested fixes for ticket %s have not worked. A support agent will reach out to assist you directly.")
}

func (n *NotificationService) notifyRequester(ctx context.Context, ticketID, subject, bodyFmt string) error {
	ticket, err := n.tickets.GetByID(ctx, ticketID)
	if err != nil {
		n.logger.Warn("notification skipped: ticket lookup failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return err
	}
	user, err := n.users.GetByID(ctx, ticket.RequesterID)
	if err != nil {
		n.logger.Warn("notification skipped: requester lookup failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return err
	}
	return n.Enqueue(ctx, &domain.OutboxMessage{
		TicketID: &ticket.ID,
		To:       user.Email,
		Subject:  subject,
		Body:     fmt.Sprintf(bodyFmt, ticket.ExternalKey),
	})
}
