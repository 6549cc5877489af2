package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// EscalationService owns the role-gated level transitions and the audit
// trail. Ticket status changes flow only through here and the workflow
// service.
type EscalationService struct {
	tickets    repository.TicketRepository
	history    repository.EscalationHistoryRepository
	dispatcher events.Dispatcher
}

// NewEscalationService constructs the service.
func NewEscalationService(tickets repository.TicketRepository, history repository.EscalationHistoryRepository, dispatcher events.Dispatcher) *EscalationService {
	return &EscalationService{tickets: tickets, history: history, dispatcher: dispatcher}
}

// Escalate moves a ticket up to toLevel on behalf of a staff actor. A tier-N
// actor may only move the ticket to level N+1; managers may choose any level
// above the current one.
func (s *EscalationService) Escalate(ctx context.Context, staff *domain.StaffMember, ticketID string, toLevel int, note string) (*domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewForbidden("staff required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if toLevel <= ticket.Level {
		return nil, apperrors.NewConflict("target level must be above current level", map[string]any{
			"current_level": ticket.Level,
		})
	}
	if toLevel > domain.MaxLevel {
		return nil, apperrors.NewValidationError(fmt.Sprintf("level must be at most %d", domain.MaxLevel), nil)
	}
	tier := staff.Role.Tier()
	if tier < domain.MaxLevel && toLevel != tier+1 {
		return nil, apperrors.NewForbidden(fmt.Sprintf("tier %d staff may only escalate to level %d", tier, tier+1))
	}

	actorID := staff.ID
	return s.applyTransition(ctx, ticket, transition{
		actorType: domain.SubjectTypeStaff,
		actorID:   &actorID,
		direction: domain.EscalationUp,
		toLevel:   toLevel,
		note:      note,
	})
}

// Deescalate moves a ticket exactly one level down. Refused at level 1.
func (s *EscalationService) Deescalate(ctx context.Context, staff *domain.StaffMember, ticketID, note string) (*domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewForbidden("staff required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Level <= domain.MinLevel {
		return nil, apperrors.NewConflict("ticket already at the lowest level", nil)
	}

	actorID := staff.ID
	return s.applyTransition(ctx, ticket, transition{
		actorType: domain.SubjectTypeStaff,
		actorID:   &actorID,
		direction: domain.EscalationDown,
		toLevel:   ticket.Level - 1,
		note:      note,
	})
}

// EscalateByPolicy applies an attempt-driven escalation decided by
// NextAction. The policy's max(level, 2) target can resolve to the current
// level; that still records an audit entry and flips the status.
func (s *EscalationService) EscalateByPolicy(ctx context.Context, ticket *domain.Ticket, toLevel int, reason string) (*domain.Ticket, error) {
	return s.applyTransition(ctx, ticket, transition{
		actorType: domain.SubjectTypeSystem,
		direction: domain.EscalationUp,
		toLevel:   toLevel,
		note:      reason,
	})
}

// History returns the append-only transition log for a ticket.
func (s *EscalationService) History(ctx context.Context, ticketID string) ([]domain.EscalationEntry, error) {
	return s.history.ListByTicket(ctx, ticketID)
}

type transition struct {
	actorType domain.SubjectType
	actorID   *string
	direction domain.EscalationDirection
	toLevel   int
	note      string
}

func (s *EscalationService) applyTransition(ctx context.Context, ticket *domain.Ticket, t transition) (*domain.Ticket, error) {
	oldLevel := ticket.Level
	ticket.Level = t.toLevel
	if t.direction == domain.EscalationUp {
		ticket.Status = domain.TicketStatusEscalated
	} else {
		ticket.Status = domain.TicketStatusDeescalated
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	entry := &domain.EscalationEntry{
		TicketID:  ticket.ID,
		ActorType: t.actorType,
		ActorID:   t.actorID,
		Direction: t.direction,
		OldLevel:  oldLevel,
		NewLevel:  t.toLevel,
		Note:      t.note,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.publish(ctx, ticket, t, oldLevel)
	return ticket, nil
}

func (s *EscalationService) publish(ctx context.Context, ticket *domain.Ticket, t transition, oldLevel int) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Actor:     events.Actor{Type: t.actorType, StaffID: t.actorID},
		Timestamp: time.Now(),
	}
	if t.direction == domain.EscalationUp {
		event.Type = events.EventTicketEscalated
		event.Payload = events.EscalatedPayload{FromLevel: oldLevel, ToLevel: t.toLevel, Reason: t.note}
	} else {
		event.Type = events.EventTicketDeescalated
		event.Payload = events.DeescalatedPayload{FromLevel: oldLevel, ToLevel: t.toLevel, Note: t.note}
	}
	_ = s.dispatcher.Publish(ctx, event)
}
