package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

func newTicketFixture() (*TicketService, *fakeTicketRepo) {
	tickets := newFakeTicketRepo()
	return NewTicketService(tickets, events.NewInMemoryDispatcher()), tickets
}

func TestCreateTicketDefaults(t *testing.T) {
	svc, _ := newTicketFixture()

	ticket, err := svc.CreateTicket(context.Background(), "usr-1", TicketCreateInput{
		Subject:     "  No internet  ",
		Description: "The connection drops every few minutes.",
	})
	require.NoError(t, err)

	assert.Equal(t, "No internet", ticket.Subject)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, domain.MinLevel, ticket.Level)
	assert.NotEmpty(t, ticket.ExternalKey)
	assert.False(t, ticket.Archived)
}

func TestGetTicketForUserEnforcesOwnership(t *testing.T) {
	svc, _ := newTicketFixture()
	ticket, err := svc.CreateTicket(context.Background(), "usr-1", TicketCreateInput{Subject: "a", Description: "b"})
	require.NoError(t, err)

	_, err = svc.GetTicketForUser(context.Background(), "usr-2", ticket.ID)
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", apperrors.ToDomainError(err).Code)

	got, err := svc.GetTicketForUser(context.Background(), "usr-1", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)
}

func TestCloseTicketOnlyFromResolved(t *testing.T) {
	svc, repo := newTicketFixture()
	ctx := context.Background()
	ticket, err := svc.CreateTicket(ctx, "usr-1", TicketCreateInput{Subject: "a", Description: "b"})
	require.NoError(t, err)

	_, err = svc.CloseTicketAsUser(ctx, "usr-1", ticket.ID)
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)

	ticket.Status = domain.TicketStatusResolved
	require.NoError(t, repo.Update(ctx, ticket))

	closed, err := svc.CloseTicketAsUser(ctx, "usr-1", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
}

func TestArchiveOnlyTerminalTickets(t *testing.T) {
	svc, repo := newTicketFixture()
	ctx := context.Background()
	ticket, err := svc.CreateTicket(ctx, "usr-1", TicketCreateInput{Subject: "a", Description: "b"})
	require.NoError(t, err)

	_, err = svc.ArchiveTicket(ctx, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)

	ticket.Status = domain.TicketStatusResolved
	require.NoError(t, repo.Update(ctx, ticket))

	archived, err := svc.ArchiveTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	// Archived tickets drop out of default listings.
	listed, err := svc.ListUserTickets(ctx, "usr-1", 20, 0)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
