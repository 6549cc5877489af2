package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

var (
	// ErrPendingAttempt means the ticket already has an unsettled attempt.
	ErrPendingAttempt = errors.New("previous solution still pending")
	// ErrAlreadySettled means the attempt already reached a terminal outcome.
	ErrAlreadySettled = errors.New("attempt already settled")
)

// AttemptRepository owns attempt numbering, pending gating and settlement.
type AttemptRepository interface {
	// Create allocates the next attempt number and persists a pending
	// attempt. Numbering, the pending gate and the insert run in one
	// transaction serialized per ticket, so concurrent sends for the same
	// ticket cannot duplicate numbers or both pass the gate.
	Create(ctx context.Context, ticketID string, solutionID int64) (*domain.ResolutionAttempt, error)
	GetByID(ctx context.Context, id int64) (*domain.ResolutionAttempt, error)
	HasPending(ctx context.Context, ticketID string) (bool, error)
	// Settle transitions pending -> confirmed|rejected exactly once via a
	// conditional update. Returns ErrAlreadySettled when the attempt exists
	// but is no longer pending.
	Settle(ctx context.Context, id int64, outcome domain.AttemptOutcome, reason *string) error
	// DeletePending removes an attempt that is still pending. Numbering
	// stays gapless because only the highest-numbered attempt for a ticket
	// can be pending.
	DeletePending(ctx context.Context, id int64) error
	// Reopen returns a settled attempt to pending, clearing its outcome.
	Reopen(ctx context.Context, id int64) error
	// LastRejectedSolutionText returns the text of the most recently
	// rejected solution for the ticket, or nil when none exists.
	LastRejectedSolutionText(ctx context.Context, ticketID string) (*string, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ResolutionAttempt, error)
}

type attemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository instantiates repository.
func NewAttemptRepository(pool *pgxpool.Pool) AttemptRepository {
	return &attemptRepository{pool: pool}
}

func (r *attemptRepository) Create(ctx context.Context, ticketID string, solutionID int64) (*domain.ResolutionAttempt, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Lock the ticket row so attempt numbering for this ticket is serial.
	var lockedID string
	if err := tx.QueryRow(ctx,
		`SELECT id FROM tickets WHERE id=$1 FOR UPDATE`, ticketID,
	).Scan(&lockedID); err != nil {
		return nil, err
	}

	var pending bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM resolution_attempts WHERE ticket_id=$1 AND outcome=$2)`,
		ticketID, domain.AttemptOutcomePending,
	).Scan(&pending); err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrPendingAttempt
	}

	attempt := &domain.ResolutionAttempt{
		TicketID:   ticketID,
		SolutionID: solutionID,
		Outcome:    domain.AttemptOutcomePending,
	}
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(attempt_no), 0) + 1 FROM resolution_attempts WHERE ticket_id=$1`,
		ticketID,
	).Scan(&attempt.AttemptNo); err != nil {
		return nil, err
	}

	const insert = `
        INSERT INTO resolution_attempts (ticket_id, solution_id, attempt_no, outcome)
        VALUES ($1,$2,$3,$4)
        RETURNING id, sent_at`
	if err := tx.QueryRow(ctx, insert,
		attempt.TicketID,
		attempt.SolutionID,
		attempt.AttemptNo,
		attempt.Outcome,
	).Scan(&attempt.ID, &attempt.SentAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *attemptRepository) GetByID(ctx context.Context, id int64) (*domain.ResolutionAttempt, error) {
	const query = `
        SELECT id, ticket_id, solution_id, attempt_no, outcome, rejection_reason, sent_at, closed_at
        FROM resolution_attempts WHERE id=$1`
	var attempt domain.ResolutionAttempt
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&attempt.ID,
		&attempt.TicketID,
		&attempt.SolutionID,
		&attempt.AttemptNo,
		&attempt.Outcome,
		&attempt.RejectionReason,
		&attempt.SentAt,
		&attempt.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) HasPending(ctx context.Context, ticketID string) (bool, error) {
	var pending bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM resolution_attempts WHERE ticket_id=$1 AND outcome=$2)`,
		ticketID, domain.AttemptOutcomePending,
	).Scan(&pending)
	return pending, err
}

func (r *attemptRepository) Settle(ctx context.Context, id int64, outcome domain.AttemptOutcome, reason *string) error {
	const query = `
        UPDATE resolution_attempts SET outcome=$2, rejection_reason=$3, closed_at=NOW()
        WHERE id=$1 AND outcome=$4`
	cmd, err := r.pool.Exec(ctx, query, id, outcome, reason, domain.AttemptOutcomePending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	// Lost the check-and-set: either the attempt is gone or already settled.
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM resolution_attempts WHERE id=$1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return ErrAlreadySettled
}

func (r *attemptRepository) DeletePending(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx,
		`DELETE FROM resolution_attempts WHERE id=$1 AND outcome=$2`,
		id, domain.AttemptOutcomePending,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *attemptRepository) Reopen(ctx context.Context, id int64) error {
	const query = `
        UPDATE resolution_attempts SET outcome=$2, rejection_reason=NULL, closed_at=NULL
        WHERE id=$1 AND outcome<>$2`
	cmd, err := r.pool.Exec(ctx, query, id, domain.AttemptOutcomePending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *attemptRepository) LastRejectedSolutionText(ctx context.Context, ticketID string) (*string, error) {
	const query = `
        SELECT s.text
        FROM resolution_attempts a
        JOIN solutions s ON s.id = a.solution_id
        WHERE a.ticket_id=$1 AND a.outcome=$2
        ORDER BY a.closed_at DESC LIMIT 1`
	var text string
	err := r.pool.QueryRow(ctx, query, ticketID, domain.AttemptOutcomeRejected).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &text, nil
}

func (r *attemptRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ResolutionAttempt, error) {
	const query = `
        SELECT id, ticket_id, solution_id, attempt_no, outcome, rejection_reason, sent_at, closed_at
        FROM resolution_attempts WHERE ticket_id=$1 ORDER BY attempt_no ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ResolutionAttempt
	for rows.Next() {
		var attempt domain.ResolutionAttempt
		if err := rows.Scan(
			&attempt.ID,
			&attempt.TicketID,
			&attempt.SolutionID,
			&attempt.AttemptNo,
			&attempt.Outcome,
			&attempt.RejectionReason,
			&attempt.SentAt,
			&attempt.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attempt)
	}
	return result, rows.Err()
}
