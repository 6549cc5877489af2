package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// SolutionRepository encapsulates proposed-solution persistence.
type SolutionRepository interface {
	Create(ctx context.Context, solution *domain.Solution) error
	GetByID(ctx context.Context, id int64) (*domain.Solution, error)
	// FindByFingerprint returns the most recent solution for the ticket with
	// the given content fingerprint, or nil when none exists.
	FindByFingerprint(ctx context.Context, ticketID, fingerprint string) (*domain.Solution, error)
	UpdateStatus(ctx context.Context, id int64, status domain.SolutionStatus) error
}

type solutionRepository struct {
	pool *pgxpool.Pool
}

// NewSolutionRepository instantiates repository.
func NewSolutionRepository(pool *pgxpool.Pool) SolutionRepository {
	return &solutionRepository{pool: pool}
}

func (r *solutionRepository) Create(ctx context.Context, solution *domain.Solution) error {
	const query = `
        INSERT INTO solutions (ticket_id, proposer_id, text, normalized_text, fingerprint, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		solution.TicketID,
		solution.ProposerID,
		solution.Text,
		solution.NormalizedText,
		solution.Fingerprint,
		solution.Status,
	).Scan(&solution.ID, &solution.CreatedAt)
}

func (r *solutionRepository) GetByID(ctx context.Context, id int64) (*domain.Solution, error) {
	const query = `
        SELECT id, ticket_id, proposer_id, text, normalized_text, fingerprint, status,
               created_at, sent_at, confirmed_at
        FROM solutions WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *solutionRepository) FindByFingerprint(ctx context.Context, ticketID, fingerprint string) (*domain.Solution, error) {
	const query = `
        SELECT id, ticket_id, proposer_id, text, normalized_text, fingerprint, status,
               created_at, sent_at, confirmed_at
        FROM solutions WHERE ticket_id=$1 AND fingerprint=$2
        ORDER BY created_at DESC LIMIT 1`
	solution, err := r.fetchSingle(ctx, query, ticketID, fingerprint)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return solution, err
}

// UpdateStatus moves a solution through its lifecycle, stamping sent_at and
// confirmed_at as the status warrants.
func (r *solutionRepository) UpdateStatus(ctx context.Context, id int64, status domain.SolutionStatus) error {
	const query = `
        UPDATE solutions SET status=$2,
            sent_at      = CASE WHEN $2='SENT_FOR_CONFIRMATION' THEN NOW() ELSE sent_at END,
            confirmed_at = CASE WHEN $2='CONFIRMED' THEN NOW() ELSE confirmed_at END
        WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *solutionRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Solution, error) {
	var solution domain.Solution
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&solution.ID,
		&solution.TicketID,
		&solution.ProposerID,
		&solution.Text,
		&solution.NormalizedText,
		&solution.Fingerprint,
		&solution.Status,
		&solution.CreatedAt,
		&solution.SentAt,
		&solution.ConfirmedAt,
	); err != nil {
		return nil, err
	}
	return &solution, nil
}
