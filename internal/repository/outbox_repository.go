package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// OutboxRepository is the durable notification queue. Claim is the queue's
// mutual-exclusion primitive: each row's pending->claimed transition is one
// conditional update, so any number of worker loops can drain concurrently
// without a distributed lock.
type OutboxRepository interface {
	// Enqueue inserts a pending message unless an identical
	// (ticket_id, to, subject, body) message is already pending. Returns
	// true when a row was inserted.
	Enqueue(ctx context.Context, msg *domain.OutboxMessage) (bool, error)
	// Claim atomically moves up to limit pending messages (oldest first) to
	// claimed and returns only the ids this caller won.
	Claim(ctx context.Context, limit int) ([]int64, error)
	GetByID(ctx context.Context, id int64) (*domain.OutboxMessage, error)
	// MarkSent settles claimed -> sent, clearing any error.
	MarkSent(ctx context.Context, id int64) error
	// MarkFailed settles claimed -> failed, recording the reason.
	MarkFailed(ctx context.Context, id int64, reason string) error
	// Retry resets failed -> pending; the operator's re-queue action.
	Retry(ctx context.Context, id int64) error
	ListByStatus(ctx context.Context, status domain.OutboxStatus, limit, offset int) ([]domain.OutboxMessage, error)
}

type outboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository instantiates repository.
func NewOutboxRepository(pool *pgxpool.Pool) OutboxRepository {
	return &outboxRepository{pool: pool}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg *domain.OutboxMessage) (bool, error) {
	const query = `
        INSERT INTO outbox_messages (ticket_id, recipient, cc, subject, body, status)
        SELECT $1, $2, $3, $4, $5, $6
        WHERE NOT EXISTS (
            SELECT 1 FROM outbox_messages
            WHERE ticket_id IS NOT DISTINCT FROM $1
              AND recipient=$2 AND subject=$4 AND body=$5 AND status=$6
        )
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.To,
		msg.CC,
		msg.Subject,
		msg.Body,
		domain.OutboxStatusPending,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err == pgx.ErrNoRows {
		// Identical message already pending; enqueue is a no-op.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	msg.Status = domain.OutboxStatusPending
	return true, nil
}

func (r *outboxRepository) Claim(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM outbox_messages WHERE status=$1 ORDER BY created_at ASC LIMIT $2`,
		domain.OutboxStatusPending, limit)
	if err != nil {
		return nil, err
	}
	candidates := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Per-row check-and-set; concurrent claimers race row by row and each
	// row has exactly one winner. Partial batches are expected.
	won := make([]int64, 0, len(candidates))
	for _, id := range candidates {
		cmd, err := r.pool.Exec(ctx,
			`UPDATE outbox_messages SET status=$2 WHERE id=$1 AND status=$3`,
			id, domain.OutboxStatusClaimed, domain.OutboxStatusPending)
		if err != nil {
			return won, err
		}
		if cmd.RowsAffected() > 0 {
			won = append(won, id)
		}
	}
	return won, nil
}

func (r *outboxRepository) GetByID(ctx context.Context, id int64) (*domain.OutboxMessage, error) {
	const query = `
        SELECT id, ticket_id, recipient, cc, subject, body, status, error, created_at, sent_at
        FROM outbox_messages WHERE id=$1`
	var msg domain.OutboxMessage
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.TicketID,
		&msg.To,
		&msg.CC,
		&msg.Subject,
		&msg.Body,
		&msg.Status,
		&msg.Error,
		&msg.CreatedAt,
		&msg.SentAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.settle(ctx, id,
		`UPDATE outbox_messages SET status=$2, error=NULL, sent_at=NOW() WHERE id=$1 AND status=$3`,
		domain.OutboxStatusSent, domain.OutboxStatusClaimed)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	const query = `
        UPDATE outbox_messages SET status=$2, error=$4 WHERE id=$1 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query, id, domain.OutboxStatusFailed, domain.OutboxStatusClaimed, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *outboxRepository) Retry(ctx context.Context, id int64) error {
	return r.settle(ctx, id,
		`UPDATE outbox_messages SET status=$2, error=NULL WHERE id=$1 AND status=$3`,
		domain.OutboxStatusPending, domain.OutboxStatusFailed)
}

func (r *outboxRepository) settle(ctx context.Context, id int64, query string, to, from domain.OutboxStatus) error {
	cmd, err := r.pool.Exec(ctx, query, id, to, from)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *outboxRepository) ListByStatus(ctx context.Context, status domain.OutboxStatus, limit, offset int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_id, recipient, cc, subject, body, status, error, created_at, sent_at
        FROM outbox_messages WHERE status=$1
        ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.To,
			&msg.CC,
			&msg.Subject,
			&msg.Body,
			&msg.Status,
			&msg.Error,
			&msg.CreatedAt,
			&msg.SentAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
