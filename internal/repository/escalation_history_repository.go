package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EscalationHistoryRepository stores level-transition audit entries.
// The table is append-only; there is deliberately no update or delete.
type EscalationHistoryRepository interface {
	Create(ctx context.Context, entry *domain.EscalationEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationEntry, error)
}

type escalationHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationHistoryRepository builds repository.
func NewEscalationHistoryRepository(pool *pgxpool.Pool) EscalationHistoryRepository {
	return &escalationHistoryRepository{pool: pool}
}

func (r *escalationHistoryRepository) Create(ctx context.Context, entry *domain.EscalationEntry) error {
	const query = `
        INSERT INTO escalation_history (ticket_id, actor_type, actor_id, direction, old_level, new_level, note)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.ActorType,
		entry.ActorID,
		entry.Direction,
		entry.OldLevel,
		entry.NewLevel,
		entry.Note,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *escalationHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationEntry, error) {
	const query = `
        SELECT id, ticket_id, actor_type, actor_id, direction, old_level, new_level, note, created_at
        FROM escalation_history WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationEntry
	for rows.Next() {
		var entry domain.EscalationEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ActorType,
			&entry.ActorID,
			&entry.Direction,
			&entry.OldLevel,
			&entry.NewLevel,
			&entry.Note,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
