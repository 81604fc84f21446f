package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketViewRepository tracks who opened a ticket.
type TicketViewRepository interface {
	DeleteByTicket(ctx context.Context, ticketID string) (int64, error)
}

type ticketViewRepository struct {
	pool *pgxpool.Pool
}

// NewTicketViewRepository builds repository.
func NewTicketViewRepository(pool *pgxpool.Pool) TicketViewRepository {
	return &ticketViewRepository{pool: pool}
}

func (r *ticketViewRepository) DeleteByTicket(ctx context.Context, ticketID string) (int64, error) {
	cmd, err := querier(ctx, r.pool).Exec(ctx, `DELETE FROM ticket_views WHERE ticket_id=$1`, ticketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
