package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CommentRepository manages ticket thread comments. Posting comments belongs to
// the thread service; this core only removes them during retention.
type CommentRepository interface {
	DeleteByTicket(ctx context.Context, ticketID string) (int64, error)
}

type commentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository builds repository.
func NewCommentRepository(pool *pgxpool.Pool) CommentRepository {
	return &commentRepository{pool: pool}
}

func (r *commentRepository) DeleteByTicket(ctx context.Context, ticketID string) (int64, error) {
	cmd, err := querier(ctx, r.pool).Exec(ctx, `DELETE FROM ticket_comments WHERE ticket_id=$1`, ticketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
