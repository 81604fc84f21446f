package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

// ImageRepository persists image metadata; file bytes live in a file store.
type ImageRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Image, error)
	DeleteByTicket(ctx context.Context, ticketID string) (int64, error)
}

type imageRepository struct {
	pool *pgxpool.Pool
}

// NewImageRepository constructs repository.
func NewImageRepository(pool *pgxpool.Pool) ImageRepository {
	return &imageRepository{pool: pool}
}

func (r *imageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Image, error) {
	const query = `
        SELECT id, ticket_id, storage_key, file_name, mime_type, size_bytes, created_at
        FROM ticket_images WHERE ticket_id=$1`
	rows, err := querier(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Image
	for rows.Next() {
		var image domain.Image
		if err := rows.Scan(
			&image.ID,
			&image.TicketID,
			&image.StorageKey,
			&image.FileName,
			&image.MimeType,
			&image.SizeBytes,
			&image.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, image)
	}
	return result, rows.Err()
}

func (r *imageRepository) DeleteByTicket(ctx context.Context, ticketID string) (int64, error) {
	cmd, err := querier(ctx, r.pool).Exec(ctx, `DELETE FROM ticket_images WHERE ticket_id=$1`, ticketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
