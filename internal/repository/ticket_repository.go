package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sla-engine/internal/domain"
)

// ErrVersionConflict is returned when a ticket changed between read and write.
var ErrVersionConflict = errors.New("ticket version conflict")

// Sort orders accepted by ListWithFilter.
const (
	SortCreatedDesc = "created_desc"
	SortCreatedAsc  = "created_asc"
	SortUpdatedDesc = "updated_desc"
	SortUpdatedAsc  = "updated_asc"
)

var sortClauses = map[string]string{
	SortCreatedDesc: "created_at DESC, id DESC",
	SortCreatedAsc:  "created_at ASC, id ASC",
	SortUpdatedDesc: "updated_at DESC, id DESC",
	SortUpdatedAsc:  "updated_at ASC, id ASC",
}

// ValidSort reports whether sort is a known listing order.
func ValidSort(sort string) bool {
	_, ok := sortClauses[sort]
	return ok
}

// TicketFilter captures listing predicates.
type TicketFilter struct {
	RequesterID     *string
	DepartmentID    *string
	CategoryID      *string
	AssigneeID      *string
	Statuses        []domain.TicketStatus
	Priorities      []domain.Priority
	SearchTerm      *string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	IncludeArchived bool
	// ViolatedAt selects tickets whose resolution deadline passed before it
	// while still in an SLA-bearing status.
	ViolatedAt *time.Time
	Sort       string
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes ticket if its stored version still equals ticket.Version,
	// then bumps ticket.Version. Otherwise it returns ErrVersionConflict.
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	ListArchivedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error)
	Delete(ctx context.Context, id string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, code, requester_id, department_id, category_id, assignee_id,
               title, description, status, priority, sla_policy_id, sla_started_at,
               response_due_at, resolution_due_at, violated, archived, version, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (code, requester_id, department_id, category_id, assignee_id, title, description,
            status, priority, sla_policy_id, sla_started_at, response_due_at, resolution_due_at, violated, archived)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, version, created_at, updated_at`
	return querier(ctx, r.pool).QueryRow(ctx, query,
		ticket.Code,
		ticket.RequesterID,
		ticket.DepartmentID,
		ticket.CategoryID,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.SLAPolicyID,
		ticket.SLAStartedAt,
		ticket.ResponseDueAt,
		ticket.ResolutionDueAt,
		ticket.Violated,
		ticket.Archived,
	).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET department_id=$1, category_id=$2, assignee_id=$3, title=$4, description=$5,
            status=$6, priority=$7, sla_policy_id=$8, sla_started_at=$9, response_due_at=$10,
            resolution_due_at=$11, violated=$12, archived=$13, version=version+1, updated_at=NOW()
        WHERE id=$14 AND version=$15
        RETURNING version, updated_at`
	err := querier(ctx, r.pool).QueryRow(ctx, query,
		ticket.DepartmentID,
		ticket.CategoryID,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.SLAPolicyID,
		ticket.SLAStartedAt,
		ticket.ResponseDueAt,
		ticket.ResolutionDueAt,
		ticket.Violated,
		ticket.Archived,
		ticket.ID,
		ticket.Version,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var exists bool
	if err := querier(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return ErrVersionConflict
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	row := querier(ctx, r.pool).QueryRow(ctx, query, id)
	ticket, err := scanTicket(row)
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := buildTicketWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	order, ok := sortClauses[filter.Sort]
	if !ok {
		order = sortClauses[SortCreatedDesc]
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		ticketColumns, where, order, limit, offset)

	rows, err := querier(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	where, args := buildTicketWhere(filter)
	var total int
	err := querier(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&total)
	return total, err
}

func (r *ticketRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE created_at >= $1 AND created_at < $2`
	var total int
	err := querier(ctx, r.pool).QueryRow(ctx, query, from, to).Scan(&total)
	return total, err
}

func (r *ticketRepository) ListArchivedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE archived = TRUE AND updated_at < $1 ORDER BY updated_at ASC LIMIT $2`
	rows, err := querier(ctx, r.pool).Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := querier(ctx, r.pool).Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func buildTicketWhere(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if !filter.IncludeArchived {
		clauses = append(clauses, "archived = FALSE")
	}
	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		clauses = append(clauses, fmt.Sprintf("category_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.ViolatedAt != nil {
		args = append(args, *filter.ViolatedAt)
		clauses = append(clauses, fmt.Sprintf(
			"resolution_due_at < $%d AND status NOT IN ('RESOLVED','CLOSED','CANCELED')", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s OR LOWER(code) LIKE %s)",
			placeholder, placeholder, placeholder))
	}
	return strings.Join(clauses, " AND "), args
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Code,
		&ticket.RequesterID,
		&ticket.DepartmentID,
		&ticket.CategoryID,
		&ticket.AssigneeID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.SLAPolicyID,
		&ticket.SLAStartedAt,
		&ticket.ResponseDueAt,
		&ticket.ResolutionDueAt,
		&ticket.Violated,
		&ticket.Archived,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
