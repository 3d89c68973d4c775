package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// RequestFilter captures listing parameters for requests and tickets.
type RequestFilter struct {
	Kind           *domain.RequestKind
	OrganizationID *string
	RequesterID    *string
	AssigneeID     *string
	Statuses       []domain.RequestStatus
	Priorities     []domain.RequestPriority
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}

// RequestStats aggregates counts for the dashboard endpoint.
type RequestStats struct {
	ByStatus   map[domain.RequestStatus]int64
	ByPriority map[domain.RequestPriority]int64
	Recent     []domain.Request
}

// RequestRepository encapsulates request/ticket persistence.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	Update(ctx context.Context, req *domain.Request) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	GetByTicketNumber(ctx context.Context, number string) (*domain.Request, error)
	Delete(ctx context.Context, id string) error
	ListWithFilter(ctx context.Context, filter RequestFilter) ([]domain.Request, error)
	Stats(ctx context.Context, kind domain.RequestKind, organizationID *string, recentLimit int) (*RequestStats, error)
}

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository instantiates repository.
func NewRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &requestRepository{pool: pool}
}

const requestColumns = `id, ticket_number, kind, organization_id, requester_id, assignee_id,
               request_type, affected_systems, category, rating, feedback, tags,
               title, description, notes, priority, status,
               estimated_completion, actual_completion, completed_at, cancelled_at, cancellation_reason,
               created_at, updated_at`

func (r *requestRepository) Create(ctx context.Context, req *domain.Request) error {
	const query = `
        INSERT INTO requests (ticket_number, kind, organization_id, requester_id, assignee_id,
            request_type, affected_systems, category, rating, feedback, tags,
            title, description, notes, priority, status, estimated_completion)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		req.TicketNumber,
		req.Kind,
		req.OrganizationID,
		req.RequesterID,
		req.AssigneeID,
		req.RequestType,
		req.AffectedSystems,
		req.Category,
		req.Rating,
		req.Feedback,
		req.Tags,
		req.Title,
		req.Description,
		req.Notes,
		req.Priority,
		req.Status,
		req.EstimatedCompletion,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

func (r *requestRepository) Update(ctx context.Context, req *domain.Request) error {
	const query = `
        UPDATE requests SET assignee_id=$1, request_type=$2, affected_systems=$3, category=$4,
            rating=$5, feedback=$6, tags=$7, title=$8, description=$9, notes=$10,
            priority=$11, status=$12, estimated_completion=$13, actual_completion=$14,
            completed_at=$15, cancelled_at=$16, cancellation_reason=$17, updated_at=NOW()
        WHERE id=$18`
	cmd, err := r.pool.Exec(ctx, query,
		req.AssigneeID,
		req.RequestType,
		req.AffectedSystems,
		req.Category,
		req.Rating,
		req.Feedback,
		req.Tags,
		req.Title,
		req.Description,
		req.Notes,
		req.Priority,
		req.Status,
		req.EstimatedCompletion,
		req.ActualCompletion,
		req.CompletedAt,
		req.CancelledAt,
		req.CancellationReason,
		req.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *requestRepository) GetByTicketNumber(ctx context.Context, number string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE ticket_number=$1`
	return r.fetchSingle(ctx, query, number)
}

func (r *requestRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM requests WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *requestRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Request, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *requestRepository) ListWithFilter(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	base := `SELECT ` + requestColumns + ` FROM requests`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.OrganizationID != nil {
		args = append(args, *filter.OrganizationID)
		clauses = append(clauses, fmt.Sprintf("organization_id=$%d", len(args)))
	}
	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
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

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *requestRepository) Stats(ctx context.Context, kind domain.RequestKind, organizationID *string, recentLimit int) (*RequestStats, error) {
	stats := &RequestStats{
		ByStatus:   make(map[domain.RequestStatus]int64),
		ByPriority: make(map[domain.RequestPriority]int64),
	}

	args := []any{kind}
	scope := "kind=$1"
	if organizationID != nil {
		args = append(args, *organizationID)
		scope += fmt.Sprintf(" AND organization_id=$%d", len(args))
	}

	statusQuery := `SELECT status, COUNT(*) FROM requests WHERE ` + scope + ` GROUP BY status`
	rows, err := r.pool.Query(ctx, statusQuery, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status domain.RequestStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	priorityQuery := `SELECT priority, COUNT(*) FROM requests WHERE ` + scope + ` GROUP BY priority`
	rows, err = r.pool.Query(ctx, priorityQuery, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var priority domain.RequestPriority
		var count int64
		if err := rows.Scan(&priority, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByPriority[priority] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if recentLimit <= 0 {
		recentLimit = 5
	}
	recentQuery := fmt.Sprintf(`SELECT %s FROM requests WHERE %s ORDER BY created_at DESC LIMIT %d`,
		requestColumns, scope, recentLimit)
	rows, err = r.pool.Query(ctx, recentQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recent, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	stats.Recent = recent
	return stats, nil
}

func scanRequests(rows pgx.Rows) ([]domain.Request, error) {
	var result []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	if err := row.Scan(
		&req.ID,
		&req.TicketNumber,
		&req.Kind,
		&req.OrganizationID,
		&req.RequesterID,
		&req.AssigneeID,
		&req.RequestType,
		&req.AffectedSystems,
		&req.Category,
		&req.Rating,
		&req.Feedback,
		&req.Tags,
		&req.Title,
		&req.Description,
		&req.Notes,
		&req.Priority,
		&req.Status,
		&req.EstimatedCompletion,
		&req.ActualCompletion,
		&req.CompletedAt,
		&req.CancelledAt,
		&req.CancellationReason,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}
