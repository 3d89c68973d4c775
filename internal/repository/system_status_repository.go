package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// SystemStatusRepository manages status-page entries.
type SystemStatusRepository interface {
	Create(ctx context.Context, status *domain.SystemStatus) error
	Update(ctx context.Context, status *domain.SystemStatus) error
	GetByID(ctx context.Context, id string) (*domain.SystemStatus, error)
	GetByServiceName(ctx context.Context, name string) (*domain.SystemStatus, error)
	List(ctx context.Context) ([]domain.SystemStatus, error)
}

type systemStatusRepository struct {
	pool *pgxpool.Pool
}

// NewSystemStatusRepository instantiates repository.
func NewSystemStatusRepository(pool *pgxpool.Pool) SystemStatusRepository {
	return &systemStatusRepository{pool: pool}
}

func (r *systemStatusRepository) Create(ctx context.Context, status *domain.SystemStatus) error {
	const query = `
        INSERT INTO system_status
            (service_name, status, description, affected_organizations, incident_start, incident_end, last_checked, uptime)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		status.ServiceName,
		status.Status,
		status.Description,
		status.AffectedOrganizations,
		status.IncidentStart,
		status.IncidentEnd,
		status.LastChecked,
		status.Uptime,
	).Scan(&status.ID, &status.CreatedAt, &status.UpdatedAt)
}

func (r *systemStatusRepository) Update(ctx context.Context, status *domain.SystemStatus) error {
	const query = `
        UPDATE system_status SET
            status=$1, description=$2, affected_organizations=$3,
            incident_start=$4, incident_end=$5, last_checked=$6, uptime=$7,
            updated_at=NOW()
        WHERE id=$8`
	cmd, err := r.pool.Exec(ctx, query,
		status.Status,
		status.Description,
		status.AffectedOrganizations,
		status.IncidentStart,
		status.IncidentEnd,
		status.LastChecked,
		status.Uptime,
		status.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *systemStatusRepository) GetByID(ctx context.Context, id string) (*domain.SystemStatus, error) {
	return r.fetchSingle(ctx, selectSystemStatus+` WHERE id=$1`, id)
}

func (r *systemStatusRepository) GetByServiceName(ctx context.Context, name string) (*domain.SystemStatus, error) {
	return r.fetchSingle(ctx, selectSystemStatus+` WHERE service_name=$1`, name)
}

const selectSystemStatus = `
    SELECT id, service_name, status, description, affected_organizations,
           incident_start, incident_end, last_checked, uptime, created_at, updated_at
    FROM system_status`

func (r *systemStatusRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.SystemStatus, error) {
	var status domain.SystemStatus
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&status.ID,
		&status.ServiceName,
		&status.Status,
		&status.Description,
		&status.AffectedOrganizations,
		&status.IncidentStart,
		&status.IncidentEnd,
		&status.LastChecked,
		&status.Uptime,
		&status.CreatedAt,
		&status.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *systemStatusRepository) List(ctx context.Context) ([]domain.SystemStatus, error) {
	rows, err := r.pool.Query(ctx, selectSystemStatus+` ORDER BY service_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SystemStatus
	for rows.Next() {
		var status domain.SystemStatus
		if err := rows.Scan(
			&status.ID,
			&status.ServiceName,
			&status.Status,
			&status.Description,
			&status.AffectedOrganizations,
			&status.IncidentStart,
			&status.IncidentEnd,
			&status.LastChecked,
			&status.Uptime,
			&status.CreatedAt,
			&status.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, status)
	}
	return result, rows.Err()
}
