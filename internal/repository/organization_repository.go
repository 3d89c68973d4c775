package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// OrganizationRepository manages tenant organizations.
type OrganizationRepository interface {
	Create(ctx context.Context, org *domain.Organization) error
	Update(ctx context.Context, org *domain.Organization) error
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	GetByCode(ctx context.Context, code string) (*domain.Organization, error)
	List(ctx context.Context) ([]domain.Organization, error)
}

type organizationRepository struct {
	pool *pgxpool.Pool
}

// NewOrganizationRepository instantiates repository.
func NewOrganizationRepository(pool *pgxpool.Pool) OrganizationRepository {
	return &organizationRepository{pool: pool}
}

func (r *organizationRepository) Create(ctx context.Context, org *domain.Organization) error {
	const query = `
        INSERT INTO organizations (name, code, active)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, org.Name, org.Code, org.Active).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
}

func (r *organizationRepository) Update(ctx context.Context, org *domain.Organization) error {
	const query = `
        UPDATE organizations SET name=$1, code=$2, active=$3, updated_at=NOW()
        WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query, org.Name, org.Code, org.Active, org.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *organizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	const query = `
        SELECT id, name, code, active, created_at, updated_at
        FROM organizations WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *organizationRepository) GetByCode(ctx context.Context, code string) (*domain.Organization, error) {
	const query = `
        SELECT id, name, code, active, created_at, updated_at
        FROM organizations WHERE code=$1`
	return r.fetchSingle(ctx, query, code)
}

func (r *organizationRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Organization, error) {
	var org domain.Organization
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&org.ID,
		&org.Name,
		&org.Code,
		&org.Active,
		&org.CreatedAt,
		&org.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *organizationRepository) List(ctx context.Context) ([]domain.Organization, error) {
	const query = `
        SELECT id, name, code, active, created_at, updated_at
        FROM organizations ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(
			&org.ID,
			&org.Name,
			&org.Code,
			&org.Active,
			&org.CreatedAt,
			&org.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, org)
	}
	return result, rows.Err()
}
