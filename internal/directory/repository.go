package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritrail/veritrail/internal/shared"
)

// Repository provides read-only PostgreSQL backed access to the
// directory. The authorization engine never writes principal or
// department rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPrincipal fetches a principal by ID.
func (r *Repository) GetPrincipal(ctx context.Context, id uuid.UUID) (Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, email, name, role, department_id, is_active, is_deleted, created_at, updated_at
FROM principals WHERE id = $1`, id)
	var p Principal
	var dept uuid.NullUUID
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Role, &dept, &p.Active, &p.Deleted, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, shared.ErrNotFound
		}
		return Principal{}, err
	}
	if dept.Valid {
		p.DepartmentID = dept.UUID
	}
	return p, nil
}

// GetPrincipals fetches the given principals, skipping IDs that do not
// resolve. Order of the result is unspecified.
func (r *Repository) GetPrincipals(ctx context.Context, ids []uuid.UUID) ([]Principal, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, email, name, role, department_id, is_active, is_deleted, created_at, updated_at
FROM principals WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var principals []Principal
	for rows.Next() {
		var p Principal
		var dept uuid.NullUUID
		if err := rows.Scan(&p.ID, &p.Email, &p.Name, &p.Role, &dept, &p.Active, &p.Deleted, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if dept.Valid {
			p.DepartmentID = dept.UUID
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}

// GetDepartment fetches a department by ID.
func (r *Repository) GetDepartment(ctx context.Context, id uuid.UUID) (Department, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(parent_id, '00000000-0000-0000-0000-000000000000')
FROM departments WHERE id = $1`, id)
	var d Department
	if err := row.Scan(&d.ID, &d.Name, &d.ParentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Department{}, shared.ErrNotFound
		}
		return Department{}, err
	}
	return d, nil
}
