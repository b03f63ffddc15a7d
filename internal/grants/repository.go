package grants

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritrail/veritrail/internal/authz"
	"github.com/veritrail/veritrail/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for role
// definitions and grants. A partial unique index on active grants
// closes the duplicate-grant race at the storage layer: a concurrent
// insert that slips past the service-level check surfaces here as
// ErrDuplicateGrant.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRoleDefinition inserts a new role definition.
func (r *Repository) CreateRoleDefinition(ctx context.Context, def RoleDefinition) (RoleDefinition, error) {
	caps, err := json.Marshal(capabilitiesToNames(def.Capabilities))
	if err != nil {
		return RoleDefinition{}, err
	}
	incompatible, err := json.Marshal(def.IncompatibleWith)
	if err != nil {
		return RoleDefinition{}, err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO role_definitions
(id, name, category, department_id, is_global, capabilities, incompatible_with, requires_dual_approval, max_grant_duration_secs, is_active, created_by, created_at)
VALUES ($1, $2, $3, NULLIF($4, '00000000-0000-0000-0000-000000000000'::uuid), $5, $6, $7, $8, $9, $10, $11, $12)`,
		def.ID, def.Name, def.Category, def.DepartmentID, def.Global, caps, incompatible,
		def.RequiresDualApproval, int64(def.MaxGrantDuration.Seconds()), def.Active, def.CreatedBy, def.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return RoleDefinition{}, shared.ErrValidation
		}
		return RoleDefinition{}, err
	}
	return def, nil
}

// GetRoleDefinition fetches a role definition by ID.
func (r *Repository) GetRoleDefinition(ctx context.Context, id uuid.UUID) (RoleDefinition, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, category, COALESCE(department_id, '00000000-0000-0000-0000-000000000000'), is_global, capabilities, incompatible_with, requires_dual_approval, max_grant_duration_secs, is_active, created_by, created_at
FROM role_definitions WHERE id = $1`, id)
	def, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleDefinition{}, shared.ErrNotFound
		}
		return RoleDefinition{}, err
	}
	return def, nil
}

// CreateGrant inserts a new role grant.
func (r *Repository) CreateGrant(ctx context.Context, g RoleGrant) (RoleGrant, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO role_grants
(id, principal_id, role_definition_id, effective_at, expires_at, reason, granted_by, requires_approval, approved, approved_by, approved_at, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, '00000000-0000-0000-0000-000000000000'::uuid), $11, $12, $13)`,
		g.ID, g.PrincipalID, g.RoleDefinitionID, g.EffectiveAt, g.ExpiresAt, g.Reason,
		g.GrantedBy, g.RequiresApproval, g.Approved, g.ApprovedBy, g.ApprovedAt, g.Active, g.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return RoleGrant{}, shared.ErrDuplicateGrant
		}
		return RoleGrant{}, err
	}
	return g, nil
}

// GetGrant fetches a grant by ID.
func (r *Repository) GetGrant(ctx context.Context, id uuid.UUID) (RoleGrant, error) {
	row := r.pool.QueryRow(ctx, grantSelect+` WHERE id = $1`, id)
	g, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleGrant{}, shared.ErrNotFound
		}
		return RoleGrant{}, err
	}
	return g, nil
}

// ApproveGrant persists the grant's approval state: the recorded
// approvers and whether approval is complete.
func (r *Repository) ApproveGrant(ctx context.Context, g RoleGrant) error {
	tag, err := r.pool.Exec(ctx, `UPDATE role_grants
SET approved = $2, approved_by = $3, approved_at = $4, second_approved_by = $5, second_approved_at = $6
WHERE id = $1`, g.ID, g.Approved, g.ApprovedBy, g.ApprovedAt, g.SecondApprovedBy, g.SecondApprovedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeactivateGrant clears the active flag and records who deactivated
// the grant and why.
func (r *Repository) DeactivateGrant(ctx context.Context, id, deactivatedBy uuid.UUID, at time.Time, reason string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE role_grants SET is_active = FALSE, deactivated_by = $2, deactivated_at = $3, deactivation_reason = $4
WHERE id = $1`, id, deactivatedBy, at, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListGrantsWithDefinitions returns every grant for the principal
// joined to its role definition, most recent first. Temporal filtering
// is left to the service so the clock stays injectable.
func (r *Repository) ListGrantsWithDefinitions(ctx context.Context, principalID uuid.UUID) ([]GrantWithDefinition, error) {
	rows, err := r.pool.Query(ctx, `SELECT
g.id, g.principal_id, g.role_definition_id, g.effective_at, g.expires_at, g.reason,
g.granted_by, g.requires_approval, g.approved, COALESCE(g.approved_by, '00000000-0000-0000-0000-000000000000'), g.approved_at,
COALESCE(g.second_approved_by, '00000000-0000-0000-0000-000000000000'), g.second_approved_at,
g.is_active, COALESCE(g.deactivated_by, '00000000-0000-0000-0000-000000000000'), g.deactivated_at, COALESCE(g.deactivation_reason, ''), g.created_at,
d.id, d.name, d.category, COALESCE(d.department_id, '00000000-0000-0000-0000-000000000000'), d.is_global, d.capabilities, d.incompatible_with, d.requires_dual_approval, d.max_grant_duration_secs, d.is_active, d.created_by, d.created_at
FROM role_grants g
JOIN role_definitions d ON d.id = g.role_definition_id
WHERE g.principal_id = $1
ORDER BY g.created_at DESC`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []GrantWithDefinition
	for rows.Next() {
		var item GrantWithDefinition
		var capsJSON, incompatibleJSON []byte
		var maxSecs int64
		if err := rows.Scan(
			&item.Grant.ID, &item.Grant.PrincipalID, &item.Grant.RoleDefinitionID, &item.Grant.EffectiveAt, &item.Grant.ExpiresAt, &item.Grant.Reason,
			&item.Grant.GrantedBy, &item.Grant.RequiresApproval, &item.Grant.Approved, &item.Grant.ApprovedBy, &item.Grant.ApprovedAt,
			&item.Grant.SecondApprovedBy, &item.Grant.SecondApprovedAt,
			&item.Grant.Active, &item.Grant.DeactivatedBy, &item.Grant.DeactivatedAt, &item.Grant.DeactivationReason, &item.Grant.CreatedAt,
			&item.Definition.ID, &item.Definition.Name, &item.Definition.Category, &item.Definition.DepartmentID, &item.Definition.Global,
			&capsJSON, &incompatibleJSON, &item.Definition.RequiresDualApproval, &maxSecs, &item.Definition.Active, &item.Definition.CreatedBy, &item.Definition.CreatedAt,
		); err != nil {
			return nil, err
		}
		item.Definition.MaxGrantDuration = time.Duration(maxSecs) * time.Second
		if item.Definition.Capabilities, err = capabilitiesFromJSON(capsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(incompatibleJSON, &item.Definition.IncompatibleWith); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

const grantSelect = `SELECT id, principal_id, role_definition_id, effective_at, expires_at, reason,
granted_by, requires_approval, approved, COALESCE(approved_by, '00000000-0000-0000-0000-000000000000'), approved_at,
COALESCE(second_approved_by, '00000000-0000-0000-0000-000000000000'), second_approved_at,
is_active, COALESCE(deactivated_by, '00000000-0000-0000-0000-000000000000'), deactivated_at, COALESCE(deactivation_reason, ''), created_at
FROM role_grants`

func scanGrant(row pgx.Row) (RoleGrant, error) {
	var g RoleGrant
	err := row.Scan(
		&g.ID, &g.PrincipalID, &g.RoleDefinitionID, &g.EffectiveAt, &g.ExpiresAt, &g.Reason,
		&g.GrantedBy, &g.RequiresApproval, &g.Approved, &g.ApprovedBy, &g.ApprovedAt,
		&g.SecondApprovedBy, &g.SecondApprovedAt,
		&g.Active, &g.DeactivatedBy, &g.DeactivatedAt, &g.DeactivationReason, &g.CreatedAt,
	)
	return g, err
}

func scanDefinition(row pgx.Row) (RoleDefinition, error) {
	var def RoleDefinition
	var capsJSON, incompatibleJSON []byte
	var maxSecs int64
	err := row.Scan(
		&def.ID, &def.Name, &def.Category, &def.DepartmentID, &def.Global,
		&capsJSON, &incompatibleJSON, &def.RequiresDualApproval, &maxSecs,
		&def.Active, &def.CreatedBy, &def.CreatedAt,
	)
	if err != nil {
		return RoleDefinition{}, err
	}
	def.MaxGrantDuration = time.Duration(maxSecs) * time.Second
	if def.Capabilities, err = capabilitiesFromJSON(capsJSON); err != nil {
		return RoleDefinition{}, err
	}
	if err := json.Unmarshal(incompatibleJSON, &def.IncompatibleWith); err != nil {
		return RoleDefinition{}, err
	}
	return def, nil
}

func capabilitiesToNames(caps map[authz.Capability]bool) map[string]bool {
	names := make(map[string]bool, len(caps))
	for c, allowed := range caps {
		names[string(c)] = allowed
	}
	return names
}

func capabilitiesFromJSON(data []byte) (map[authz.Capability]bool, error) {
	var names map[string]bool
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	caps := make(map[authz.Capability]bool, len(names))
	for name, allowed := range names {
		caps[authz.Capability(name)] = allowed
	}
	return caps, nil
}
