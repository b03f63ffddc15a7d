package audits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritrail/veritrail/internal/authz"
	"github.com/veritrail/veritrail/internal/shared"
)

// Repository provides PostgreSQL backed persistence for audit records
// and team memberships. It implements authz.MembershipStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const auditColumns = `id, title, status,
COALESCE(created_by, '00000000-0000-0000-0000-000000000000'),
COALESCE(assigned_manager, '00000000-0000-0000-0000-000000000000'),
COALESCE(lead_auditor, '00000000-0000-0000-0000-000000000000'),
COALESCE(department_id, '00000000-0000-0000-0000-000000000000'),
team_competency_verified, created_at, updated_at`

// GetAudit fetches an audit record by ID.
func (r *Repository) GetAudit(ctx context.Context, id uuid.UUID) (AuditRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+auditColumns+` FROM audits WHERE id = $1`, id)
	record, err := scanAudit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuditRecord{}, shared.ErrNotFound
		}
		return AuditRecord{}, err
	}
	return record, nil
}

// ListVisible returns audits matching the visibility rule, newest
// first. The clauses translate to a disjunction in SQL; departmentless
// records are excluded from the department clause by the equality test
// against a concrete UUID.
func (r *Repository) ListVisible(ctx context.Context, vis authz.Visibility) ([]AuditRecord, error) {
	switch vis.Scope {
	case authz.ScopeNone:
		return nil, nil
	case authz.ScopeAll:
		return r.listAudits(ctx, `SELECT `+auditColumns+` FROM audits ORDER BY created_at DESC`)
	}

	var clauses []string
	var args []any
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if vis.ManagerID != uuid.Nil {
		clauses = append(clauses, "assigned_manager = "+arg(vis.ManagerID))
	}
	if vis.CreatorID != uuid.Nil {
		clauses = append(clauses, "created_by = "+arg(vis.CreatorID))
	}
	if vis.LeadID != uuid.Nil {
		clauses = append(clauses, "lead_auditor = "+arg(vis.LeadID))
	}
	if vis.DepartmentID != uuid.Nil {
		clauses = append(clauses, "department_id = "+arg(vis.DepartmentID))
	}
	if vis.MemberID != uuid.Nil {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM team_memberships m WHERE m.audit_id = audits.id AND m.principal_id = "+arg(vis.MemberID)+")")
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + auditColumns + ` FROM audits WHERE ` + strings.Join(clauses, " OR ") + ` ORDER BY created_at DESC`
	return r.listAudits(ctx, query, args...)
}

// SetLeadAuditor designates the lead auditor and flags the record's
// team competency as verified.
func (r *Repository) SetLeadAuditor(ctx context.Context, auditID, principalID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE audits SET lead_auditor = $2, team_competency_verified = TRUE, updated_at = NOW()
WHERE id = $1`, auditID, principalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HasMembership reports whether any membership row exists for the
// audit/principal pair.
func (r *Repository) HasMembership(ctx context.Context, auditID, principalID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM team_memberships WHERE audit_id = $1 AND principal_id = $2)`,
		auditID, principalID).Scan(&exists)
	return exists, err
}

// InsertMembership appends a membership row. Rows are insert-only; a
// re-insert of the same (audit, principal, role) triple is a no-op.
func (r *Repository) InsertMembership(ctx context.Context, m authz.TeamMembership) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO team_memberships (audit_id, principal_id, role_in_audit, added_by, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (audit_id, principal_id, role_in_audit) DO NOTHING`,
		m.AuditID, m.PrincipalID, m.RoleInAudit, m.AddedBy, m.CreatedAt)
	return err
}

// ListMemberships returns the team roster for an audit.
func (r *Repository) ListMemberships(ctx context.Context, auditID uuid.UUID) ([]authz.TeamMembership, error) {
	rows, err := r.pool.Query(ctx, `SELECT audit_id, principal_id, role_in_audit, added_by, created_at
FROM team_memberships WHERE audit_id = $1 ORDER BY created_at ASC`, auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var memberships []authz.TeamMembership
	for rows.Next() {
		var m authz.TeamMembership
		if err := rows.Scan(&m.AuditID, &m.PrincipalID, &m.RoleInAudit, &m.AddedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (r *Repository) listAudits(ctx context.Context, query string, args ...any) ([]AuditRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []AuditRecord
	for rows.Next() {
		record, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanAudit(row pgx.Row) (AuditRecord, error) {
	var a AuditRecord
	err := row.Scan(&a.ID, &a.Title, &a.Status, &a.CreatedBy, &a.AssignedManager, &a.LeadAuditor,
		&a.DepartmentID, &a.TeamCompetencyVerified, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
