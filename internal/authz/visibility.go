package authz

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/directory"
)

// MembershipChecker reports whether a team membership row exists for
// the given audit and principal, in any role.
type MembershipChecker interface {
	HasMembership(ctx context.Context, auditID, principalID uuid.UUID) (bool, error)
}

// VisibilityFilter computes which audit records a principal may
// enumerate or access.
type VisibilityFilter struct {
	memberships MembershipChecker
	logger      *slog.Logger
}

// NewVisibilityFilter constructs a VisibilityFilter.
func NewVisibilityFilter(memberships MembershipChecker, logger *slog.Logger) *VisibilityFilter {
	return &VisibilityFilter{memberships: memberships, logger: logger}
}

// Predicate returns the visibility rule for the principal. The clauses
// are independent and may be evaluated in any order; storage layers
// translate them to a disjunction.
func (f *VisibilityFilter) Predicate(p directory.Principal) Visibility {
	if !p.Active || p.Deleted {
		return Visibility{Scope: ScopeNone}
	}
	switch p.Role {
	case directory.RoleSystemAdmin:
		return Visibility{Scope: ScopeAll}
	case directory.RoleAuditManager:
		return Visibility{
			Scope:        ScopeFiltered,
			ManagerID:    p.ID,
			CreatorID:    p.ID,
			DepartmentID: p.DepartmentID,
		}
	case directory.RoleAuditor:
		return Visibility{
			Scope:    ScopeFiltered,
			LeadID:   p.ID,
			MemberID: p.ID,
		}
	case directory.RoleDepartmentHead, directory.RoleDepartmentOfficer, directory.RoleViewer:
		return Visibility{
			Scope:        ScopeFiltered,
			DepartmentID: p.DepartmentID,
		}
	}
	return Visibility{Scope: ScopeNone}
}

// CanAccessAudit applies the same rule to a single record. Storage
// errors while checking team membership deny.
func (f *VisibilityFilter) CanAccessAudit(ctx context.Context, p directory.Principal, record AuditRef) bool {
	vis := f.Predicate(p)
	switch vis.Scope {
	case ScopeAll:
		return true
	case ScopeNone:
		return false
	}
	if vis.ManagerID != uuid.Nil && record.AssignedManager == vis.ManagerID {
		return true
	}
	if vis.CreatorID != uuid.Nil && record.CreatedBy == vis.CreatorID {
		return true
	}
	if vis.LeadID != uuid.Nil && record.LeadAuditor == vis.LeadID {
		return true
	}
	if vis.DepartmentID != uuid.Nil && record.DepartmentID != uuid.Nil && record.DepartmentID == vis.DepartmentID {
		return true
	}
	if vis.MemberID != uuid.Nil && f.memberships != nil {
		member, err := f.memberships.HasMembership(ctx, record.ID, vis.MemberID)
		if err != nil {
			if f.logger != nil {
				f.logger.Warn("membership check failed, denying",
					slog.String("audit", record.ID.String()),
					slog.String("principal", vis.MemberID.String()),
					slog.Any("error", err))
			}
			return false
		}
		return member
	}
	return false
}
