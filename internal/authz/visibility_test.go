package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/veritrail/veritrail/internal/directory"
)

type stubMembershipChecker struct {
	member bool
	err    error
}

func (s *stubMembershipChecker) HasMembership(ctx context.Context, auditID, principalID uuid.UUID) (bool, error) {
	return s.member, s.err
}

func TestPredicateScopes(t *testing.T) {
	f := NewVisibilityFilter(nil, nil)
	dept := uuid.New()

	admin := principal(directory.RoleSystemAdmin)
	require.Equal(t, ScopeAll, f.Predicate(admin).Scope)

	inactive := principal(directory.RoleSystemAdmin)
	inactive.Active = false
	require.Equal(t, ScopeNone, f.Predicate(inactive).Scope)

	manager := principal(directory.RoleAuditManager)
	manager.DepartmentID = dept
	vis := f.Predicate(manager)
	require.Equal(t, ScopeFiltered, vis.Scope)
	require.Equal(t, manager.ID, vis.ManagerID)
	require.Equal(t, manager.ID, vis.CreatorID)
	require.Equal(t, dept, vis.DepartmentID)
	require.Equal(t, uuid.Nil, vis.LeadID)

	auditor := principal(directory.RoleAuditor)
	vis = f.Predicate(auditor)
	require.Equal(t, ScopeFiltered, vis.Scope)
	require.Equal(t, auditor.ID, vis.LeadID)
	require.Equal(t, auditor.ID, vis.MemberID)
	require.Equal(t, uuid.Nil, vis.DepartmentID)

	viewer := principal(directory.RoleViewer)
	viewer.DepartmentID = dept
	vis = f.Predicate(viewer)
	require.Equal(t, ScopeFiltered, vis.Scope)
	require.Equal(t, dept, vis.DepartmentID)
	require.Equal(t, uuid.Nil, vis.MemberID)
}

func TestManagerSeesManagedCreatedAndDepartment(t *testing.T) {
	f := NewVisibilityFilter(&stubMembershipChecker{}, nil)
	dept := uuid.New()
	manager := principal(directory.RoleAuditManager)
	manager.DepartmentID = dept
	ctx := context.Background()

	managed := AuditRef{ID: uuid.New(), AssignedManager: manager.ID}
	created := AuditRef{ID: uuid.New(), CreatedBy: manager.ID}
	sameDept := AuditRef{ID: uuid.New(), DepartmentID: dept}
	unrelated := AuditRef{ID: uuid.New(), DepartmentID: uuid.New()}

	require.True(t, f.CanAccessAudit(ctx, manager, managed))
	require.True(t, f.CanAccessAudit(ctx, manager, created))
	require.True(t, f.CanAccessAudit(ctx, manager, sameDept))
	require.False(t, f.CanAccessAudit(ctx, manager, unrelated))
}

func TestAuditorSeesLedAndMemberAudits(t *testing.T) {
	memberships := &stubMembershipChecker{}
	f := NewVisibilityFilter(memberships, nil)
	auditor := principal(directory.RoleAuditor)
	ctx := context.Background()

	led := AuditRef{ID: uuid.New(), LeadAuditor: auditor.ID}
	require.True(t, f.CanAccessAudit(ctx, auditor, led))

	other := AuditRef{ID: uuid.New(), DepartmentID: uuid.New()}
	require.False(t, f.CanAccessAudit(ctx, auditor, other))

	memberships.member = true
	require.True(t, f.CanAccessAudit(ctx, auditor, other))
}

func TestDepartmentlessRecordNeverMatchesDepartmentClause(t *testing.T) {
	f := NewVisibilityFilter(&stubMembershipChecker{}, nil)
	viewer := principal(directory.RoleViewer)
	viewer.DepartmentID = uuid.New()

	noDept := AuditRef{ID: uuid.New()}
	require.False(t, f.CanAccessAudit(context.Background(), viewer, noDept))
}

func TestDepartmentlessViewerSeesNothing(t *testing.T) {
	f := NewVisibilityFilter(&stubMembershipChecker{member: true}, nil)
	viewer := principal(directory.RoleViewer)

	record := AuditRef{ID: uuid.New(), DepartmentID: uuid.New()}
	require.False(t, f.CanAccessAudit(context.Background(), viewer, record))
}

func TestMembershipCheckErrorDenies(t *testing.T) {
	f := NewVisibilityFilter(&stubMembershipChecker{err: errors.New("timeout")}, nil)
	auditor := principal(directory.RoleAuditor)

	record := AuditRef{ID: uuid.New()}
	require.False(t, f.CanAccessAudit(context.Background(), auditor, record))
}
