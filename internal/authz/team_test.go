package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/veritrail/veritrail/internal/directory"
	"github.com/veritrail/veritrail/internal/shared"
)

type memoryMembershipStore struct {
	rows      []TeamMembership
	leads     map[uuid.UUID]uuid.UUID
	insertErr error
}

func newMemoryMembershipStore() *memoryMembershipStore {
	return &memoryMembershipStore{leads: make(map[uuid.UUID]uuid.UUID)}
}

func (s *memoryMembershipStore) HasMembership(ctx context.Context, auditID, principalID uuid.UUID) (bool, error) {
	for _, m := range s.rows {
		if m.AuditID == auditID && m.PrincipalID == principalID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryMembershipStore) InsertMembership(ctx context.Context, m TeamMembership) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.rows = append(s.rows, m)
	return nil
}

func (s *memoryMembershipStore) SetLeadAuditor(ctx context.Context, auditID, principalID uuid.UUID) error {
	s.leads[auditID] = principalID
	return nil
}

func TestCanManageTeam(t *testing.T) {
	a := NewTeamAuthorizer(newMemoryMembershipStore(), nil)
	record := AuditRef{ID: uuid.New(), AssignedManager: uuid.New(), CreatedBy: uuid.New()}

	require.True(t, a.CanManageTeam(principal(directory.RoleSystemAdmin), record))

	assigned := principal(directory.RoleAuditManager)
	assigned.ID = record.AssignedManager
	require.True(t, a.CanManageTeam(assigned, record))

	creator := principal(directory.RoleAuditManager)
	creator.ID = record.CreatedBy
	require.True(t, a.CanManageTeam(creator, record))

	// Another manager, even one sharing the record's department, may not.
	other := principal(directory.RoleAuditManager)
	other.DepartmentID = record.DepartmentID
	require.False(t, a.CanManageTeam(other, record))

	require.False(t, a.CanManageTeam(principal(directory.RoleAuditor), record))

	inactiveAdmin := principal(directory.RoleSystemAdmin)
	inactiveAdmin.Active = false
	require.False(t, a.CanManageTeam(inactiveAdmin, record))
}

func TestIsEligibleTeamMember(t *testing.T) {
	a := NewTeamAuthorizer(newMemoryMembershipStore(), nil)

	require.True(t, a.IsEligibleTeamMember(principal(directory.RoleAuditor)))
	require.True(t, a.IsEligibleTeamMember(principal(directory.RoleAuditManager)))
	require.False(t, a.IsEligibleTeamMember(principal(directory.RoleViewer)))
	require.False(t, a.IsEligibleTeamMember(principal(directory.RoleDepartmentHead)))

	suspended := principal(directory.RoleAuditor)
	suspended.Active = false
	require.False(t, a.IsEligibleTeamMember(suspended))
}

func TestAssignTeamSkipsIneligibleCandidates(t *testing.T) {
	store := newMemoryMembershipStore()
	a := NewTeamAuthorizer(store, nil)
	admin := principal(directory.RoleSystemAdmin)
	record := AuditRef{ID: uuid.New()}

	eligible1 := principal(directory.RoleAuditor)
	eligible2 := principal(directory.RoleAuditManager)
	viewer := principal(directory.RoleViewer)
	suspended := principal(directory.RoleAuditor)
	suspended.Active = false

	result, err := a.AssignTeam(context.Background(), admin, record,
		[]directory.Principal{eligible1, viewer, eligible2, suspended}, "")
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{eligible1.ID, eligible2.ID}, result.Assigned)
	require.ElementsMatch(t, []uuid.UUID{viewer.ID, suspended.ID}, result.Skipped)
	require.Len(t, store.rows, 2)
	require.Equal(t, "auditor", store.rows[0].RoleInAudit)
	require.Equal(t, admin.ID, store.rows[0].AddedBy)
}

func TestAssignTeamForbiddenCaller(t *testing.T) {
	a := NewTeamAuthorizer(newMemoryMembershipStore(), nil)
	record := AuditRef{ID: uuid.New()}

	_, err := a.AssignTeam(context.Background(), principal(directory.RoleAuditor), record,
		[]directory.Principal{principal(directory.RoleAuditor)}, "auditor")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAssignTeamStorageFailureStopsBatch(t *testing.T) {
	store := newMemoryMembershipStore()
	store.insertErr = errors.New("unavailable")
	a := NewTeamAuthorizer(store, nil)

	_, err := a.AssignTeam(context.Background(), principal(directory.RoleSystemAdmin), AuditRef{ID: uuid.New()},
		[]directory.Principal{principal(directory.RoleAuditor)}, "auditor")
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrForbidden)
}

func TestAssignLeadAuditor(t *testing.T) {
	store := newMemoryMembershipStore()
	a := NewTeamAuthorizer(store, nil)
	admin := principal(directory.RoleSystemAdmin)
	record := AuditRef{ID: uuid.New()}

	lead := principal(directory.RoleAuditor)
	require.NoError(t, a.AssignLeadAuditor(context.Background(), admin, record, lead))
	require.Equal(t, lead.ID, store.leads[record.ID])

	err := a.AssignLeadAuditor(context.Background(), admin, record, principal(directory.RoleViewer))
	require.ErrorIs(t, err, shared.ErrValidation)

	err = a.AssignLeadAuditor(context.Background(), principal(directory.RoleViewer), record, lead)
	require.ErrorIs(t, err, shared.ErrForbidden)
}
