package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/veritrail/veritrail/internal/decisionlog"
	"github.com/veritrail/veritrail/internal/directory"
)

type memoryDecisionStore struct {
	entries   []decisionlog.Entry
	appendErr error
}

func (s *memoryDecisionStore) Append(ctx context.Context, entry decisionlog.Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestOverrideInsertsMembershipAndRecordsTwice(t *testing.T) {
	memberships := newMemoryMembershipStore()
	decisions := &memoryDecisionStore{}
	o := NewOverrider(memberships, decisionlog.NewRecorder(decisions, nil, nil), nil)

	admin := principal(directory.RoleSystemAdmin)
	target := principal(directory.RoleViewer)
	record := AuditRef{ID: uuid.New()}

	require.NoError(t, o.OverrideAuditAccess(context.Background(), admin, target, record, "regulator request #4411"))

	require.Len(t, memberships.rows, 1)
	require.Equal(t, RoleInAuditOverride, memberships.rows[0].RoleInAudit)
	require.Equal(t, target.ID, memberships.rows[0].PrincipalID)
	require.Equal(t, admin.ID, memberships.rows[0].AddedBy)

	require.Len(t, decisions.entries, 2)
	change, override := decisions.entries[0], decisions.entries[1]

	require.Equal(t, decisionlog.ActionUpdate, change.Action)
	require.Equal(t, "audit_team", change.ResourceType)

	require.Equal(t, decisionlog.ActionAdminOverride, override.Action)
	require.Equal(t, decisionlog.RiskHigh, override.Risk)
	require.True(t, override.SecurityEvent)
	require.Equal(t, "regulator request #4411", override.Context["reason"])
	require.Equal(t, false, override.Before["has_access"])
	require.Equal(t, true, override.After["has_access"])
}

func TestOverrideOnExistingMemberStillRecords(t *testing.T) {
	memberships := newMemoryMembershipStore()
	decisions := &memoryDecisionStore{}
	o := NewOverrider(memberships, decisionlog.NewRecorder(decisions, nil, nil), nil)

	admin := principal(directory.RoleSystemAdmin)
	target := principal(directory.RoleAuditor)
	record := AuditRef{ID: uuid.New()}
	memberships.rows = append(memberships.rows, TeamMembership{
		AuditID:     record.ID,
		PrincipalID: target.ID,
		RoleInAudit: "auditor",
	})

	require.NoError(t, o.OverrideAuditAccess(context.Background(), admin, target, record, "spot check"))

	// No duplicate row, but the override is still fully recorded.
	require.Len(t, memberships.rows, 1)
	require.Len(t, decisions.entries, 2)
	require.Equal(t, true, decisions.entries[1].Before["has_access"])
	require.Equal(t, true, decisions.entries[1].After["has_access"])
}
