package grants

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/veritrail/veritrail/internal/authz"
	"github.com/veritrail/veritrail/internal/decisionlog"
	"github.com/veritrail/veritrail/internal/directory"
	"github.com/veritrail/veritrail/internal/shared"
)

type memoryGrantRepo struct {
	definitions map[uuid.UUID]RoleDefinition
	grants      map[uuid.UUID]RoleGrant
	listErr     error
}

func newMemoryGrantRepo() *memoryGrantRepo {
	return &memoryGrantRepo{
		definitions: make(map[uuid.UUID]RoleDefinition),
		grants:      make(map[uuid.UUID]RoleGrant),
	}
}

func (r *memoryGrantRepo) CreateRoleDefinition(ctx context.Context, def RoleDefinition) (RoleDefinition, error) {
	r.definitions[def.ID] = def
	return def, nil
}

func (r *memoryGrantRepo) GetRoleDefinition(ctx context.Context, id uuid.UUID) (RoleDefinition, error) {
	def, ok := r.definitions[id]
	if !ok {
		return RoleDefinition{}, shared.ErrNotFound
	}
	return def, nil
}

func (r *memoryGrantRepo) CreateGrant(ctx context.Context, g RoleGrant) (RoleGrant, error) {
	// Mirrors the partial unique index on live grants.
	for _, existing := range r.grants {
		if existing.Active && existing.PrincipalID == g.PrincipalID && existing.RoleDefinitionID == g.RoleDefinitionID {
			return RoleGrant{}, shared.ErrDuplicateGrant
		}
	}
	r.grants[g.ID] = g
	return g, nil
}

func (r *memoryGrantRepo) GetGrant(ctx context.Context, id uuid.UUID) (RoleGrant, error) {
	g, ok := r.grants[id]
	if !ok {
		return RoleGrant{}, shared.ErrNotFound
	}
	return g, nil
}

func (r *memoryGrantRepo) ApproveGrant(ctx context.Context, g RoleGrant) error {
	if _, ok := r.grants[g.ID]; !ok {
		return shared.ErrNotFound
	}
	r.grants[g.ID] = g
	return nil
}

func (r *memoryGrantRepo) DeactivateGrant(ctx context.Context, id, deactivatedBy uuid.UUID, at time.Time, reason string) error {
	g, ok := r.grants[id]
	if !ok {
		return shared.ErrNotFound
	}
	g.Active = false
	g.DeactivatedBy = deactivatedBy
	g.DeactivatedAt = &at
	g.DeactivationReason = reason
	r.grants[id] = g
	return nil
}

func (r *memoryGrantRepo) ListGrantsWithDefinitions(ctx context.Context, principalID uuid.UUID) ([]GrantWithDefinition, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var items []GrantWithDefinition
	for _, g := range r.grants {
		if g.PrincipalID != principalID {
			continue
		}
		items = append(items, GrantWithDefinition{Grant: g, Definition: r.definitions[g.RoleDefinitionID]})
	}
	return items, nil
}

type memoryDecisionStore struct {
	entries []decisionlog.Entry
}

func (s *memoryDecisionStore) Append(ctx context.Context, entry decisionlog.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

var testClock = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *memoryGrantRepo) (*Service, *memoryDecisionStore) {
	decisions := &memoryDecisionStore{}
	svc := NewService(repo, nil, decisionlog.NewRecorder(decisions, nil, nil), nil).
		WithClock(func() time.Time { return testClock })
	return svc, decisions
}

func admin() directory.Principal {
	return directory.Principal{ID: uuid.New(), Role: directory.RoleSystemAdmin, Active: true}
}

func manager() directory.Principal {
	return directory.Principal{ID: uuid.New(), Role: directory.RoleAuditManager, Active: true}
}

func mustDefinition(t *testing.T, svc *Service, mutate func(*RoleDefinition)) RoleDefinition {
	t.Helper()
	def := RoleDefinition{
		Name:         "compliance-exporter",
		Category:     "reporting",
		Global:       true,
		Capabilities: map[authz.Capability]bool{authz.CapExportData: true},
	}
	if mutate != nil {
		mutate(&def)
	}
	created, err := svc.CreateRoleDefinition(context.Background(), admin(), def)
	require.NoError(t, err)
	return created
}

func TestCreateRoleDefinitionValidation(t *testing.T) {
	svc, _ := newTestService(newMemoryGrantRepo())
	ctx := context.Background()
	base := RoleDefinition{
		Name:         "exporter",
		Global:       true,
		Capabilities: map[authz.Capability]bool{authz.CapExportData: true},
	}

	_, err := svc.CreateRoleDefinition(ctx, manager(), base)
	require.ErrorIs(t, err, shared.ErrForbidden)

	bad := base
	bad.Capabilities = map[authz.Capability]bool{"teleport": true}
	_, err = svc.CreateRoleDefinition(ctx, admin(), bad)
	require.ErrorIs(t, err, shared.ErrValidation)

	bad = base
	bad.Capabilities = nil
	_, err = svc.CreateRoleDefinition(ctx, admin(), bad)
	require.ErrorIs(t, err, shared.ErrValidation)

	bad = base
	bad.DepartmentID = uuid.New()
	_, err = svc.CreateRoleDefinition(ctx, admin(), bad)
	require.ErrorIs(t, err, shared.ErrValidation)

	bad = base
	bad.Global = false
	_, err = svc.CreateRoleDefinition(ctx, admin(), bad)
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.CreateRoleDefinition(ctx, admin(), base)
	require.NoError(t, err)
	require.True(t, created.Active)
	require.NotEqual(t, uuid.Nil, created.ID)
}

func TestGrantRoleAutoApprovedForSystemAdmin(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, decisions := newTestService(repo)
	def := mustDefinition(t, svc, nil)
	issuer := admin()

	grant, err := svc.GrantRole(context.Background(), issuer, uuid.New(), def.ID, Window{}, "quarter-end reporting")
	require.NoError(t, err)
	require.True(t, grant.Approved)
	require.False(t, grant.RequiresApproval)
	require.Equal(t, issuer.ID, grant.ApprovedBy)
	require.True(t, grant.ActiveAt(testClock))

	last := decisions.entries[len(decisions.entries)-1]
	require.Equal(t, decisionlog.ActionGrantRole, last.Action)
	require.Equal(t, decisionlog.RiskMedium, last.Risk)
}

func TestGrantRoleByDelegateStaysPending(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, nil)

	grant, err := svc.GrantRole(context.Background(), manager(), uuid.New(), def.ID, Window{}, "coverage")
	require.NoError(t, err)
	require.True(t, grant.RequiresApproval)
	require.False(t, grant.Approved)
	// Pending grants confer nothing even inside their window.
	require.False(t, grant.ActiveAt(testClock))
}

func TestGrantRoleRejectsDuplicateActiveGrant(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, nil)
	subject := uuid.New()

	_, err := svc.GrantRole(context.Background(), admin(), subject, def.ID, Window{}, "first")
	require.NoError(t, err)

	_, err = svc.GrantRole(context.Background(), admin(), subject, def.ID, Window{}, "second")
	require.ErrorIs(t, err, shared.ErrDuplicateGrant)
}

func TestGrantRoleAllowsRegrantAfterExpiry(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, nil)
	subject := uuid.New()

	expired := testClock.Add(-time.Hour)
	grant := RoleGrant{
		ID:               uuid.New(),
		PrincipalID:      subject,
		RoleDefinitionID: def.ID,
		EffectiveAt:      testClock.Add(-48 * time.Hour),
		ExpiresAt:        &expired,
		Approved:         true,
		Active:           false,
	}
	repo.grants[grant.ID] = grant

	_, err := svc.GrantRole(context.Background(), admin(), subject, def.ID, Window{}, "renewal")
	require.NoError(t, err)
}

func TestGrantRoleEnforcesMaxDuration(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, func(d *RoleDefinition) {
		d.MaxGrantDuration = 30 * 24 * time.Hour
	})
	ctx := context.Background()

	_, err := svc.GrantRole(ctx, admin(), uuid.New(), def.ID, Window{}, "no expiry")
	require.ErrorIs(t, err, shared.ErrValidation)

	tooLong := testClock.Add(60 * 24 * time.Hour)
	_, err = svc.GrantRole(ctx, admin(), uuid.New(), def.ID, Window{ExpiresAt: &tooLong}, "too long")
	require.ErrorIs(t, err, shared.ErrValidation)

	ok := testClock.Add(14 * 24 * time.Hour)
	_, err = svc.GrantRole(ctx, admin(), uuid.New(), def.ID, Window{ExpiresAt: &ok}, "two weeks")
	require.NoError(t, err)
}

func TestGrantRoleRejectsInvertedWindow(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, nil)

	before := testClock.Add(-time.Hour)
	_, err := svc.GrantRole(context.Background(), admin(), uuid.New(), def.ID,
		Window{EffectiveAt: testClock, ExpiresAt: &before}, "inverted")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGrantRoleSegregationOfDuties(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	requester := mustDefinition(t, svc, func(d *RoleDefinition) { d.Name = "payment-requester" })
	approverDef := mustDefinition(t, svc, func(d *RoleDefinition) {
		d.Name = "payment-approver"
		d.IncompatibleWith = []uuid.UUID{requester.ID}
	})
	subject := uuid.New()
	ctx := context.Background()

	_, err := svc.GrantRole(ctx, admin(), subject, requester.ID, Window{}, "baseline")
	require.NoError(t, err)

	_, err = svc.GrantRole(ctx, admin(), subject, approverDef.ID, Window{}, "conflict")
	require.ErrorIs(t, err, shared.ErrValidation)

	// The incompatibility is symmetric even when only one definition
	// declares it.
	other := uuid.New()
	_, err = svc.GrantRole(ctx, admin(), other, approverDef.ID, Window{}, "baseline")
	require.NoError(t, err)
	_, err = svc.GrantRole(ctx, admin(), other, requester.ID, Window{}, "conflict")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGrantRoleRejectsInactiveDefinition(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, nil)
	stored := repo.definitions[def.ID]
	stored.Active = false
	repo.definitions[def.ID] = stored

	_, err := svc.GrantRole(context.Background(), admin(), uuid.New(), def.ID, Window{}, "late")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApproveGrant(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, decisions := newTestService(repo)
	def := mustDefinition(t, svc, nil)
	issuer := manager()
	ctx := context.Background()

	pending, err := svc.GrantRole(ctx, issuer, uuid.New(), def.ID, Window{}, "coverage")
	require.NoError(t, err)

	_, err = svc.ApproveGrant(ctx, issuer, pending.ID)
	require.ErrorIs(t, err, shared.ErrValidation, "self-approval must be rejected")

	approved, err := svc.ApproveGrant(ctx, admin(), pending.ID)
	require.NoError(t, err)
	require.True(t, approved.Approved)
	require.True(t, approved.ActiveAt(testClock))

	_, err = svc.ApproveGrant(ctx, admin(), pending.ID)
	require.ErrorIs(t, err, shared.ErrValidation, "double approval must be rejected")

	last := decisions.entries[len(decisions.entries)-1]
	require.Equal(t, decisionlog.ActionApproveGrant, last.Action)
}

func TestApproveGrantDualApproval(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, func(d *RoleDefinition) {
		d.Name = "ledger-closer"
		d.RequiresDualApproval = true
	})
	ctx := context.Background()

	pending, err := svc.GrantRole(ctx, manager(), uuid.New(), def.ID, Window{}, "period close")
	require.NoError(t, err)

	first := manager()
	once, err := svc.ApproveGrant(ctx, first, pending.ID)
	require.NoError(t, err)
	require.False(t, once.Approved, "one approval must not activate a dual-approval grant")
	require.Equal(t, first.ID, once.ApprovedBy)
	require.False(t, once.ActiveAt(testClock))

	_, err = svc.ApproveGrant(ctx, first, pending.ID)
	require.ErrorIs(t, err, shared.ErrValidation, "same approver cannot supply both approvals")

	second := manager()
	done, err := svc.ApproveGrant(ctx, second, pending.ID)
	require.NoError(t, err)
	require.True(t, done.Approved)
	require.Equal(t, second.ID, done.SecondApprovedBy)
	require.True(t, done.ActiveAt(testClock))
}

func TestApproveDeactivatedGrant(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, nil)
	ctx := context.Background()

	pending, err := svc.GrantRole(ctx, manager(), uuid.New(), def.ID, Window{}, "coverage")
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateGrant(ctx, admin(), pending.ID, "withdrawn"))

	_, err = svc.ApproveGrant(ctx, admin(), pending.ID)
	require.ErrorIs(t, err, shared.ErrGrantNotActive)
}

func TestDeactivateGrant(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, nil)
	actor := admin()
	ctx := context.Background()

	grant, err := svc.GrantRole(ctx, actor, uuid.New(), def.ID, Window{}, "temp")
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateGrant(ctx, actor, grant.ID, "no longer needed"))
	stored := repo.grants[grant.ID]
	require.False(t, stored.Active)
	require.Equal(t, "no longer needed", stored.DeactivationReason)

	err = svc.DeactivateGrant(ctx, actor, grant.ID, "again")
	require.ErrorIs(t, err, shared.ErrGrantNotActive)
}

func TestActiveGrantCapabilities(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, nil)
	subject := uuid.New()
	ctx := context.Background()

	caps, err := svc.ActiveGrantCapabilities(ctx, subject)
	require.NoError(t, err)
	require.Empty(t, caps)

	_, err = svc.GrantRole(ctx, admin(), subject, def.ID, Window{}, "reporting")
	require.NoError(t, err)

	caps, err = svc.ActiveGrantCapabilities(ctx, subject)
	require.NoError(t, err)
	require.True(t, caps[authz.CapExportData])
}

func TestActiveGrantCapabilitiesExcludesExpiredAndPending(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, nil)
	ctx := context.Background()

	// Pending delegate grant confers nothing.
	pendingSubject := uuid.New()
	_, err := svc.GrantRole(ctx, manager(), pendingSubject, def.ID, Window{}, "pending")
	require.NoError(t, err)
	caps, err := svc.ActiveGrantCapabilities(ctx, pendingSubject)
	require.NoError(t, err)
	require.False(t, caps[authz.CapExportData])

	// Expired grant confers nothing; expiry is read-time, no sweep.
	expiredSubject := uuid.New()
	expiry := testClock.Add(-time.Minute)
	expiredID := uuid.New()
	repo.grants[expiredID] = RoleGrant{
		ID:               expiredID,
		PrincipalID:      expiredSubject,
		RoleDefinitionID: def.ID,
		EffectiveAt:      testClock.Add(-time.Hour),
		ExpiresAt:        &expiry,
		Approved:         true,
		Active:           true,
	}
	caps, err = svc.ActiveGrantCapabilities(ctx, expiredSubject)
	require.NoError(t, err)
	require.False(t, caps[authz.CapExportData])
}

func TestResolverHonorsGrantThroughService(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc, _ := newTestService(repo)
	def := mustDefinition(t, svc, nil)

	viewer := directory.Principal{ID: uuid.New(), Role: directory.RoleViewer, Active: true}
	resolver := authz.NewResolver(authz.NewCapabilityTable(), svc, nil)
	ctx := context.Background()

	require.False(t, resolver.HasCapability(ctx, viewer, authz.CapExportData))

	_, err := svc.GrantRole(ctx, admin(), viewer.ID, def.ID, Window{}, "board report")
	require.NoError(t, err)

	require.True(t, resolver.HasCapability(ctx, viewer, authz.CapExportData))
	// The grant supplements; it does not widen the base role elsewhere.
	require.False(t, resolver.HasCapability(ctx, viewer, authz.CapCreateAudits))
}
