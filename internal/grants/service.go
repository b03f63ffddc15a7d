package grants

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/authz"
	"github.com/veritrail/veritrail/internal/decisionlog"
	"github.com/veritrail/veritrail/internal/directory"
	"github.com/veritrail/veritrail/internal/shared"
)

// RepositoryPort defines data access methods for grants.
type RepositoryPort interface {
	CreateRoleDefinition(ctx context.Context, def RoleDefinition) (RoleDefinition, error)
	GetRoleDefinition(ctx context.Context, id uuid.UUID) (RoleDefinition, error)
	CreateGrant(ctx context.Context, g RoleGrant) (RoleGrant, error)
	GetGrant(ctx context.Context, id uuid.UUID) (RoleGrant, error)
	ApproveGrant(ctx context.Context, g RoleGrant) error
	DeactivateGrant(ctx context.Context, id, deactivatedBy uuid.UUID, at time.Time, reason string) error
	ListGrantsWithDefinitions(ctx context.Context, principalID uuid.UUID) ([]GrantWithDefinition, error)
}

// Window bounds a grant's temporal validity. A zero EffectiveAt means
// effective immediately; a nil ExpiresAt means unbounded.
type Window struct {
	EffectiveAt time.Time
	ExpiresAt   *time.Time
}

// Service manages role definitions and supplemental role grants. It
// also implements authz.GrantSource for the permission resolver.
type Service struct {
	repo      RepositoryPort
	cache     *Cache
	decisions *decisionlog.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache *Cache, decisions *decisionlog.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, decisions: decisions, logger: logger, now: time.Now}
}

// WithClock overrides the clock, for deterministic expiry tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateRoleDefinition authors a new supplemental role. Only
// SystemAdmin may author definitions; the capability mapping must stay
// inside the closed capability set.
func (s *Service) CreateRoleDefinition(ctx context.Context, actor directory.Principal, def RoleDefinition) (RoleDefinition, error) {
	if actor.Role != directory.RoleSystemAdmin {
		return RoleDefinition{}, shared.ErrForbidden
	}
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return RoleDefinition{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	if len(def.Capabilities) == 0 {
		return RoleDefinition{}, fmt.Errorf("%w: capability mapping required", shared.ErrValidation)
	}
	for capability := range def.Capabilities {
		if !authz.KnownCapability(capability) {
			return RoleDefinition{}, fmt.Errorf("%w: unknown capability %q", shared.ErrValidation, capability)
		}
	}
	if def.Global && def.DepartmentID != uuid.Nil {
		return RoleDefinition{}, fmt.Errorf("%w: global role cannot be department scoped", shared.ErrValidation)
	}
	if !def.Global && def.DepartmentID == uuid.Nil {
		return RoleDefinition{}, fmt.Errorf("%w: department scope or global flag required", shared.ErrValidation)
	}
	if def.MaxGrantDuration < 0 {
		return RoleDefinition{}, fmt.Errorf("%w: negative max grant duration", shared.ErrValidation)
	}
	def.ID = uuid.New()
	def.Active = true
	def.CreatedBy = actor.ID
	def.CreatedAt = s.now()

	created, err := s.repo.CreateRoleDefinition(ctx, def)
	if err != nil {
		return RoleDefinition{}, err
	}
	s.decisions.RecordDecision(ctx, decisionlog.Entry{
		ActorID:      actor.ID,
		Action:       decisionlog.ActionCreate,
		ResourceType: "role_definition",
		ResourceID:   created.ID.String(),
		Outcome:      decisionlog.OutcomeAllowed,
		Context:      map[string]any{"name": created.Name, "category": created.Category},
	})
	return created, nil
}

// GrantRole issues a supplemental role grant to a principal. Grants
// issued by SystemAdmin are auto-approved; grants issued by delegates
// stay pending until a separate approval step, regardless of their
// temporal window. The duplicate check here is advisory; the storage
// layer's partial unique index is authoritative under concurrency.
func (s *Service) GrantRole(ctx context.Context, issuer directory.Principal, principalID, roleDefinitionID uuid.UUID, window Window, reason string) (RoleGrant, error) {
	def, err := s.repo.GetRoleDefinition(ctx, roleDefinitionID)
	if err != nil {
		return RoleGrant{}, err
	}
	if !def.Active {
		return RoleGrant{}, fmt.Errorf("%w: role definition inactive", shared.ErrValidation)
	}
	now := s.now()
	if window.EffectiveAt.IsZero() {
		window.EffectiveAt = now
	}
	if window.ExpiresAt != nil && !window.ExpiresAt.After(window.EffectiveAt) {
		return RoleGrant{}, fmt.Errorf("%w: expiry must follow effective date", shared.ErrValidation)
	}
	if def.MaxGrantDuration > 0 {
		if window.ExpiresAt == nil {
			return RoleGrant{}, fmt.Errorf("%w: role requires a bounded grant window", shared.ErrValidation)
		}
		if window.ExpiresAt.Sub(window.EffectiveAt) > def.MaxGrantDuration {
			return RoleGrant{}, fmt.Errorf("%w: grant window exceeds role maximum", shared.ErrValidation)
		}
	}

	existing, err := s.repo.ListGrantsWithDefinitions(ctx, principalID)
	if err != nil {
		return RoleGrant{}, err
	}
	incompatible := make(map[uuid.UUID]struct{}, len(def.IncompatibleWith))
	for _, id := range def.IncompatibleWith {
		incompatible[id] = struct{}{}
	}
	for _, item := range existing {
		if !item.Grant.ActiveAt(now) {
			continue
		}
		if item.Grant.RoleDefinitionID == roleDefinitionID {
			return RoleGrant{}, shared.ErrDuplicateGrant
		}
		if _, clash := incompatible[item.Grant.RoleDefinitionID]; clash {
			return RoleGrant{}, fmt.Errorf("%w: incompatible with active role %s", shared.ErrValidation, item.Definition.Name)
		}
		for _, id := range item.Definition.IncompatibleWith {
			if id == roleDefinitionID {
				return RoleGrant{}, fmt.Errorf("%w: incompatible with active role %s", shared.ErrValidation, item.Definition.Name)
			}
		}
	}

	grant := RoleGrant{
		ID:               uuid.New(),
		PrincipalID:      principalID,
		RoleDefinitionID: roleDefinitionID,
		EffectiveAt:      window.EffectiveAt,
		ExpiresAt:        window.ExpiresAt,
		Reason:           strings.TrimSpace(reason),
		GrantedBy:        issuer.ID,
		Active:           true,
		CreatedAt:        now,
	}
	if issuer.Role == directory.RoleSystemAdmin {
		grant.Approved = true
		grant.ApprovedBy = issuer.ID
		approvedAt := now
		grant.ApprovedAt = &approvedAt
	} else {
		grant.RequiresApproval = true
	}

	created, err := s.repo.CreateGrant(ctx, grant)
	if err != nil {
		return RoleGrant{}, err
	}
	s.cache.Invalidate(ctx, principalID)
	s.decisions.RecordDecision(ctx, decisionlog.Entry{
		ActorID:      issuer.ID,
		Action:       decisionlog.ActionGrantRole,
		ResourceType: "role_grant",
		ResourceID:   created.ID.String(),
		Outcome:      decisionlog.OutcomeAllowed,
		Context: map[string]any{
			"principal":         principalID.String(),
			"role_definition":   roleDefinitionID.String(),
			"requires_approval": created.RequiresApproval,
			"reason":            created.Reason,
		},
	})
	return created, nil
}

// ApproveGrant records an approval step on a pending grant. The
// approver must differ from the issuer: self-approval breaks
// segregation of duties. When the role definition requires dual
// approval, the grant stays pending until a second distinct approver
// records theirs.
func (s *Service) ApproveGrant(ctx context.Context, approver directory.Principal, grantID uuid.UUID) (RoleGrant, error) {
	grant, err := s.repo.GetGrant(ctx, grantID)
	if err != nil {
		return RoleGrant{}, err
	}
	if !grant.Active {
		return RoleGrant{}, shared.ErrGrantNotActive
	}
	if !grant.RequiresApproval || grant.Approved {
		return RoleGrant{}, fmt.Errorf("%w: grant does not await approval", shared.ErrValidation)
	}
	if approver.ID == grant.GrantedBy {
		return RoleGrant{}, fmt.Errorf("%w: issuer cannot approve own grant", shared.ErrValidation)
	}
	def, err := s.repo.GetRoleDefinition(ctx, grant.RoleDefinitionID)
	if err != nil {
		return RoleGrant{}, err
	}
	now := s.now()
	switch {
	case def.RequiresDualApproval && grant.ApprovedBy == uuid.Nil:
		grant.ApprovedBy = approver.ID
		grant.ApprovedAt = &now
	case def.RequiresDualApproval:
		if approver.ID == grant.ApprovedBy {
			return RoleGrant{}, fmt.Errorf("%w: dual approval requires a second distinct approver", shared.ErrValidation)
		}
		grant.SecondApprovedBy = approver.ID
		grant.SecondApprovedAt = &now
		grant.Approved = true
	default:
		grant.ApprovedBy = approver.ID
		grant.ApprovedAt = &now
		grant.Approved = true
	}
	if err := s.repo.ApproveGrant(ctx, grant); err != nil {
		return RoleGrant{}, err
	}
	s.cache.Invalidate(ctx, grant.PrincipalID)
	s.decisions.RecordDecision(ctx, decisionlog.Entry{
		ActorID:      approver.ID,
		Action:       decisionlog.ActionApproveGrant,
		ResourceType: "role_grant",
		ResourceID:   grantID.String(),
		Outcome:      decisionlog.OutcomeAllowed,
		Context: map[string]any{
			"principal":                grant.PrincipalID.String(),
			"awaiting_second_approval": def.RequiresDualApproval && !grant.Approved,
		},
	})
	return grant, nil
}

// DeactivateGrant explicitly revokes a grant before its natural expiry.
func (s *Service) DeactivateGrant(ctx context.Context, actor directory.Principal, grantID uuid.UUID, reason string) error {
	grant, err := s.repo.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	if !grant.Active {
		return shared.ErrGrantNotActive
	}
	now := s.now()
	if err := s.repo.DeactivateGrant(ctx, grantID, actor.ID, now, strings.TrimSpace(reason)); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, grant.PrincipalID)
	s.decisions.RecordDecision(ctx, decisionlog.Entry{
		ActorID:      actor.ID,
		Action:       decisionlog.ActionDeactivateGrant,
		ResourceType: "role_grant",
		ResourceID:   grantID.String(),
		Outcome:      decisionlog.OutcomeAllowed,
		Context: map[string]any{
			"principal": grant.PrincipalID.String(),
			"reason":    strings.TrimSpace(reason),
		},
	})
	return nil
}

// ListGrants returns all grants for a principal with their definitions.
func (s *Service) ListGrants(ctx context.Context, principalID uuid.UUID) ([]GrantWithDefinition, error) {
	return s.repo.ListGrantsWithDefinitions(ctx, principalID)
}

// ActiveGrantCapabilities implements authz.GrantSource: the union of
// capability mappings across the principal's active grants whose role
// definitions are themselves active. Expiry is decided here by clock
// comparison; nothing sweeps expired rows.
func (s *Service) ActiveGrantCapabilities(ctx context.Context, principalID uuid.UUID) (map[authz.Capability]bool, error) {
	if caps, ok := s.cache.Get(ctx, principalID); ok {
		return caps, nil
	}
	items, err := s.repo.ListGrantsWithDefinitions(ctx, principalID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	caps := make(map[authz.Capability]bool)
	for _, item := range items {
		if !item.Grant.ActiveAt(now) || !item.Definition.Active {
			continue
		}
		for capability, allowed := range item.Definition.Capabilities {
			if allowed && authz.KnownCapability(capability) {
				caps[capability] = true
			}
		}
	}
	s.cache.Set(ctx, principalID, caps)
	return caps, nil
}
