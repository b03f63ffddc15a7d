package audits

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/authz"
	"github.com/veritrail/veritrail/internal/decisionlog"
	"github.com/veritrail/veritrail/internal/directory"
	"github.com/veritrail/veritrail/internal/shared"
)

// RepositoryPort defines data access methods for audits and teams.
type RepositoryPort interface {
	authz.MembershipStore
	GetAudit(ctx context.Context, id uuid.UUID) (AuditRecord, error)
	ListVisible(ctx context.Context, vis authz.Visibility) ([]AuditRecord, error)
	ListMemberships(ctx context.Context, auditID uuid.UUID) ([]authz.TeamMembership, error)
}

// DirectoryPort resolves team candidates.
type DirectoryPort interface {
	GetPrincipal(ctx context.Context, id uuid.UUID) (directory.Principal, error)
	GetPrincipals(ctx context.Context, ids []uuid.UUID) ([]directory.Principal, error)
}

// Service applies the visibility filter and team authorizer to the
// audit store.
type Service struct {
	repo       RepositoryPort
	people     DirectoryPort
	visibility *authz.VisibilityFilter
	team       *authz.TeamAuthorizer
	overrider  *authz.Overrider
	decisions  *decisionlog.Recorder
	logger     *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, people DirectoryPort, visibility *authz.VisibilityFilter, team *authz.TeamAuthorizer, overrider *authz.Overrider, decisions *decisionlog.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, people: people, visibility: visibility, team: team, overrider: overrider, decisions: decisions, logger: logger}
}

// ListAudits enumerates the audits the principal may see.
func (s *Service) ListAudits(ctx context.Context, p directory.Principal) ([]AuditRecord, error) {
	return s.repo.ListVisible(ctx, s.visibility.Predicate(p))
}

// GetAudit fetches one audit the principal may access. A principal
// outside the record's visibility receives ErrForbidden; the transport
// layer renders it with a generic message.
func (s *Service) GetAudit(ctx context.Context, p directory.Principal, id uuid.UUID) (AuditRecord, error) {
	record, err := s.repo.GetAudit(ctx, id)
	if err != nil {
		return AuditRecord{}, err
	}
	if !s.visibility.CanAccessAudit(ctx, p, record.Ref()) {
		s.recordDenied(ctx, p, "audit", id)
		return AuditRecord{}, shared.ErrForbidden
	}
	return record, nil
}

func (s *Service) recordDenied(ctx context.Context, actor directory.Principal, resourceType string, resourceID uuid.UUID) {
	s.decisions.RecordDecision(ctx, decisionlog.Entry{
		ActorID:      actor.ID,
		Action:       decisionlog.ActionAccessDenied,
		ResourceType: resourceType,
		ResourceID:   resourceID.String(),
		Outcome:      decisionlog.OutcomeDenied,
	})
}

// ListTeam returns the audit's roster, subject to the same visibility
// rule as the record itself.
func (s *Service) ListTeam(ctx context.Context, p directory.Principal, auditID uuid.UUID) ([]authz.TeamMembership, error) {
	if _, err := s.GetAudit(ctx, p, auditID); err != nil {
		return nil, err
	}
	return s.repo.ListMemberships(ctx, auditID)
}

// AssignTeam adds the requested candidates to the audit team.
// Ineligible candidates are skipped rather than failing the batch;
// unresolvable candidate IDs are skipped the same way.
func (s *Service) AssignTeam(ctx context.Context, actor directory.Principal, auditID uuid.UUID, candidateIDs []uuid.UUID, roleInAudit string) (authz.AssignmentResult, error) {
	record, err := s.repo.GetAudit(ctx, auditID)
	if err != nil {
		return authz.AssignmentResult{}, err
	}
	candidates, err := s.people.GetPrincipals(ctx, candidateIDs)
	if err != nil {
		return authz.AssignmentResult{}, err
	}
	result, err := s.team.AssignTeam(ctx, actor, record.Ref(), candidates, roleInAudit)
	if err != nil {
		if errors.Is(err, shared.ErrForbidden) {
			s.recordDenied(ctx, actor, "audit_team", auditID)
		}
		return result, err
	}
	resolved := make(map[uuid.UUID]struct{}, len(candidates))
	for _, c := range candidates {
		resolved[c.ID] = struct{}{}
	}
	for _, id := range candidateIDs {
		if _, ok := resolved[id]; !ok {
			result.Skipped = append(result.Skipped, id)
		}
	}
	s.decisions.RecordDecision(ctx, decisionlog.Entry{
		ActorID:      actor.ID,
		Action:       decisionlog.ActionAssignTeam,
		ResourceType: "audit_team",
		ResourceID:   auditID.String(),
		Outcome:      decisionlog.OutcomeAllowed,
		Context: map[string]any{
			"assigned": len(result.Assigned),
			"skipped":  len(result.Skipped),
		},
	})
	return result, nil
}

// AssignLead designates the audit's lead auditor.
func (s *Service) AssignLead(ctx context.Context, actor directory.Principal, auditID, candidateID uuid.UUID) error {
	record, err := s.repo.GetAudit(ctx, auditID)
	if err != nil {
		return err
	}
	candidate, err := s.people.GetPrincipal(ctx, candidateID)
	if err != nil {
		return err
	}
	if err := s.team.AssignLeadAuditor(ctx, actor, record.Ref(), candidate); err != nil {
		if errors.Is(err, shared.ErrForbidden) {
			s.recordDenied(ctx, actor, "audit", auditID)
		}
		return err
	}
	s.decisions.RecordDecision(ctx, decisionlog.Entry{
		ActorID:      actor.ID,
		Action:       decisionlog.ActionAssignLead,
		ResourceType: "audit",
		ResourceID:   auditID.String(),
		Outcome:      decisionlog.OutcomeAllowed,
		Context:      map[string]any{"lead_auditor": candidateID.String()},
	})
	return nil
}

// Override grants the target access to the audit through the
// SystemAdmin-only override path. The route gate has already verified
// the admin's static role; the reason was validated by the caller.
func (s *Service) Override(ctx context.Context, admin directory.Principal, targetID, auditID uuid.UUID, reason string) error {
	record, err := s.repo.GetAudit(ctx, auditID)
	if err != nil {
		return err
	}
	target, err := s.people.GetPrincipal(ctx, targetID)
	if err != nil {
		return err
	}
	return s.overrider.OverrideAuditAccess(ctx, admin, target, record.Ref(), reason)
}
