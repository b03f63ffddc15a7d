package authz

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/directory"
	"github.com/veritrail/veritrail/internal/shared"
)

// MembershipStore persists team membership rows and the lead-auditor
// assignment. Membership rows are insert-only.
type MembershipStore interface {
	MembershipChecker
	InsertMembership(ctx context.Context, m TeamMembership) error
	SetLeadAuditor(ctx context.Context, auditID, principalID uuid.UUID) error
}

// AssignmentResult reports the outcome of a batch team assignment.
// Skipped candidates failed the eligibility check; their presence never
// fails the overall call.
type AssignmentResult struct {
	Assigned []uuid.UUID
	Skipped  []uuid.UUID
}

// TeamAuthorizer governs who may modify an audit's team and which
// candidates are eligible to join it.
type TeamAuthorizer struct {
	memberships MembershipStore
	now         func() time.Time
	logger      *slog.Logger
}

// NewTeamAuthorizer constructs a TeamAuthorizer.
func NewTeamAuthorizer(memberships MembershipStore, logger *slog.Logger) *TeamAuthorizer {
	return &TeamAuthorizer{memberships: memberships, now: time.Now, logger: logger}
}

// WithClock overrides the clock used for membership timestamps.
func (a *TeamAuthorizer) WithClock(now func() time.Time) *TeamAuthorizer {
	a.now = now
	return a
}

// CanManageTeam reports whether the principal may alter the record's
// team: SystemAdmin always, an AuditManager only for records it
// manages or created. Department affinity alone is not sufficient.
func (a *TeamAuthorizer) CanManageTeam(p directory.Principal, record AuditRef) bool {
	if !p.Active || p.Deleted {
		return false
	}
	switch p.Role {
	case directory.RoleSystemAdmin:
		return true
	case directory.RoleAuditManager:
		return record.AssignedManager == p.ID || record.CreatedBy == p.ID
	}
	return false
}

// IsEligibleTeamMember reports whether the candidate may be placed on
// an audit team. Eligibility is evaluated once, at assignment time.
func (a *TeamAuthorizer) IsEligibleTeamMember(candidate directory.Principal) bool {
	if !candidate.Active || candidate.Deleted {
		return false
	}
	return candidate.Role == directory.RoleAuditor || candidate.Role == directory.RoleAuditManager
}

// AssignTeam inserts a membership row for every eligible candidate.
// Ineligible candidates are skipped, not failed: N candidates with K
// ineligible yields exactly N-K inserts. Only a storage failure or a
// caller lacking team-management rights fails the call.
func (a *TeamAuthorizer) AssignTeam(ctx context.Context, actor directory.Principal, record AuditRef, candidates []directory.Principal, roleInAudit string) (AssignmentResult, error) {
	if !a.CanManageTeam(actor, record) {
		return AssignmentResult{}, shared.ErrForbidden
	}
	roleInAudit = strings.TrimSpace(roleInAudit)
	if roleInAudit == "" {
		roleInAudit = "auditor"
	}
	var result AssignmentResult
	for _, candidate := range candidates {
		if !a.IsEligibleTeamMember(candidate) {
			result.Skipped = append(result.Skipped, candidate.ID)
			if a.logger != nil {
				a.logger.Info("skipped ineligible team candidate",
					slog.String("audit", record.ID.String()),
					slog.String("candidate", candidate.ID.String()),
					slog.String("role", string(candidate.Role)))
			}
			continue
		}
		err := a.memberships.InsertMembership(ctx, TeamMembership{
			AuditID:     record.ID,
			PrincipalID: candidate.ID,
			RoleInAudit: roleInAudit,
			AddedBy:     actor.ID,
			CreatedAt:   a.now(),
		})
		if err != nil {
			return result, err
		}
		result.Assigned = append(result.Assigned, candidate.ID)
	}
	return result, nil
}

// AssignLeadAuditor designates the candidate as lead auditor and flags
// the record's team competency as verified. The candidate must pass the
// same eligibility predicate as ordinary team members.
func (a *TeamAuthorizer) AssignLeadAuditor(ctx context.Context, actor directory.Principal, record AuditRef, candidate directory.Principal) error {
	if !a.CanManageTeam(actor, record) {
		return shared.ErrForbidden
	}
	if !a.IsEligibleTeamMember(candidate) {
		return shared.ErrValidation
	}
	return a.memberships.SetLeadAuditor(ctx, record.ID, candidate.ID)
}
