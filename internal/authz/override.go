package authz

import (
	"context"
	"log/slog"
	"time"

	"github.com/veritrail/veritrail/internal/decisionlog"
	"github.com/veritrail/veritrail/internal/directory"
)

// Overrider is the SystemAdmin-only bypass of normal visibility rules.
// The caller's gate has already verified the admin's static role and
// that a non-empty reason was supplied; both are trusted here.
type Overrider struct {
	memberships MembershipStore
	decisions   *decisionlog.Recorder
	now         func() time.Time
	logger      *slog.Logger
}

// NewOverrider constructs an Overrider.
func NewOverrider(memberships MembershipStore, decisions *decisionlog.Recorder, logger *slog.Logger) *Overrider {
	return &Overrider{memberships: memberships, decisions: decisions, now: time.Now, logger: logger}
}

// WithClock overrides the membership timestamp clock.
func (o *Overrider) WithClock(now func() time.Time) *Overrider {
	o.now = now
	return o
}

// OverrideAuditAccess grants the target principal access to the audit
// by inserting an admin_override team membership when no membership
// exists yet. Every invocation writes a standard decision entry for the
// membership change and a dedicated high-risk security-event entry
// capturing the before/after access state and the supplied reason, even
// when the target already had access.
func (o *Overrider) OverrideAuditAccess(ctx context.Context, admin, target directory.Principal, record AuditRef, reason string) error {
	hadAccess, err := o.memberships.HasMembership(ctx, record.ID, target.ID)
	if err != nil {
		return err
	}
	if !hadAccess {
		err := o.memberships.InsertMembership(ctx, TeamMembership{
			AuditID:     record.ID,
			PrincipalID: target.ID,
			RoleInAudit: RoleInAuditOverride,
			AddedBy:     admin.ID,
			CreatedAt:   o.now(),
		})
		if err != nil {
			return err
		}
	}

	o.decisions.RecordDecision(ctx, decisionlog.Entry{
		ActorID:      admin.ID,
		Action:       decisionlog.ActionUpdate,
		ResourceType: "audit_team",
		ResourceID:   record.ID.String(),
		Outcome:      decisionlog.OutcomeAllowed,
		Context: map[string]any{
			"target":        target.ID.String(),
			"role_in_audit": RoleInAuditOverride,
			"inserted":      !hadAccess,
		},
	})
	o.decisions.RecordDecision(ctx, decisionlog.Entry{
		ActorID:      admin.ID,
		Action:       decisionlog.ActionAdminOverride,
		ResourceType: "audit",
		ResourceID:   record.ID.String(),
		Outcome:      decisionlog.OutcomeAllowed,
		Context: map[string]any{
			"target": target.ID.String(),
			"reason": reason,
		},
		Before: map[string]any{"has_access": hadAccess},
		After:  map[string]any{"has_access": true},
	})

	if o.logger != nil {
		o.logger.Info("admin override applied",
			slog.String("admin", admin.ID.String()),
			slog.String("target", target.ID.String()),
			slog.String("audit", record.ID.String()))
	}
	return nil
}
