package authz

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/directory"
)

// GrantSource supplies the capabilities conferred by a principal's
// currently-active supplemental role grants. Implementations must only
// count grants whose approval requirement is satisfied, whose temporal
// window contains now, and whose role definition is itself active.
type GrantSource interface {
	ActiveGrantCapabilities(ctx context.Context, principalID uuid.UUID) (map[Capability]bool, error)
}

// Resolver decides whether a principal holds a named capability by
// combining the static capability table with supplemental grants.
type Resolver struct {
	table  *CapabilityTable
	grants GrantSource
	logger *slog.Logger
}

// NewResolver constructs a Resolver. The table must already be built;
// it is never mutated afterwards.
func NewResolver(table *CapabilityTable, grants GrantSource, logger *slog.Logger) *Resolver {
	return &Resolver{table: table, grants: grants, logger: logger}
}

// HasCapability reports whether the principal may exercise the
// capability. Every failure path resolves to false: unknown capability
// names, inactive or deleted principals, and grant-store errors all
// deny. Checks run in fixed order so an inactive SystemAdmin is denied
// before the admin bypass applies.
func (r *Resolver) HasCapability(ctx context.Context, p directory.Principal, c Capability) bool {
	if !p.Active || p.Deleted {
		return false
	}
	if p.Role == directory.RoleSystemAdmin {
		return true
	}
	if !KnownCapability(c) {
		return false
	}
	if r.table.Allows(p.Role, c) {
		return true
	}
	if r.grants == nil {
		return false
	}
	granted, err := r.grants.ActiveGrantCapabilities(ctx, p.ID)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("resolve grants failed, denying",
				slog.String("principal", p.ID.String()),
				slog.String("capability", string(c)),
				slog.Any("error", err))
		}
		return false
	}
	return granted[c]
}

// EffectiveCapabilities returns every capability the principal
// currently holds, for introspection endpoints. SystemAdmin yields the
// full closed set.
func (r *Resolver) EffectiveCapabilities(ctx context.Context, p directory.Principal) []Capability {
	if !p.Active || p.Deleted {
		return nil
	}
	if p.Role == directory.RoleSystemAdmin {
		return AllCapabilities()
	}
	effective := make(map[Capability]struct{})
	for _, c := range r.table.BaseCapabilities(p.Role) {
		effective[c] = struct{}{}
	}
	if r.grants != nil {
		granted, err := r.grants.ActiveGrantCapabilities(ctx, p.ID)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("resolve grants failed",
					slog.String("principal", p.ID.String()),
					slog.Any("error", err))
			}
		} else {
			for c, allowed := range granted {
				if allowed {
					effective[c] = struct{}{}
				}
			}
		}
	}
	caps := make([]Capability, 0, len(effective))
	for c := range effective {
		caps = append(caps, c)
	}
	return caps
}
