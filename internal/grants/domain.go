package grants

import (
	"time"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/authz"
)

// RoleDefinition is a named supplemental role. Its capability mapping
// is validated against the closed capability set at creation time, so
// typos fail fast instead of silently resolving to false.
type RoleDefinition struct {
	ID           uuid.UUID
	Name         string
	Category     string
	DepartmentID uuid.UUID // zero when Global
	Global       bool
	Capabilities map[authz.Capability]bool

	// Segregation-of-duties metadata.
	IncompatibleWith     []uuid.UUID
	RequiresDualApproval bool
	MaxGrantDuration     time.Duration // zero means uncapped

	Active    bool
	CreatedBy uuid.UUID
	CreatedAt time.Time
}

// RoleGrant links a principal to a role definition for a temporal
// window. Expiry is evaluated on read by clock comparison; there is no
// background sweep.
type RoleGrant struct {
	ID               uuid.UUID
	PrincipalID      uuid.UUID
	RoleDefinitionID uuid.UUID
	EffectiveAt      time.Time
	ExpiresAt        *time.Time // nil means unbounded
	Reason           string

	GrantedBy        uuid.UUID
	RequiresApproval bool
	Approved         bool
	ApprovedBy       uuid.UUID
	ApprovedAt       *time.Time

	// Second approver, used when the role definition requires dual
	// approval. Approved stays false until it is recorded.
	SecondApprovedBy uuid.UUID
	SecondApprovedAt *time.Time

	Active             bool
	DeactivatedBy      uuid.UUID
	DeactivatedAt      *time.Time
	DeactivationReason string

	CreatedAt time.Time
}

// ActiveAt reports whether the grant contributes capabilities at the
// given instant: the active flag is set, the approval requirement (if
// any) is satisfied, and now falls within [EffectiveAt, ExpiresAt).
func (g RoleGrant) ActiveAt(now time.Time) bool {
	if !g.Active {
		return false
	}
	if g.RequiresApproval && !g.Approved {
		return false
	}
	if now.Before(g.EffectiveAt) {
		return false
	}
	if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return false
	}
	return true
}

// GrantWithDefinition joins a grant to its role definition for
// resolution and listing.
type GrantWithDefinition struct {
	Grant      RoleGrant
	Definition RoleDefinition
}
