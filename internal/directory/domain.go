package directory

import (
	"time"

	"github.com/google/uuid"
)

// StaticRole is the single fixed role assigned to a principal at
// creation. Supplemental permissions are layered on top through role
// grants; the static role itself never changes at runtime.
type StaticRole string

const (
	RoleSystemAdmin       StaticRole = "system_admin"
	RoleAuditManager      StaticRole = "audit_manager"
	RoleAuditor           StaticRole = "auditor"
	RoleDepartmentHead    StaticRole = "department_head"
	RoleDepartmentOfficer StaticRole = "department_officer"
	RoleViewer            StaticRole = "viewer"
)

// KnownRoles lists every static role the platform recognises.
func KnownRoles() []StaticRole {
	return []StaticRole{
		RoleSystemAdmin,
		RoleAuditManager,
		RoleAuditor,
		RoleDepartmentHead,
		RoleDepartmentOfficer,
		RoleViewer,
	}
}

// Valid reports whether r is one of the known static roles.
func (r StaticRole) Valid() bool {
	switch r {
	case RoleSystemAdmin, RoleAuditManager, RoleAuditor,
		RoleDepartmentHead, RoleDepartmentOfficer, RoleViewer:
		return true
	}
	return false
}

// Principal is an authenticated actor subject to authorization
// decisions. Identity verification happens upstream; this package only
// supplies the directory view of the actor.
type Principal struct {
	ID           uuid.UUID
	Email        string
	Name         string
	Role         StaticRole
	DepartmentID uuid.UUID
	Active       bool
	Deleted      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Department groups principals for row-level visibility. A parent
// reference exists but visibility rules match departments exactly and
// never walk the hierarchy.
type Department struct {
	ID       uuid.UUID
	Name     string
	ParentID uuid.UUID
}
