package authz

import (
	"time"

	"github.com/google/uuid"
)

// Scope classifies a visibility decision before any per-record clause
// is evaluated.
type Scope int

const (
	// ScopeNone denies enumeration of every record (default deny).
	ScopeNone Scope = iota
	// ScopeAll permits every record without clause evaluation.
	ScopeAll
	// ScopeFiltered permits records matching at least one clause.
	ScopeFiltered
)

// Visibility is the per-principal rule determining which audit records
// are enumerable. For ScopeFiltered the clauses form a disjunction:
// a record is visible when any populated clause matches. A zero UUID
// means the clause is absent.
type Visibility struct {
	Scope Scope

	// ManagerID matches records whose assigned manager is the principal.
	ManagerID uuid.UUID
	// CreatorID matches records created by the principal.
	CreatorID uuid.UUID
	// LeadID matches records whose lead auditor is the principal.
	LeadID uuid.UUID
	// MemberID matches records with a team membership for the principal.
	MemberID uuid.UUID
	// DepartmentID matches records in the principal's department.
	// Records without a department never match this clause.
	DepartmentID uuid.UUID
}

// AuditRef carries the ownership fields of an audit record that
// visibility and team decisions read. Zero UUIDs mean unset.
type AuditRef struct {
	ID              uuid.UUID
	CreatedBy       uuid.UUID
	AssignedManager uuid.UUID
	LeadAuditor     uuid.UUID
	DepartmentID    uuid.UUID
}

// TeamMembership links a principal to an audit with a role scoped to
// that audit. Rows are insert-only; eligibility is checked at
// assignment time and never revalidated.
type TeamMembership struct {
	AuditID     uuid.UUID
	PrincipalID uuid.UUID
	RoleInAudit string
	AddedBy     uuid.UUID
	CreatedAt   time.Time
}

// RoleInAuditOverride marks memberships inserted through the admin
// override path rather than ordinary team assignment.
const RoleInAuditOverride = "admin_override"
