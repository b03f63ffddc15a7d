package decisionlog

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel grades a logged decision for compliance review.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Outcome is the authorization result the entry records.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// Action types recorded in the decision log. The classifier assigns
// risk and the security-event flag from these names.
const (
	ActionView            = "view"
	ActionCreate          = "create"
	ActionUpdate          = "update"
	ActionDelete          = "delete"
	ActionExport          = "export"
	ActionGrantRole       = "grant_role"
	ActionApproveGrant    = "approve_grant"
	ActionDeactivateGrant = "deactivate_grant"
	ActionAssignTeam      = "assign_team"
	ActionAssignLead      = "assign_lead"
	ActionAuthFailure     = "auth_failure"
	ActionAccessDenied    = "access_denied"
	ActionAdminOverride   = "admin_override"
)

// Entry is one immutable decision-log record. Entries are appended and
// never updated or deleted by this engine.
type Entry struct {
	ID            uuid.UUID
	ActorID       uuid.UUID
	Action        string
	ResourceType  string
	ResourceID    string
	Outcome       Outcome
	Risk          RiskLevel
	SecurityEvent bool
	Context       map[string]any
	Before        map[string]any
	After         map[string]any
	At            time.Time
}
