package audits

import (
	"time"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/authz"
)

// AuditRecord is the engine's view of an audit: only the ownership
// fields visibility and team decisions read, plus display metadata.
// Full audit CRUD lives outside this engine.
type AuditRecord struct {
	ID                     uuid.UUID
	Title                  string
	Status                 string
	CreatedBy              uuid.UUID
	AssignedManager        uuid.UUID
	LeadAuditor            uuid.UUID
	DepartmentID           uuid.UUID
	TeamCompetencyVerified bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Ref projects the record onto the ownership fields the authorization
// engine evaluates.
func (a AuditRecord) Ref() authz.AuditRef {
	return authz.AuditRef{
		ID:              a.ID,
		CreatedBy:       a.CreatedBy,
		AssignedManager: a.AssignedManager,
		LeadAuditor:     a.LeadAuditor,
		DepartmentID:    a.DepartmentID,
	}
}
