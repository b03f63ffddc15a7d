package authz

import "github.com/veritrail/veritrail/internal/directory"

// CapabilityTable maps each static role to its base capability set. It
// is built once at process start and never mutated afterwards, so
// concurrent reads need no synchronisation.
type CapabilityTable struct {
	base map[directory.StaticRole]map[Capability]struct{}
}

// NewCapabilityTable builds the platform's base capability table.
// SystemAdmin has no row: the resolver short-circuits it to the
// universal set before the table is consulted.
func NewCapabilityTable() *CapabilityTable {
	return &CapabilityTable{base: map[directory.StaticRole]map[Capability]struct{}{
		directory.RoleAuditManager: capSet(
			CapCreateAudits, CapEditAudits, CapViewAssignedAudits,
			CapApproveReports, CapViewAnalytics, CapExportData,
			CapCreateRisks, CapAssessRisks, CapApproveRisks,
			CapCreateCapa, CapAssignCapa, CapCloseCapa,
			CapUploadDocuments, CapManageAssets, CapViewAssets,
			CapManageVendors, CapViewVendors, CapAssessVendors,
			CapViewAuditTrail,
		),
		directory.RoleAuditor: capSet(
			CapViewAssignedAudits, CapCreateRisks, CapAssessRisks,
			CapCreateCapa, CapUploadDocuments,
		),
		directory.RoleDepartmentHead: capSet(
			CapViewAssignedAudits, CapViewAnalytics,
			CapUploadDocuments, CapManageAssets, CapViewAssets,
		),
		directory.RoleDepartmentOfficer: capSet(
			CapViewAssignedAudits, CapUploadDocuments,
		),
		directory.RoleViewer: capSet(
			CapViewAssignedAudits,
		),
	}}
}

// Allows reports whether the role's base set contains the capability.
func (t *CapabilityTable) Allows(role directory.StaticRole, c Capability) bool {
	set, ok := t.base[role]
	if !ok {
		return false
	}
	_, ok = set[c]
	return ok
}

// BaseCapabilities returns the base set for a role, sorted order not
// guaranteed. SystemAdmin and unknown roles return an empty slice.
func (t *CapabilityTable) BaseCapabilities(role directory.StaticRole) []Capability {
	set, ok := t.base[role]
	if !ok {
		return nil
	}
	caps := make([]Capability, 0, len(set))
	for c := range set {
		caps = append(caps, c)
	}
	return caps
}

func capSet(caps ...Capability) map[Capability]struct{} {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}
