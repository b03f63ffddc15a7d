package authz

// Capability is a named boolean permission unit. The set is closed:
// role definitions referencing a name outside this set are rejected at
// construction time, and resolver lookups of unknown names are denied.
type Capability string

// Audit management capabilities.
const (
	CapCreateAudits       Capability = "createAudits"
	CapEditAudits         Capability = "editAudits"
	CapDeleteAudits       Capability = "deleteAudits"
	CapViewAssignedAudits Capability = "viewAssignedAudits"
	CapApproveReports     Capability = "approveReports"
	CapViewAnalytics      Capability = "viewAnalytics"
	CapExportData         Capability = "exportData"
)

// Risk capabilities.
const (
	CapCreateRisks  Capability = "createRisks"
	CapAssessRisks  Capability = "assessRisks"
	CapApproveRisks Capability = "approveRisks"
)

// Corrective/preventive action (CAPA) capabilities.
const (
	CapCreateCapa Capability = "createCapa"
	CapAssignCapa Capability = "assignCapa"
	CapCloseCapa  Capability = "closeCapa"
	CapVerifyCapa Capability = "verifyCapa"
)

// Document capabilities.
const (
	CapUploadDocuments  Capability = "uploadDocuments"
	CapDeleteDocuments  Capability = "deleteDocuments"
	CapApproveDocuments Capability = "approveDocuments"
)

// Asset and vendor capabilities.
const (
	CapManageAssets  Capability = "manageAssets"
	CapViewAssets    Capability = "viewAssets"
	CapManageVendors Capability = "manageVendors"
	CapViewVendors   Capability = "viewVendors"
	CapAssessVendors Capability = "assessVendors"
)

// Platform administration capabilities.
const (
	CapManageUsers    Capability = "manageUsers"
	CapManageRoles    Capability = "manageRoles"
	CapViewAuditTrail Capability = "viewAuditTrail"
)

var knownCapabilities = map[Capability]struct{}{
	CapCreateAudits:       {},
	CapEditAudits:         {},
	CapDeleteAudits:       {},
	CapViewAssignedAudits: {},
	CapApproveReports:     {},
	CapViewAnalytics:      {},
	CapExportData:         {},
	CapCreateRisks:        {},
	CapAssessRisks:        {},
	CapApproveRisks:       {},
	CapCreateCapa:         {},
	CapAssignCapa:         {},
	CapCloseCapa:          {},
	CapVerifyCapa:         {},
	CapUploadDocuments:    {},
	CapDeleteDocuments:    {},
	CapApproveDocuments:   {},
	CapManageAssets:       {},
	CapViewAssets:         {},
	CapManageVendors:      {},
	CapViewVendors:        {},
	CapAssessVendors:      {},
	CapManageUsers:        {},
	CapManageRoles:        {},
	CapViewAuditTrail:     {},
}

// KnownCapability reports whether c is part of the closed capability
// set.
func KnownCapability(c Capability) bool {
	_, ok := knownCapabilities[c]
	return ok
}

// AllCapabilities returns the full closed set. The slice is a copy and
// safe for the caller to mutate.
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, len(knownCapabilities))
	for c := range knownCapabilities {
		caps = append(caps, c)
	}
	return caps
}
