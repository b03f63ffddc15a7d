package decisionlog

// classification pairs the risk grade with the security-event flag for
// an action type.
type classification struct {
	risk     RiskLevel
	security bool
}

// riskTable is the fixed classification mapping. Authentication
// failures, access denials, deletions, and admin overrides are high
// risk; of those, all but deletions are also security events. Ordinary
// business actions grade medium or low.
var riskTable = map[string]classification{
	ActionAuthFailure:   {risk: RiskHigh, security: true},
	ActionAccessDenied:  {risk: RiskHigh, security: true},
	ActionAdminOverride: {risk: RiskHigh, security: true},
	ActionDelete:        {risk: RiskHigh},

	ActionGrantRole:       {risk: RiskMedium},
	ActionApproveGrant:    {risk: RiskMedium},
	ActionDeactivateGrant: {risk: RiskMedium},
	ActionAssignTeam:      {risk: RiskMedium},
	ActionAssignLead:      {risk: RiskMedium},
	ActionCreate:          {risk: RiskMedium},
	ActionUpdate:          {risk: RiskMedium},
	ActionExport:          {risk: RiskMedium},

	ActionView: {risk: RiskLow},
}

// Classify returns the risk level and security-event flag for an
// action. Unknown actions grade low and are not security events.
func Classify(action string) (RiskLevel, bool) {
	c, ok := riskTable[action]
	if !ok {
		return RiskLow, false
	}
	return c.risk, c.security
}
