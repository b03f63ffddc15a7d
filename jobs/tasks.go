package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDecisionExport archives a window of decision-log entries as CSV.
	TaskDecisionExport = "decisionlog:export"
	// TaskSecurityScan counts recent security events and raises alerts.
	TaskSecurityScan = "decisionlog:security_scan"
)

// DecisionExportPayload bounds the export window in whole days back
// from now. Zero means the previous day.
type DecisionExportPayload struct {
	DaysBack     int  `json:"daysBack"`
	SecurityOnly bool `json:"securityOnly"`
}

// NewDecisionExportTask constructs an Asynq task.
func NewDecisionExportTask(payload DecisionExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDecisionExport, data), nil
}

// SecurityScanPayload bounds the scan window in hours back from now.
type SecurityScanPayload struct {
	WindowHours int   `json:"windowHours"`
	Threshold   int64 `json:"threshold"`
}

// NewSecurityScanTask constructs an Asynq task.
func NewSecurityScanTask(payload SecurityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSecurityScan, data), nil
}
