package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/veritrail/veritrail/internal/decisionlog"
	jobmetrics "github.com/veritrail/veritrail/internal/jobs"
)

// SecurityScanJob counts security events in a recent window and raises
// an operational alert when the count crosses the configured threshold.
// It reads the decision log only; alert delivery is the log line plus
// the alert counter.
type SecurityScanJob struct {
	Repo    *decisionlog.Repository
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSecurityScanJob initialises the scan handler.
func NewSecurityScanJob(repo *decisionlog.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *SecurityScanJob {
	return &SecurityScanJob{
		Repo:    repo,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *SecurityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("security scan: handler not configured")
	}
	var payload SecurityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowHours <= 0 {
		payload.WindowHours = 1
	}
	if payload.Threshold <= 0 {
		payload.Threshold = 50
	}

	tracker := j.Metrics.Track(TaskSecurityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.clock()
	from := now.Add(-time.Duration(payload.WindowHours) * time.Hour)
	count, err := j.Repo.CountSecurityEvents(ctx, from, now)
	if err != nil {
		resultErr = err
		j.Logger.Error("security scan query", slog.Any("error", err))
		return err
	}

	if count >= payload.Threshold {
		j.Metrics.AddSecurityAlerts("high", count)
		j.Logger.Warn("security event volume above threshold",
			slog.Int64("count", count),
			slog.Int64("threshold", payload.Threshold),
			slog.Time("window_start", from))
	} else {
		j.Logger.Info("security scan complete",
			slog.Int64("count", count),
			slog.Int64("threshold", payload.Threshold))
	}
	return nil
}
