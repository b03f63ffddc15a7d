package jobs

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"github.com/veritrail/veritrail/internal/decisionlog"
	jobmetrics "github.com/veritrail/veritrail/internal/jobs"
)

// DecisionExportJob archives decision-log entries as CSV files for
// long-term retention, without ever deleting rows: the log stays
// append-only.
type DecisionExportJob struct {
	Service *decisionlog.TimelineService
	Dir     string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewDecisionExportJob initialises the export handler.
func NewDecisionExportJob(service *decisionlog.TimelineService, dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *DecisionExportJob {
	return &DecisionExportJob{
		Service: service,
		Dir:     dir,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the export.
func (j *DecisionExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("decision export: handler not configured")
	}
	var payload DecisionExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.DaysBack <= 0 {
		payload.DaysBack = 1
	}

	tracker := j.Metrics.Track(TaskDecisionExport)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.clock()
	to := now.Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -payload.DaysBack)
	entries, err := j.Service.Export(ctx, decisionlog.Filters{
		From:         from,
		To:           to,
		SecurityOnly: payload.SecurityOnly,
	})
	if err != nil {
		resultErr = err
		j.Logger.Error("decision export query", slog.Any("error", err))
		return err
	}

	if err := os.MkdirAll(j.Dir, 0o750); err != nil {
		resultErr = err
		return err
	}
	name := fmt.Sprintf("decisions-%s.csv", from.Format("2006-01-02"))
	path := filepath.Join(j.Dir, name)
	file, err := os.Create(path)
	if err != nil {
		resultErr = err
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header, rows := decisionlog.ExportRows(entries)
	if err := writer.Write(header); err != nil {
		resultErr = err
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			resultErr = err
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		resultErr = err
		return err
	}

	j.Logger.Info("decision export complete",
		slog.String("path", path),
		slog.Int("entries", len(entries)))
	return nil
}
