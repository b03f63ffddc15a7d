package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/veritrail/veritrail/internal/app"
	"github.com/veritrail/veritrail/internal/decisionlog"
	jobmetrics "github.com/veritrail/veritrail/internal/jobs"
	"github.com/veritrail/veritrail/internal/platform/db"
	"github.com/veritrail/veritrail/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	decisionRepo := decisionlog.NewRepository(pool)
	timelineService := decisionlog.NewTimelineService(decisionRepo)

	exportJob := jobs.NewDecisionExportJob(timelineService, cfg.DecisionExportDir, logger, metrics)
	scanJob := jobs.NewSecurityScanJob(decisionRepo, logger, metrics)

	exportTask, err := jobs.NewDecisionExportTask(jobs.DecisionExportPayload{DaysBack: 1})
	if err != nil {
		logger.Error("build export task", slog.Any("error", err))
		os.Exit(1)
	}
	scanTask, err := jobs.NewSecurityScanTask(jobs.SecurityScanPayload{
		WindowHours: 1,
		Threshold:   cfg.SecurityAlertThreshold,
	})
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDecisionExport, Handler: exportJob.Handle},
			{Type: jobs.TaskSecurityScan, Handler: scanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DecisionExportCronSpec, Task: exportTask},
			{Spec: cfg.SecurityScanCronSpec, Task: scanTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}
