package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/veritrail/veritrail/internal/app"
	"github.com/veritrail/veritrail/internal/audits"
	"github.com/veritrail/veritrail/internal/authz"
	"github.com/veritrail/veritrail/internal/decisionlog"
	"github.com/veritrail/veritrail/internal/directory"
	"github.com/veritrail/veritrail/internal/grants"
	"github.com/veritrail/veritrail/internal/observability"
	"github.com/veritrail/veritrail/internal/platform/db"
	"github.com/veritrail/veritrail/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	directoryRepo := directory.NewRepository(pool)

	decisionRepo := decisionlog.NewRepository(pool)
	decisionRecorder := decisionlog.NewRecorder(decisionRepo, logger, metrics)
	timelineService := decisionlog.NewTimelineService(decisionRepo)
	decisionsHandler := decisionlog.NewHandler(logger, timelineService)

	grantRepo := grants.NewRepository(pool)
	grantCache := grants.NewCache(redisClient, cfg.GrantCacheTTL, logger)
	grantService := grants.NewService(grantRepo, grantCache, decisionRecorder, logger)

	capabilityTable := authz.NewCapabilityTable()
	resolver := authz.NewResolver(capabilityTable, grantService, logger)
	guard := authz.Middleware{Resolver: resolver, Decisions: decisionRecorder, Logger: logger}

	auditRepo := audits.NewRepository(pool)
	visibility := authz.NewVisibilityFilter(auditRepo, logger)
	team := authz.NewTeamAuthorizer(auditRepo, logger)
	overrider := authz.NewOverrider(auditRepo, decisionRecorder, logger)
	auditService := audits.NewService(auditRepo, directoryRepo, visibility, team, overrider, decisionRecorder, logger)

	auditsHandler := audits.NewHandler(logger, auditService, guard)
	grantsHandler := grants.NewHandler(logger, grantService, guard)
	permissionsHandler := authz.NewPermissionsHandler(logger, resolver)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Directory:          directoryRepo,
		Guard:              guard,
		AuditsHandler:      auditsHandler,
		GrantsHandler:      grantsHandler,
		DecisionsHandler:   decisionsHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
