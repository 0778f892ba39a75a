package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/stockflow-erp/stockflow/internal/adjustments"
	"github.com/stockflow-erp/stockflow/internal/app"
	"github.com/stockflow-erp/stockflow/internal/audits"
	"github.com/stockflow-erp/stockflow/internal/auth"
	"github.com/stockflow-erp/stockflow/internal/inventory"
	jobmetrics "github.com/stockflow-erp/stockflow/internal/jobs"
	"github.com/stockflow-erp/stockflow/internal/notify"
	"github.com/stockflow-erp/stockflow/internal/platform/cache"
	"github.com/stockflow-erp/stockflow/internal/platform/db"
	"github.com/stockflow-erp/stockflow/internal/shared"
	"github.com/stockflow-erp/stockflow/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	trail := shared.NewApprovalTrail(pool, logger)
	actions := shared.NewActionRecorder(pool)
	ledger := inventory.NewLedger()
	authRepo := auth.NewPGRepository(pool)

	// The worker publishes directly; no enqueuer, or dispatch tasks would
	// loop back into the queue.
	notifyService := notify.NewService(logger, notify.NewRepository(pool), authRepo, notify.NewRedisPublisher(redisClient), nil)

	adjustmentService := adjustments.NewService(adjustments.NewRepository(pool), ledger, trail, actions, notifyService, nil)
	auditService := audits.NewService(audits.NewRepository(pool), adjustmentService, actions, notifyService, nil)
	adjustmentService.BindAuditCloser(auditService)

	dispatchJob := jobs.NewNotifyDispatchJob(notifyService, logger, metrics)
	reminderJob := jobs.NewApprovalReminderJob(pool, notifyService, logger, metrics)
	closeScanJob := jobs.NewAuditCloseScanJob(auditService, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: notify.TaskDispatch, Handler: dispatchJob.Handle},
			{Type: jobs.TaskApprovalReminder, Handler: reminderJob.Handle},
			{Type: jobs.TaskAuditCloseScan, Handler: closeScanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 8 * * *", Task: jobs.NewApprovalReminderTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 * * * *", Task: jobs.NewAuditCloseScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
