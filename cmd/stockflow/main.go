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
	"golang.org/x/sync/errgroup"

	"github.com/stockflow-erp/stockflow/internal/adjustments"
	"github.com/stockflow-erp/stockflow/internal/app"
	"github.com/stockflow-erp/stockflow/internal/audits"
	"github.com/stockflow-erp/stockflow/internal/auth"
	"github.com/stockflow-erp/stockflow/internal/catalog"
	"github.com/stockflow-erp/stockflow/internal/inventory"
	"github.com/stockflow-erp/stockflow/internal/notify"
	"github.com/stockflow-erp/stockflow/internal/observability"
	"github.com/stockflow-erp/stockflow/internal/platform/cache"
	"github.com/stockflow-erp/stockflow/internal/platform/db"
	"github.com/stockflow-erp/stockflow/internal/purchasing"
	"github.com/stockflow-erp/stockflow/internal/reports"
	"github.com/stockflow-erp/stockflow/internal/requests"
	"github.com/stockflow-erp/stockflow/internal/shared"
	"github.com/stockflow-erp/stockflow/internal/users"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	readModel := cache.NewReadModel(redisClient, cfg.CacheTTL)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	authRepo := auth.NewPGRepository(pool)
	authService := auth.NewService(authRepo, tokens)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.Middleware{Tokens: tokens}

	metrics := observability.NewMetrics()

	trail := shared.NewApprovalTrail(pool, logger)
	actions := app.InstrumentActions(shared.NewActionRecorder(pool), metrics)
	idempotency := shared.NewIdempotencyStore(pool)
	ledger := inventory.NewLedger()

	var publisher notify.Publisher
	if redisClient != nil {
		publisher = notify.NewRedisPublisher(redisClient)
	}
	notifyService := notify.NewService(logger, notify.NewRepository(pool), authRepo, publisher, asynqClient)
	notifyHandler := notify.NewHandler(logger, notifyService)

	catalogService := catalog.NewService(catalog.NewRepository(pool))
	catalogHandler := catalog.NewHandler(logger, catalogService)

	requestService := requests.NewService(requests.NewRepository(pool), ledger, trail, actions, notifyService, readModel)
	requestHandler := requests.NewHandler(logger, requestService)

	orderService := purchasing.NewService(purchasing.NewRepository(pool), ledger, trail, actions, idempotency, notifyService, readModel)
	orderHandler := purchasing.NewHandler(logger, orderService)

	adjustmentService := adjustments.NewService(adjustments.NewRepository(pool), ledger, trail, actions, notifyService, readModel)
	auditService := audits.NewService(audits.NewRepository(pool), adjustmentService, actions, notifyService, readModel)
	adjustmentService.BindAuditCloser(auditService)
	adjustmentHandler := adjustments.NewHandler(logger, adjustmentService)
	auditHandler := audits.NewHandler(logger, auditService)

	inventoryService := inventory.NewService(inventory.NewPGRepository(pool))
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	reportService := reports.NewService(reports.NewRepository(pool))
	reportHandler := reports.NewHandler(logger, reportService)

	userService := users.NewService(users.NewRepository(pool))
	userHandler := users.NewHandler(logger, userService)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     authMiddleware,
		AuthHandler:        authHandler,
		CatalogHandler:     catalogHandler,
		RequestsHandler:    requestHandler,
		PurchasingHandler:  orderHandler,
		AuditsHandler:      auditHandler,
		AdjustmentsHandler: adjustmentHandler,
		InventoryHandler:   inventoryHandler,
		ReportsHandler:     reportHandler,
		NotifyHandler:      notifyHandler,
		UsersHandler:       userHandler,
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
		return readModel.ListenForInvalidation(groupCtx, func(scope string) {
			logger.Debug("read model invalidated", slog.String("scope", scope))
		})
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown", slog.Any("error", err))
		os.Exit(1)
	}
}
