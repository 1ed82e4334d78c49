package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lotledger/lotledger/internal/alerts"
	"github.com/lotledger/lotledger/internal/app"
	"github.com/lotledger/lotledger/internal/catalog"
	"github.com/lotledger/lotledger/internal/integration"
	"github.com/lotledger/lotledger/internal/ledger"
	"github.com/lotledger/lotledger/internal/masterdata/suppliers"
	"github.com/lotledger/lotledger/internal/observability"
	"github.com/lotledger/lotledger/internal/platform/cache"
	"github.com/lotledger/lotledger/internal/platform/db"
	"github.com/lotledger/lotledger/internal/procurement"
	"github.com/lotledger/lotledger/internal/shared"
	"github.com/lotledger/lotledger/jobs"
	"github.com/lotledger/lotledger/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := db.Migrate(cfg.PGDSN, migrations.Files); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	catalogRepo := catalog.NewRepository(pool)

	alertCache := alerts.NewCache(redisClient, cfg.AlertCacheTTL)
	alertService := alerts.NewService(alerts.NewRepository(pool), alertCache)
	alertsHandler := alerts.NewHandler(logger, alertService)

	notifier := integration.NewNotifier(queueClient, alertService, logger)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, catalogRepo, auditLogger, idempotencyStore, metrics, notifier)
	stockHandler := ledger.NewHandler(logger, ledgerService)

	supplierService := suppliers.NewService(suppliers.NewRepository(pool))
	suppliersHandler := suppliers.NewHandler(logger, supplierService)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, catalogRepo, supplierService, auditLogger, idempotencyStore, metrics, notifier)
	procurementHandler := procurement.NewHandler(logger, procurementService)

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
		ProcurementHandler: procurementHandler,
		StockHandler:       stockHandler,
		AlertsHandler:      alertsHandler,
		SuppliersHandler:   suppliersHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
