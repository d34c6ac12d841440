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
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"golang.org/x/sync/errgroup"

	"github.com/flowbill/flowbill/internal/app"
	"github.com/flowbill/flowbill/internal/booking"
	"github.com/flowbill/flowbill/internal/catalog"
	"github.com/flowbill/flowbill/internal/grn"
	"github.com/flowbill/flowbill/internal/indent"
	"github.com/flowbill/flowbill/internal/observability"
	"github.com/flowbill/flowbill/internal/platform/cache"
	"github.com/flowbill/flowbill/internal/platform/db"
	"github.com/flowbill/flowbill/internal/purchasing"
	"github.com/flowbill/flowbill/internal/shared"
	"github.com/flowbill/flowbill/internal/vendors"
	"github.com/flowbill/flowbill/jobs"
	"github.com/flowbill/flowbill/migrations"
)

type grnMetricsSink struct {
	metrics *observability.EngineMetrics
}

func (s grnMetricsSink) GRNCreated(_ context.Context, event grn.GRNCreatedEvent) error {
	s.metrics.GRNCreated(string(event.Type), string(event.Status), event.AcceptedUnits)
	return nil
}

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	goose.SetBaseFS(migrations.FS)
	return goose.Up(sqlDB, ".")
}

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

	if err := runMigrations(cfg.PGDSN); err != nil {
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

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	idempotencyStore := shared.NewIdempotencyStore(pool)
	auditLogger := shared.NewAuditLogger(pool)

	metrics := observability.NewMetrics()
	engineMetrics := observability.NewEngineMetrics(metrics.Registerer())

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, idempotencyStore, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	vendorCache := vendors.NewCache(redisClient, cfg.CacheTTL)
	vendorRepo := vendors.NewRepository(pool)
	vendorService := vendors.NewService(vendorRepo, vendorCache, logger)
	vendorHandler := vendors.NewHandler(logger, vendorService)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(purchasingRepo, auditLogger, logger)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	grnRepo := grn.NewRepository(pool)
	grnEvents := grn.IntegrationHandlers{grnMetricsSink{metrics: engineMetrics}, queue}
	grnService := grn.NewService(grnRepo, grnEvents, logger)
	grnHandler := grn.NewHandler(logger, grnService)

	indentRepo := indent.NewRepository(pool)
	indentService := indent.NewService(indentRepo, vendorService, logger)
	indentHandler := indent.NewHandler(logger, indentService)

	bookingRepo := booking.NewRepository(pool)
	bookingService := booking.NewService(bookingRepo, queue, logger)
	bookingHandler := booking.NewHandler(logger, bookingService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Pool:              pool,
		CatalogHandler:    catalogHandler,
		VendorsHandler:    vendorHandler,
		PurchasingHandler: purchasingHandler,
		GRNHandler:        grnHandler,
		IndentHandler:     indentHandler,
		BookingHandler:    bookingHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
