package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/offercdp/offercdp/internal/app"
	"github.com/offercdp/offercdp/internal/customer"
	"github.com/offercdp/offercdp/internal/export"
	"github.com/offercdp/offercdp/internal/history"
	"github.com/offercdp/offercdp/internal/ingest"
	"github.com/offercdp/offercdp/internal/journey"
	"github.com/offercdp/offercdp/internal/observability"
	"github.com/offercdp/offercdp/internal/offer"
	"github.com/offercdp/offercdp/internal/platform/cache"
	"github.com/offercdp/offercdp/internal/platform/db"
	"github.com/offercdp/offercdp/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, journey status lookups uncached", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	customerRepo := customer.NewRepository(pool)
	customerService := customer.NewService(customerRepo)

	journeyRepo := journey.NewRepository(pool)
	journeyService := journey.NewService(journeyRepo, redisClient)

	offerStore := offer.NewStore(pool)
	engine := offer.NewEngine(offerStore, journeyService)

	historyRepo := history.NewRepository(pool)

	ingestService := ingest.NewService(customerService, engine)
	idemStore := shared.NewIdempotencyStore(pool)

	exportService := export.NewService(export.NewRepository(pool))

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Pool:            pool,
		Metrics:         metrics,
		IngestHandler:   ingest.NewHandler(ingestService, idemStore, logger),
		CustomerHandler: customer.NewHandler(customerService),
		OfferHandler:    offer.NewHandler(offerStore, historyRepo),
		JourneyHandler:  journey.NewHandler(journeyService),
		ExportHandler:   export.NewHandler(exportService),
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
