package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/offercdp/offercdp/internal/app"
	"github.com/offercdp/offercdp/internal/customer"
	"github.com/offercdp/offercdp/internal/history"
	jobmetrics "github.com/offercdp/offercdp/internal/jobs"
	"github.com/offercdp/offercdp/internal/journey"
	"github.com/offercdp/offercdp/internal/offer"
	"github.com/offercdp/offercdp/internal/platform/cache"
	"github.com/offercdp/offercdp/internal/platform/db"
	"github.com/offercdp/offercdp/internal/shared"
	"github.com/offercdp/offercdp/internal/sweeper"
	"github.com/offercdp/offercdp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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

	journeyService := journey.NewService(journey.NewRepository(pool), redisClient)
	offerStore := offer.NewStore(pool)

	expirySweeper := sweeper.NewExpirySweeper(offerStore, journeyService, cfg.JourneyLANValidity, logger)
	retentionSweeper := sweeper.NewRetentionSweeper(
		history.NewRepository(pool),
		offerStore,
		customer.NewRepository(pool),
		shared.NewIdempotencyStore(pool),
		cfg.HistoryRetention,
		cfg.OfferRetention,
		cfg.CustomerOrphanAge,
		cfg.BatchIdempotencyTTL,
		logger,
	)

	expiryTask, err := jobs.NewOfferExpirySweepTask(jobs.SweepPayload{})
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	retentionTask, err := jobs.NewRetentionSweepTask(jobs.SweepPayload{})
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOfferExpirySweep, Handler: jobs.NewOfferExpiryJob(expirySweeper, metrics, logger).Handle},
			{Type: jobs.TaskRetentionSweep, Handler: jobs.NewRetentionJob(retentionSweeper, metrics, logger).Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpirySweepSpec, Task: expiryTask},
			{Spec: cfg.RetentionSweepSpec, Task: retentionTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
