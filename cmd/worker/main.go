package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/studio-ops/quotation-engine/internal/app"
	"github.com/studio-ops/quotation-engine/internal/catalog"
	"github.com/studio-ops/quotation-engine/internal/deals"
	jobmetrics "github.com/studio-ops/quotation-engine/internal/jobs"
	"github.com/studio-ops/quotation-engine/internal/observability"
	"github.com/studio-ops/quotation-engine/internal/platform/cache"
	"github.com/studio-ops/quotation-engine/internal/platform/db"
	"github.com/studio-ops/quotation-engine/internal/quotes"
	"github.com/studio-ops/quotation-engine/jobs"
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

	structureCache := quotes.NewStructureCache(nil, cfg.StructureCacheTTL)
	if redisClient, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		structureCache = quotes.NewStructureCache(redisClient, cfg.StructureCacheTTL)
	}

	repo := quotes.NewPGRepository(pool, cfg.TxTimeout)
	catalogRepo := catalog.NewRepository(pool)
	quoteService := quotes.NewService(quotes.Dependencies{
		Repo:     repo,
		Catalog:  catalogRepo,
		Configs:  catalogRepo,
		History:  deals.NewHistoryWriter(pool),
		Cache:    structureCache,
		Recorder: observability.NewMetrics(),
		Logger:   logger,
	})

	metrics := jobmetrics.NewMetrics(nil)
	resyncJob := jobs.NewPricingResyncJob(quoteService, logger, metrics)
	driftJob := jobs.NewDriftScanJob(quoteService, repo, logger, metrics)

	driftTask, err := jobs.NewDriftScanTask(cfg.DriftScanLimit)
	if err != nil {
		logger.Error("build drift scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPricingResync, Handler: resyncJob.Handle},
			{Type: jobs.TaskDriftScan, Handler: driftJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DriftScanCron, Task: driftTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
