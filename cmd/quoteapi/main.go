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

	"github.com/studio-ops/quotation-engine/internal/app"
	"github.com/studio-ops/quotation-engine/internal/catalog"
	"github.com/studio-ops/quotation-engine/internal/deals"
	"github.com/studio-ops/quotation-engine/internal/observability"
	"github.com/studio-ops/quotation-engine/internal/platform/cache"
	"github.com/studio-ops/quotation-engine/internal/platform/db"
	"github.com/studio-ops/quotation-engine/internal/quotes"
	quoteshttp "github.com/studio-ops/quotation-engine/internal/quotes/http"
	"github.com/studio-ops/quotation-engine/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var structureCache *quotes.StructureCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, structure cache disabled", slog.Any("error", err))
		structureCache = quotes.NewStructureCache(nil, cfg.StructureCacheTTL)
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		structureCache = quotes.NewStructureCache(redisClient, cfg.StructureCacheTTL)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	catalogRepo := catalog.NewRepository(dbpool)

	quoteService := quotes.NewService(quotes.Dependencies{
		Repo:     quotes.NewPGRepository(dbpool, cfg.TxTimeout),
		Catalog:  catalogRepo,
		Configs:  catalogRepo,
		History:  deals.NewHistoryWriter(dbpool),
		Cache:    structureCache,
		Enqueuer: jobClient,
		Recorder: metrics,
		Logger:   logger,
	})
	quoteHandler := quoteshttp.NewHandler(logger, quoteService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		QuoteHandler: quoteHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
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
