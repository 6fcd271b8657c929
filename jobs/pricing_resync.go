package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/studio-ops/quotation-engine/internal/jobs"
	"github.com/studio-ops/quotation-engine/internal/quotes"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PricingSyncer re-prices a quotation from the live catalog.
type PricingSyncer interface {
	SyncPricing(ctx context.Context, id int64) (quotes.Summary, error)
}

// PricingResyncJob retries pricing syncs that failed after a lifecycle commit.
type PricingResyncJob struct {
	Syncer  PricingSyncer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPricingResyncJob constructs the job handler.
func NewPricingResyncJob(syncer PricingSyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PricingResyncJob {
	return &PricingResyncJob{Syncer: syncer, Logger: logger, Metrics: metrics}
}

// Handle executes the re-sync. Quotations that disappeared or were authorized meanwhile are
// skipped without retry.
func (j *PricingResyncJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Syncer == nil {
		return errors.New("pricing resync: dependencies not configured")
	}
	var payload PricingResyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.QuotationID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskPricingResync)
	_, err := j.Syncer.SyncPricing(ctx, payload.QuotationID)
	switch {
	case err == nil:
		j.metrics().AddResynced("synced", 1)
		j.log().Info("quotation re-priced", slog.Int64("quotation_id", payload.QuotationID))
		return tracker.End(nil)
	case errors.Is(err, quotes.ErrInvalidState), errors.Is(err, quotes.ErrNotFound):
		j.metrics().AddResynced("skipped", 1)
		j.log().Info("pricing resync skipped", slog.Int64("quotation_id", payload.QuotationID), slog.String("reason", quotes.Reason(err)))
		return tracker.End(nil)
	default:
		j.metrics().AddResynced("failed", 1)
		j.log().Error("pricing resync", slog.Int64("quotation_id", payload.QuotationID), slog.Any("error", err))
		return tracker.End(err)
	}
}

func (j *PricingResyncJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PricingResyncJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPricingResync))
	}
	return slog.Default().With(slog.String("job", TaskPricingResync))
}
