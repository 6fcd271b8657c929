package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/studio-ops/quotation-engine/internal/jobs"
	"github.com/studio-ops/quotation-engine/internal/quotes"
)

const defaultDriftScanLimit = 500

// SyncableLister lists quotations whose live pricing may still change.
type SyncableLister interface {
	ListSyncable(ctx context.Context, limit int) ([]int64, error)
}

// DriftScanJob re-prices pre-authorization quotations so their live values follow the catalog.
type DriftScanJob struct {
	Syncer  PricingSyncer
	Lister  SyncableLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewDriftScanJob constructs the job handler.
func NewDriftScanJob(syncer PricingSyncer, lister SyncableLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *DriftScanJob {
	return &DriftScanJob{
		Syncer:  syncer,
		Lister:  lister,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan. One failing quotation does not stop the others.
func (j *DriftScanJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Syncer == nil || j.Lister == nil {
		return errors.New("drift scan: dependencies not configured")
	}
	payload := DriftScanPayload{Limit: defaultDriftScanLimit}
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultDriftScanLimit
	}

	tracker := j.metrics().Track(TaskDriftScan)
	start := j.now()

	ids, err := j.Lister.ListSyncable(ctx, payload.Limit)
	if err != nil {
		j.log().Error("list syncable quotations", slog.Any("error", err))
		return tracker.End(err)
	}

	var synced, skipped, failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			return tracker.End(ctx.Err())
		}
		_, err := j.Syncer.SyncPricing(ctx, id)
		switch {
		case err == nil:
			synced++
		case errors.Is(err, quotes.ErrInvalidState), errors.Is(err, quotes.ErrNotFound):
			skipped++
		default:
			failed++
			j.log().Warn("drift scan sync", slog.Int64("quotation_id", id), slog.Any("error", err))
		}
	}
	j.metrics().AddResynced("synced", synced)
	j.metrics().AddResynced("skipped", skipped)
	j.metrics().AddResynced("failed", failed)

	j.log().Info("drift scan complete",
		slog.Int("visited", len(ids)),
		slog.Int("synced", synced),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Duration("elapsed", j.now().Sub(start)),
	)
	if failed > 0 {
		return tracker.End(fmt.Errorf("drift scan: %d of %d quotations failed", failed, len(ids)))
	}
	return tracker.End(nil)
}

func (j *DriftScanJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DriftScanJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDriftScan))
	}
	return slog.Default().With(slog.String("job", TaskDriftScan))
}

func (j *DriftScanJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *DriftScanJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
