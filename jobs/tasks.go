package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPricingResync re-prices one quotation whose post-commit sync failed.
	TaskPricingResync = "quotes:pricing_resync"
	// TaskDriftScan re-prices every quotation that has not been authorized yet.
	TaskDriftScan = "quotes:drift_scan"
)

// PricingResyncPayload identifies the quotation to re-price.
type PricingResyncPayload struct {
	QuotationID int64 `json:"quotation_id"`
}

// NewPricingResyncTask builds a re-sync task. Duplicate tasks for the same quotation are
// rejected while one is pending.
func NewPricingResyncTask(quotationID int64) (*asynq.Task, error) {
	body, err := json.Marshal(PricingResyncPayload{QuotationID: quotationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPricingResync, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(8),
		asynq.Unique(15*time.Minute),
	), nil
}

// DriftScanPayload configures the drift scan.
type DriftScanPayload struct {
	Limit int `json:"limit"`
}

// NewDriftScanTask builds a drift scan task visiting at most limit quotations.
func NewDriftScanTask(limit int) (*asynq.Task, error) {
	if limit <= 0 {
		limit = defaultDriftScanLimit
	}
	body, err := json.Marshal(DriftScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDriftScan, body, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}
