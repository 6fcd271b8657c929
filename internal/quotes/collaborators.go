package quotes

import (
	"context"
	"time"

	"github.com/studio-ops/quotation-engine/internal/pricing"
)

// CatalogItem is the live catalog definition of a service or product.
type CatalogItem struct {
	ID             int64                  `json:"id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Cost           float64                `json:"cost"`
	Expense        float64                `json:"expense"`
	Classification pricing.Classification `json:"classification"`
	CategoryID     int64                  `json:"category_id"`
	Billing        pricing.BillingMethod  `json:"billing"`
	Order          *int                   `json:"order,omitempty"`
}

// CategoryPath locates a catalog category inside its section.
type CategoryPath struct {
	CategoryName  string `json:"category_name"`
	SectionName   string `json:"section_name"`
	SectionOrder  *int   `json:"section_order,omitempty"`
	CategoryOrder *int   `json:"category_order,omitempty"`
}

// Catalog reads live catalog data.
type Catalog interface {
	GetItem(ctx context.Context, itemID int64) (*CatalogItem, error)
	GetCategoryPath(ctx context.Context, categoryID int64) (*CategoryPath, error)
}

// ConfigStore reads tenant pricing coefficients. It returns ErrConfigurationMissing when none
// are stored for the studio.
type ConfigStore interface {
	GetConfig(ctx context.Context, studioID int64) (pricing.Config, error)
}

// HistoryEntry is one pipeline history record.
type HistoryEntry struct {
	ID          string         `json:"id"`
	DealID      int64          `json:"deal_id"`
	QuotationID int64          `json:"quotation_id"`
	Action      string         `json:"action"`
	FromStatus  Status         `json:"from_status,omitempty"`
	ToStatus    Status         `json:"to_status,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	At          time.Time      `json:"at"`
}

// History appends pipeline history. Writes are best effort.
type History interface {
	AppendHistory(ctx context.Context, entry HistoryEntry) error
}

// ResyncEnqueuer schedules an asynchronous pricing re-sync.
type ResyncEnqueuer interface {
	EnqueuePricingResync(ctx context.Context, quotationID int64) error
}

// Recorder observes lifecycle outcomes.
type Recorder interface {
	ObserveTransition(operation, outcome string)
	ObserveHookFailure(hook string)
}
