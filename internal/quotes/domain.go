package quotes

import (
	"time"

	"github.com/studio-ops/quotation-engine/internal/pricing"
)

// RevisionStatus tracks the relationship between a quotation and its revisions.
type RevisionStatus string

const (
	RevisionPending  RevisionStatus = "pending_revision"
	RevisionActive   RevisionStatus = "active"
	RevisionReplaced RevisionStatus = "replaced"
)

// Quotation is a priced commercial offer for one deal.
type Quotation struct {
	ID                 int64           `json:"id"`
	StudioID           int64           `json:"studio_id"`
	DealID             int64           `json:"deal_id"`
	Name               string          `json:"name"`
	Description        *string         `json:"description,omitempty"`
	Price              float64         `json:"price"`
	ListPrice          float64         `json:"list_price"`
	ManualPrice        bool            `json:"manual_price"`
	Discount           *float64        `json:"discount,omitempty"`
	Status             Status          `json:"status"`
	Order              int             `json:"order"`
	Archived           bool            `json:"archived"`
	VisibleToClient    bool            `json:"visible_to_client"`
	SelectedByClient   bool            `json:"selected_by_client"`
	ConditionID        *int64          `json:"condition_id,omitempty"`
	CourtesyNotes      *string         `json:"courtesy_notes,omitempty"`
	RevisionOf         *int64          `json:"revision_of,omitempty"`
	RevisionNumber     int             `json:"revision_number"`
	RevisionStatus     *RevisionStatus `json:"revision_status,omitempty"`
	EventID            *int64          `json:"event_id,omitempty"`
	EventDurationHours *float64        `json:"event_duration_hours,omitempty"`
	AuthorizedAt       *time.Time      `json:"authorized_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Items              []Item          `json:"items,omitempty"`
}

// Frozen reports whether snapshots are the source of truth for q.
func (q Quotation) Frozen() bool {
	return q.Status.Authorized()
}

// ItemFields is one complete field set of a line. Every item carries two: Live, re-derived
// from the catalog before authorization, and Snapshot, frozen at authorization.
type ItemFields struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	CategoryName string                 `json:"category_name,omitempty"`
	SectionName  string                 `json:"section_name,omitempty"`
	UnitPrice    float64                `json:"unit_price"`
	Subtotal     float64                `json:"subtotal"`
	Cost         float64                `json:"cost"`
	Expense      float64                `json:"expense"`
	Profit       float64                `json:"profit"`
	ProfitType   pricing.Classification `json:"profit_type,omitempty"`
}

// Empty reports whether the field set was never written.
func (f ItemFields) Empty() bool {
	return f.Name == "" && f.UnitPrice == 0 && f.Subtotal == 0 && f.Cost == 0
}

// Item is one priced line of a quotation. CatalogItemID is nil for custom items.
type Item struct {
	ID               int64                 `json:"id"`
	QuotationID      int64                 `json:"quotation_id"`
	CatalogItemID    *int64                `json:"catalog_item_id,omitempty"`
	CategoryID       *int64                `json:"category_id,omitempty"`
	Quantity         float64               `json:"quantity"`
	Billing          pricing.BillingMethod `json:"billing"`
	Order            int                   `json:"order"`
	SectionOrder     *int                  `json:"section_order,omitempty"`
	CategoryOrder    *int                  `json:"category_order,omitempty"`
	Courtesy         bool                  `json:"courtesy"`
	Live             ItemFields            `json:"live"`
	Snapshot         ItemFields            `json:"snapshot"`
	SchedulingTaskID *int64                `json:"scheduling_task_id,omitempty"`
	CrewAssignmentID *int64                `json:"crew_assignment_id,omitempty"`
}

// Custom reports whether the item is authored inline instead of sourced from the catalog.
func (i Item) Custom() bool {
	return i.CatalogItemID == nil
}

// Resolved returns the field set downstream consumers should read: snapshot values, falling
// back to live values field by field.
func (i Item) Resolved() ItemFields {
	s, l := i.Snapshot, i.Live
	if s.Empty() {
		return l
	}
	out := s
	if out.Name == "" {
		out.Name = l.Name
	}
	if out.Description == "" {
		out.Description = l.Description
	}
	if out.CategoryName == "" {
		out.CategoryName = l.CategoryName
	}
	if out.SectionName == "" {
		out.SectionName = l.SectionName
	}
	if out.ProfitType == "" {
		out.ProfitType = l.ProfitType
	}
	return out
}

// CommercialCondition is a payment/discount override. Temporary conditions are scoped to a
// single quotation; at most one exists per quotation.
type CommercialCondition struct {
	ID              int64    `json:"id"`
	StudioID        int64    `json:"studio_id"`
	QuotationID     *int64   `json:"quotation_id,omitempty"`
	Name            string   `json:"name"`
	AdvancePercent  *float64 `json:"advance_percent,omitempty"`
	AdvanceAmount   *float64 `json:"advance_amount,omitempty"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
	Temporary       bool     `json:"temporary"`
}

// ClosingRecord remembers what pass-to-closing changed so cancel-closing can undo it.
type ClosingRecord struct {
	QuotationID        int64     `json:"quotation_id"`
	PriorStatus        Status    `json:"prior_status"`
	ConditionID        *int64    `json:"condition_id,omitempty"`
	Notes              *string   `json:"notes,omitempty"`
	ArchivedSiblingIDs []int64   `json:"archived_sibling_ids"`
	CreatedAt          time.Time `json:"created_at"`
}

// Deal is the sales opportunity quotations belong to.
type Deal struct {
	ID        int64      `json:"id"`
	StudioID  int64      `json:"studio_id"`
	Name      string     `json:"name"`
	StageSlug string     `json:"stage_slug"`
	EventDate *time.Time `json:"event_date,omitempty"`
	EventID   *int64     `json:"event_id,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
}

// Pipeline stage and tag slugs written by this package.
const (
	StageApproved    = "approved"
	TagCancelled     = "cancelled"
	historyNamespace = "quotation"
)

// Summary is returned by lifecycle operations.
type Summary struct {
	ID             int64           `json:"id"`
	DealID         int64           `json:"deal_id"`
	Name           string          `json:"name"`
	Status         Status          `json:"status"`
	Price          float64         `json:"price"`
	ListPrice      float64         `json:"list_price"`
	Archived       bool            `json:"archived"`
	RevisionOf     *int64          `json:"revision_of,omitempty"`
	RevisionNumber int             `json:"revision_number"`
	RevisionStatus *RevisionStatus `json:"revision_status,omitempty"`
	ItemCount      int             `json:"item_count"`
}

// Summarize builds a Summary from q.
func Summarize(q *Quotation) Summary {
	return Summary{
		ID:             q.ID,
		DealID:         q.DealID,
		Name:           q.Name,
		Status:         q.Status,
		Price:          q.Price,
		ListPrice:      q.ListPrice,
		Archived:       q.Archived,
		RevisionOf:     q.RevisionOf,
		RevisionNumber: q.RevisionNumber,
		RevisionStatus: q.RevisionStatus,
		ItemCount:      len(q.Items),
	}
}
