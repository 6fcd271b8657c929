package quotes

import (
	"fmt"
	"strings"

	"github.com/studio-ops/quotation-engine/internal/pricing"
)

// CatalogSelection picks a catalog item and its quantity.
type CatalogSelection struct {
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
}

// CustomItemInput is an inline line priced by its author.
type CustomItemInput struct {
	Name           string                 `json:"name" validate:"required,max=200"`
	Description    string                 `json:"description" validate:"max=2000"`
	SectionName    string                 `json:"section_name" validate:"max=200"`
	CategoryName   string                 `json:"category_name" validate:"max=200"`
	Quantity       float64                `json:"quantity" validate:"gt=0"`
	UnitPrice      float64                `json:"unit_price" validate:"gte=0"`
	Cost           float64                `json:"cost" validate:"gte=0"`
	Expense        float64                `json:"expense" validate:"gte=0"`
	Classification pricing.Classification `json:"classification" validate:"omitempty,oneof=servicio producto"`
	Billing        pricing.BillingMethod  `json:"billing" validate:"omitempty,oneof=HOUR SERVICE UNIT"`
}

// QuotationInput is the editable shape shared by create and update.
type QuotationInput struct {
	Name               string             `json:"name" validate:"required,max=200"`
	Description        *string            `json:"description"`
	PriceOverride      *float64           `json:"price_override" validate:"omitempty,gte=0"`
	EventDurationHours *float64           `json:"event_duration_hours" validate:"omitempty,gt=0"`
	CatalogSelections  []CatalogSelection `json:"catalog_selections" validate:"dive"`
	CustomItems        []CustomItemInput  `json:"custom_items" validate:"dive"`
	ConditionID        *int64             `json:"condition_id" validate:"omitempty,gt=0"`
}

// CreateInput creates a quotation for a deal.
type CreateInput struct {
	DealID int64 `json:"deal_id" validate:"required,gt=0"`
	QuotationInput
}

// AuthorizeInput authorizes a quotation at an agreed amount.
type AuthorizeInput struct {
	QuotationID int64   `json:"quotation_id"`
	DealID      int64   `json:"deal_id" validate:"required,gt=0"`
	ConditionID *int64  `json:"condition_id" validate:"omitempty,gt=0"`
	Amount      float64 `json:"amount" validate:"gte=0"`
}

// ClosingOptions are the optional terms recorded when a quotation passes to closing.
type ClosingOptions struct {
	ConditionID *int64  `json:"condition_id" validate:"omitempty,gt=0"`
	Notes       *string `json:"notes" validate:"omitempty,max=2000"`
}

// ConditionInput describes a temporary commercial condition.
type ConditionInput struct {
	Name            string   `json:"name" validate:"max=200"`
	AdvancePercent  *float64 `json:"advance_percent" validate:"omitempty,gte=0,lte=100"`
	AdvanceAmount   *float64 `json:"advance_amount" validate:"omitempty,gte=0"`
	DiscountPercent *float64 `json:"discount_percent" validate:"omitempty,gte=0,lte=100"`
}

// NegotiationInput applies negotiated terms to a pending quotation.
type NegotiationInput struct {
	QuotationID     int64           `json:"quotation_id"`
	Price           float64         `json:"price" validate:"gte=0"`
	CourtesyItemIDs []int64         `json:"courtesy_item_ids" validate:"dive,gt=0"`
	Condition       *ConditionInput `json:"condition"`
	Notes           *string         `json:"notes" validate:"omitempty,max=2000"`
}

// NegotiationVersionInput creates an independent negotiated copy of a pending quotation.
type NegotiationVersionInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description"`
	NegotiationInput
}

// RevisionInput creates a revision of an authorized quotation.
type RevisionInput struct {
	OriginalID    int64              `json:"original_id"`
	Name          string             `json:"name" validate:"max=200"`
	Description   *string            `json:"description"`
	PriceOverride *float64           `json:"price_override" validate:"omitempty,gte=0"`
	Selections    []CatalogSelection `json:"selections" validate:"dive"`
}

// AuthorizeRevisionInput authorizes a pending revision.
type AuthorizeRevisionInput struct {
	RevisionID          int64   `json:"revision_id"`
	ConditionID         *int64  `json:"condition_id" validate:"omitempty,gt=0"`
	Amount              float64 `json:"amount" validate:"gte=0"`
	MigrateDependencies bool    `json:"migrate_dependencies"`
}

func (in *QuotationInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.PriceOverride != nil && *in.PriceOverride < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if err := validateSelections(in.CatalogSelections); err != nil {
		return err
	}
	for i := range in.CustomItems {
		c := &in.CustomItems[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return fmt.Errorf("%w: custom item %d has no name", ErrValidation, i+1)
		}
		if c.Quantity <= 0 {
			return fmt.Errorf("%w: custom item %q needs a positive quantity", ErrValidation, c.Name)
		}
		if c.UnitPrice < 0 || c.Cost < 0 || c.Expense < 0 {
			return fmt.Errorf("%w: custom item %q has a negative amount", ErrValidation, c.Name)
		}
		if c.Billing == "" {
			c.Billing = pricing.BillingService
		}
		if !c.Billing.Valid() {
			return fmt.Errorf("%w: custom item %q has unknown billing method %q", ErrValidation, c.Name, c.Billing)
		}
		if c.Classification == "" {
			c.Classification = pricing.ClassificationService
		}
		if !c.Classification.Valid() {
			return fmt.Errorf("%w: custom item %q has unknown classification %q", ErrValidation, c.Name, c.Classification)
		}
	}
	return nil
}

func validateSelections(selections []CatalogSelection) error {
	for _, sel := range selections {
		if sel.ItemID <= 0 {
			return fmt.Errorf("%w: catalog selection without item", ErrValidation)
		}
		if sel.Quantity <= 0 {
			return fmt.Errorf("%w: catalog item %d needs a positive quantity", ErrValidation, sel.ItemID)
		}
	}
	return nil
}

func (c *ConditionInput) validate() error {
	if c.AdvancePercent == nil && c.AdvanceAmount == nil && c.DiscountPercent == nil {
		return fmt.Errorf("%w: commercial condition selects no terms", ErrValidation)
	}
	if c.AdvancePercent != nil && c.AdvanceAmount != nil {
		return fmt.Errorf("%w: advance must be a percentage or a fixed amount, not both", ErrValidation)
	}
	for _, p := range []*float64{c.AdvancePercent, c.DiscountPercent} {
		if p != nil && (*p < 0 || *p > 100) {
			return fmt.Errorf("%w: percentages must be between 0 and 100", ErrValidation)
		}
	}
	if c.AdvanceAmount != nil && *c.AdvanceAmount < 0 {
		return fmt.Errorf("%w: advance amount must not be negative", ErrValidation)
	}
	return nil
}
