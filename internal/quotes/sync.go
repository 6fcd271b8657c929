package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/studio-ops/quotation-engine/internal/pricing"
)

// Synchronizer re-derives catalog-sourced item pricing from the live catalog and the studio's
// current pricing configuration.
type Synchronizer struct {
	catalog Catalog
	configs ConfigStore
	logger  *slog.Logger
}

// NewSynchronizer builds a Synchronizer.
func NewSynchronizer(catalog Catalog, configs ConfigStore, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{catalog: catalog, configs: configs, logger: logger}
}

// Syncable reports whether live pricing of a quotation in status s may still be refreshed.
func Syncable(s Status) bool {
	return s == StatusPending || s == StatusNegotiation || s == StatusClosing
}

// Sync re-prices a quotation in its own transaction. Quotations past authorization are refused
// so their frozen values never drift.
func (s *Synchronizer) Sync(ctx context.Context, repo Repository, quotationID int64) error {
	return repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.Lock(ctx, quotationID)
		if err != nil {
			return err
		}
		if q.Archived || !Syncable(q.Status) {
			return fmt.Errorf("%w: quotation %d is %s and its pricing is frozen", ErrInvalidState, q.ID, q.Status)
		}
		cfg, err := s.config(ctx, q.StudioID)
		if err != nil {
			return err
		}
		changed, err := s.reprice(ctx, q, cfg)
		if err != nil {
			return err
		}
		for _, idx := range changed {
			if err := tx.SaveItemPricing(ctx, q.Items[idx]); err != nil {
				return err
			}
		}
		q.ListPrice = listPrice(q.Items)
		if !q.ManualPrice {
			q.Price = q.ListPrice
		}
		return tx.Save(ctx, *q)
	})
}

// Freeze writes the snapshot field set of every item of q inside tx. Catalog items are re-priced
// first; when the studio has no pricing configuration the current live values are frozen as-is.
func (s *Synchronizer) Freeze(ctx context.Context, tx TxRepository, q *Quotation) error {
	cfg, err := s.config(ctx, q.StudioID)
	switch {
	case err == nil:
		if _, err := s.reprice(ctx, q, cfg); err != nil {
			return err
		}
	case errors.Is(err, ErrConfigurationMissing):
		s.logger.Warn("freezing live values without pricing configuration",
			slog.Int64("quotation_id", q.ID), slog.Int64("studio_id", q.StudioID))
	default:
		return err
	}
	for i := range q.Items {
		q.Items[i].Snapshot = q.Items[i].Live
		if err := tx.SaveItemPricing(ctx, q.Items[i]); err != nil {
			return err
		}
	}
	q.ListPrice = listPrice(q.Items)
	return nil
}

// Price re-prices the catalog items of q inside tx. Without a pricing configuration it returns
// false and leaves the items untouched, unless refreeze is set, in which case the missing
// configuration is an error. With refreeze the snapshot field set is rewritten from the live one.
func (s *Synchronizer) Price(ctx context.Context, tx TxRepository, q *Quotation, refreeze bool) (bool, error) {
	cfg, err := s.config(ctx, q.StudioID)
	if err != nil {
		if errors.Is(err, ErrConfigurationMissing) && !refreeze {
			s.logger.Warn("deferring item pricing without pricing configuration",
				slog.Int64("quotation_id", q.ID), slog.Int64("studio_id", q.StudioID))
			return false, nil
		}
		return false, err
	}
	changed, err := s.reprice(ctx, q, cfg)
	if err != nil {
		return false, err
	}
	if refreeze {
		changed = changed[:0]
		for i := range q.Items {
			q.Items[i].Snapshot = q.Items[i].Live
			changed = append(changed, i)
		}
	}
	for _, idx := range changed {
		if err := tx.SaveItemPricing(ctx, q.Items[idx]); err != nil {
			return false, err
		}
	}
	q.ListPrice = listPrice(q.Items)
	return true, nil
}

func (s *Synchronizer) config(ctx context.Context, studioID int64) (pricing.Config, error) {
	cfg, err := s.configs.GetConfig(ctx, studioID)
	if err != nil {
		if errors.Is(err, ErrConfigurationMissing) || errors.Is(err, ErrNotFound) {
			return pricing.Config{}, fmt.Errorf("%w: studio %d", ErrConfigurationMissing, studioID)
		}
		return pricing.Config{}, fmt.Errorf("load pricing configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return pricing.Config{}, fmt.Errorf("%w: studio %d: %v", ErrConfigurationMissing, studioID, err)
	}
	return cfg, nil
}

// reprice updates q's catalog items in memory and returns the indexes it changed. Items whose
// catalog entry disappeared keep their previous values.
func (s *Synchronizer) reprice(ctx context.Context, q *Quotation, cfg pricing.Config) ([]int, error) {
	var changed []int
	for i := range q.Items {
		item := &q.Items[i]
		if item.Custom() {
			continue
		}
		ci, err := s.catalog.GetItem(ctx, *item.CatalogItemID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("catalog item no longer exists",
				slog.Int64("quotation_id", q.ID), slog.Int64("catalog_item_id", *item.CatalogItemID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load catalog item %d: %w", *item.CatalogItemID, err)
		}
		path, err := s.catalog.GetCategoryPath(ctx, ci.CategoryID)
		if errors.Is(err, ErrNotFound) {
			path = &CategoryPath{}
		} else if err != nil {
			return nil, fmt.Errorf("load category %d: %w", ci.CategoryID, err)
		}

		res := pricing.Calculate(pricing.Input{Cost: ci.Cost, Expenses: ci.Expense, Classification: ci.Classification}, cfg)
		qty := pricing.EffectiveQuantity(ci.Billing, item.Quantity, q.EventDurationHours)
		subtotal := pricing.Subtotal(res.FinalPrice, qty)
		if item.Courtesy {
			subtotal = 0
		}
		fields := ItemFields{
			Name:         ci.Name,
			Description:  ci.Description,
			CategoryName: path.CategoryName,
			SectionName:  path.SectionName,
			UnitPrice:    res.FinalPrice,
			Subtotal:     subtotal,
			Cost:         ci.Cost,
			Expense:      ci.Expense,
			Profit:       res.BaseProfit,
			ProfitType:   ci.Classification,
		}
		categoryID := ci.CategoryID
		item.Live = fields
		item.Snapshot = fields
		item.Billing = ci.Billing
		item.CategoryID = &categoryID
		item.SectionOrder = path.SectionOrder
		item.CategoryOrder = path.CategoryOrder
		changed = append(changed, i)
	}
	return changed, nil
}

func listPrice(items []Item) float64 {
	subtotals := make([]float64, 0, len(items))
	for _, it := range items {
		subtotals = append(subtotals, it.Live.Subtotal)
	}
	return pricing.Sum(subtotals...)
}
