// Package catalog reads live catalog data and studio pricing configuration from PostgreSQL.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studio-ops/quotation-engine/internal/pricing"
	"github.com/studio-ops/quotation-engine/internal/quotes"
)

// Repository implements quotes.Catalog and quotes.ConfigStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetItem retrieves a catalog item.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (*quotes.CatalogItem, error) {
	var (
		it             quotes.CatalogItem
		classification string
		billing        string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, cost, expense, classification, category_id, billing, position
		FROM catalog_items
		WHERE id = $1
	`, itemID).Scan(&it.ID, &it.Name, &it.Description, &it.Cost, &it.Expense, &classification, &it.CategoryID, &billing, &it.Order)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: catalog item %d", quotes.ErrNotFound, itemID)
		}
		return nil, err
	}
	it.Classification = pricing.Classification(classification)
	it.Billing = pricing.BillingMethod(billing)
	return &it, nil
}

// GetCategoryPath retrieves a category together with its section.
func (r *Repository) GetCategoryPath(ctx context.Context, categoryID int64) (*quotes.CategoryPath, error) {
	var p quotes.CategoryPath
	err := r.pool.QueryRow(ctx, `
		SELECT c.name, s.name, s.position, c.position
		FROM catalog_categories c
		INNER JOIN catalog_sections s ON s.id = c.section_id
		WHERE c.id = $1
	`, categoryID).Scan(&p.CategoryName, &p.SectionName, &p.SectionOrder, &p.CategoryOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: catalog category %d", quotes.ErrNotFound, categoryID)
		}
		return nil, err
	}
	return &p, nil
}

// GetConfig retrieves the pricing coefficients of a studio.
func (r *Repository) GetConfig(ctx context.Context, studioID int64) (pricing.Config, error) {
	var cfg pricing.Config
	err := r.pool.QueryRow(ctx, `
		SELECT service_margin, product_margin, sales_commission, markup
		FROM pricing_configurations
		WHERE studio_id = $1
	`, studioID).Scan(&cfg.ServiceMargin, &cfg.ProductMargin, &cfg.SalesCommission, &cfg.Markup)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Config{}, fmt.Errorf("%w: studio %d", quotes.ErrConfigurationMissing, studioID)
		}
		return pricing.Config{}, err
	}
	return cfg, nil
}

var (
	_ quotes.Catalog     = (*Repository)(nil)
	_ quotes.ConfigStore = (*Repository)(nil)
)
