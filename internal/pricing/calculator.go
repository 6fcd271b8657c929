// Package pricing computes public prices for catalog line items.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Classification selects which margin coefficient applies to an item.
type Classification string

const (
	ClassificationService Classification = "servicio"
	ClassificationProduct Classification = "producto"
)

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	return c == ClassificationService || c == ClassificationProduct
}

// Config holds the tenant-scoped pricing coefficients. All values are fractions (0.3 == 30%).
type Config struct {
	ServiceMargin   float64 `json:"service_margin"`
	ProductMargin   float64 `json:"product_margin"`
	SalesCommission float64 `json:"sales_commission"`
	Markup          float64 `json:"markup"`
}

// ErrNegativeCoefficient is returned by Config.Validate.
var ErrNegativeCoefficient = errors.New("pricing: coefficients must not be negative")

// Validate rejects negative coefficients.
func (c Config) Validate() error {
	if c.ServiceMargin < 0 || c.ProductMargin < 0 || c.SalesCommission < 0 || c.Markup < 0 {
		return ErrNegativeCoefficient
	}
	return nil
}

// Input describes one unit of a catalog item.
type Input struct {
	Cost           float64
	Expenses       float64
	Classification Classification
}

// Result is the outcome of Calculate.
type Result struct {
	FinalPrice float64 `json:"final_price"`
	BaseProfit float64 `json:"base_profit"`
	// Commission is the share of FinalPrice owed as sales commission. It does not alter FinalPrice.
	Commission float64 `json:"commission"`
}

// Calculate applies the margin for the item's classification on top of cost plus expenses and
// then the markup on the resulting amount. Only FinalPrice, BaseProfit and Commission are rounded
// to currency precision; intermediate values keep full precision.
func Calculate(in Input, cfg Config) Result {
	basis := decimal.NewFromFloat(in.Cost).Add(decimal.NewFromFloat(in.Expenses))

	margin := cfg.ServiceMargin
	if in.Classification == ClassificationProduct {
		margin = cfg.ProductMargin
	}
	profit := basis.Mul(decimal.NewFromFloat(margin))

	markup := decimal.NewFromInt(1).Add(decimal.NewFromFloat(cfg.Markup))
	public := basis.Add(profit).Mul(markup)

	commission := public.Mul(decimal.NewFromFloat(cfg.SalesCommission))

	return Result{
		FinalPrice: money(public),
		BaseProfit: money(profit),
		Commission: money(commission),
	}
}

// Subtotal multiplies a unit price by an effective quantity and rounds to currency precision.
func Subtotal(unitPrice, quantity float64) float64 {
	return money(decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromFloat(quantity)))
}

// Round2 rounds an amount to currency precision.
func Round2(v float64) float64 {
	return money(decimal.NewFromFloat(v))
}

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// Sum adds amounts without intermediate float drift and rounds the total to currency precision.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return money(total)
}
