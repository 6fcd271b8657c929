package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateServiceWithMarkup(t *testing.T) {
	res := Calculate(Input{Cost: 100, Classification: ClassificationService}, Config{ServiceMargin: 0.3, Markup: 0.05})

	assert.Equal(t, 136.5, res.FinalPrice)
	assert.Equal(t, 30.0, res.BaseProfit)
	assert.Equal(t, 273.0, Subtotal(res.FinalPrice, 2))
}

func TestCalculateUsesProductMargin(t *testing.T) {
	cfg := Config{ServiceMargin: 0.5, ProductMargin: 0.2}

	res := Calculate(Input{Cost: 80, Expenses: 20, Classification: ClassificationProduct}, cfg)

	assert.Equal(t, 120.0, res.FinalPrice)
	assert.Equal(t, 20.0, res.BaseProfit)
}

func TestCalculateUnknownClassificationFallsBackToService(t *testing.T) {
	res := Calculate(Input{Cost: 10, Classification: ""}, Config{ServiceMargin: 1, ProductMargin: 0})
	assert.Equal(t, 20.0, res.FinalPrice)
}

func TestCalculateCommissionDoesNotAlterPrice(t *testing.T) {
	res := Calculate(Input{Cost: 100, Classification: ClassificationService}, Config{ServiceMargin: 0.3, Markup: 0.05, SalesCommission: 0.1})

	assert.Equal(t, 136.5, res.FinalPrice)
	assert.Equal(t, 13.65, res.Commission)
}

func TestCalculateNeverBelowBasis(t *testing.T) {
	configs := []Config{
		{},
		{ServiceMargin: 0.15, ProductMargin: 0.4, Markup: 0.1},
		{ServiceMargin: 2, ProductMargin: 0.01, Markup: 0.33, SalesCommission: 0.05},
	}
	inputs := []Input{
		{Cost: 0, Expenses: 0},
		{Cost: 0.01, Expenses: 0.02, Classification: ClassificationProduct},
		{Cost: 1999.99, Expenses: 13.37, Classification: ClassificationService},
		{Cost: 333.33, Expenses: 0, Classification: ClassificationProduct},
	}
	for _, cfg := range configs {
		require.NoError(t, cfg.Validate())
		for _, in := range inputs {
			res := Calculate(in, cfg)
			assert.GreaterOrEqual(t, res.FinalPrice, Round2(in.Cost+in.Expenses), "cfg=%+v in=%+v", cfg, in)
		}
	}
}

func TestConfigValidateRejectsNegative(t *testing.T) {
	assert.ErrorIs(t, Config{Markup: -0.1}.Validate(), ErrNegativeCoefficient)
	assert.NoError(t, Config{ServiceMargin: 0.3}.Validate())
}

func TestEffectiveQuantity(t *testing.T) {
	hours := 6.0
	zero := 0.0

	assert.Equal(t, 12.0, EffectiveQuantity(BillingHour, 2, &hours))
	assert.Equal(t, 2.0, EffectiveQuantity(BillingHour, 2, nil))
	assert.Equal(t, 2.0, EffectiveQuantity(BillingHour, 2, &zero))
	assert.Equal(t, 3.0, EffectiveQuantity(BillingService, 3, &hours))
	assert.Equal(t, 4.0, EffectiveQuantity(BillingUnit, 4, &hours))
}
