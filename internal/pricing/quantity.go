package pricing

// BillingMethod describes how an item's quantity is charged.
type BillingMethod string

const (
	BillingHour    BillingMethod = "HOUR"
	BillingService BillingMethod = "SERVICE"
	BillingUnit    BillingMethod = "UNIT"
)

// Valid reports whether m is a known billing method.
func (m BillingMethod) Valid() bool {
	switch m {
	case BillingHour, BillingService, BillingUnit:
		return true
	}
	return false
}

// EffectiveQuantity scales hourly items by the event duration. Other methods, and hourly items
// without a positive duration, use the raw quantity.
func EffectiveQuantity(method BillingMethod, quantity float64, durationHours *float64) float64 {
	if method == BillingHour && durationHours != nil && *durationHours > 0 {
		return quantity * *durationHours
	}
	return quantity
}
