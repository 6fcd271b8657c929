package structure

import "strings"

// OrderBy selects how sections and categories are ordered.
type OrderBy string

const (
	// OrderIncremental orders groups by first appearance in the input.
	OrderIncremental OrderBy = "incremental"
	// OrderCatalog orders groups by the catalog-provided section/category order and items by
	// session/assistance weight, then by their own order.
	OrderCatalog OrderBy = "catalogo"
	// OrderInsertion lets each group inherit the order of the first item seen for it.
	OrderInsertion OrderBy = "insercion"
)

// ParseOrderBy maps a raw option to an OrderBy, defaulting to OrderIncremental.
func ParseOrderBy(raw string) OrderBy {
	switch OrderBy(strings.ToLower(strings.TrimSpace(raw))) {
	case OrderCatalog:
		return OrderCatalog
	case OrderInsertion:
		return OrderInsertion
	default:
		return OrderIncremental
	}
}

// unsetPosition is the order assigned to anything without an explicit one.
const unsetPosition = 999

// position resolves an optional order.
func position(p *int) int {
	if p == nil {
		return unsetPosition
	}
	return *p
}

// rank is the single sort key used for sections, categories and items. Lower sorts first;
// seen breaks ties so sorting is stable with respect to input order.
type rank struct {
	weight int
	order  int
	seen   int
}

func (a rank) less(b rank) bool {
	if a.weight != b.weight {
		return a.weight < b.weight
	}
	if a.order != b.order {
		return a.order < b.order
	}
	return a.seen < b.seen
}
