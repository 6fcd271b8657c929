// Package quoteshttp exposes quotation lifecycle operations over JSON.
package quoteshttp

import "github.com/studio-ops/quotation-engine/internal/structure"

type cancelClosingRequest struct {
	RestoreSiblings bool `json:"restore_siblings"`
}

type hierarchyOptions struct {
	IncludePrices       bool   `json:"include_prices"`
	IncludeDescriptions bool   `json:"include_descriptions"`
	OrderBy             string `json:"order_by" validate:"omitempty,oneof=incremental catalogo insercion"`
}

func (o hierarchyOptions) toOptions() structure.Options {
	return structure.Options{
		IncludePrices:       o.IncludePrices,
		IncludeDescriptions: o.IncludeDescriptions,
		OrderBy:             structure.ParseOrderBy(o.OrderBy),
	}
}

type buildHierarchyRequest struct {
	Items   []structure.Line `json:"items"`
	Options hierarchyOptions `json:"options"`
}

type flattenRequest struct {
	Hierarchy structure.Hierarchy `json:"hierarchy"`
}
