package quotes

import (
	"github.com/studio-ops/quotation-engine/internal/structure"
)

// Lines converts persisted items into Structure Builder input. Prices come from the resolved
// field set so authorized quotations render their frozen values. Courtesy lines render a zero
// unit price and carry the stored one as list_unit_price.
func Lines(items []Item) []structure.Line {
	lines := make([]structure.Line, 0, len(items))
	for _, it := range items {
		resolved := it.Resolved()
		unitPrice := resolved.UnitPrice
		if it.Courtesy {
			unitPrice = 0
		}
		order := it.Order
		line := structure.Line{
			ID:            it.ID,
			CatalogItemID: it.CatalogItemID,
			BillingType:   string(it.Billing),
			Snapshot: structure.Names{
				Section:     it.Snapshot.SectionName,
				Category:    it.Snapshot.CategoryName,
				Name:        it.Snapshot.Name,
				Description: it.Snapshot.Description,
			},
			Live: structure.Names{
				Section:     it.Live.SectionName,
				Category:    it.Live.CategoryName,
				Name:        it.Live.Name,
				Description: it.Live.Description,
			},
			Quantity:      it.Quantity,
			UnitPrice:     &unitPrice,
			Subtotal:      resolved.Subtotal,
			Order:         &order,
			SectionOrder:  it.SectionOrder,
			CategoryOrder: it.CategoryOrder,
		}
		extra := map[string]any{}
		if it.Courtesy {
			extra["courtesy"] = true
			extra["list_unit_price"] = resolved.UnitPrice
		}
		if it.SchedulingTaskID != nil {
			extra["scheduling_task_id"] = *it.SchedulingTaskID
		}
		if it.CrewAssignmentID != nil {
			extra["crew_assignment_id"] = *it.CrewAssignmentID
		}
		if len(extra) > 0 {
			line.Extra = extra
		}
		lines = append(lines, line)
	}
	return lines
}
