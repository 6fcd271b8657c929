package quotes

import (
	"context"
	"fmt"
)

// Move carries the external references a revision item ends up with after migration.
type Move struct {
	ToItemID         int64   `json:"to_item_id"`
	FromItemIDs      []int64 `json:"from_item_ids"`
	CatalogItemID    int64   `json:"catalog_item_id"`
	SchedulingTaskID *int64  `json:"scheduling_task_id,omitempty"`
	CrewAssignmentID *int64  `json:"crew_assignment_id,omitempty"`
}

// Orphan is an original item whose references stay behind on the replaced quotation.
type Orphan struct {
	ItemID           int64  `json:"item_id"`
	CatalogItemID    *int64 `json:"catalog_item_id,omitempty"`
	SchedulingTaskID *int64 `json:"scheduling_task_id,omitempty"`
	CrewAssignmentID *int64 `json:"crew_assignment_id,omitempty"`
	Reason           string `json:"reason"`
}

// MigrationPlan is the outcome of matching original items to revision items.
type MigrationPlan struct {
	Moves   []Move   `json:"moves"`
	Orphans []Orphan `json:"orphans"`
}

// PlanMigration matches every original item holding a scheduling-task or crew-assignment
// reference to the revision item sourced from the same catalog item. The k-th occurrence of a
// catalog item in the original maps to the k-th occurrence in the revision, or to the last one
// when the revision has fewer. References already present on the target are left alone, so
// planning against an already-migrated revision yields no moves.
func PlanMigration(original, revision []Item) MigrationPlan {
	targets := make([]Item, len(revision))
	copy(targets, revision)

	candidates := make(map[int64][]int)
	for i, it := range targets {
		if it.CatalogItemID != nil {
			candidates[*it.CatalogItemID] = append(candidates[*it.CatalogItemID], i)
		}
	}

	var plan MigrationPlan
	touched := make(map[int][]int64)
	var touchOrder []int
	occurrence := make(map[int64]int)

	for _, it := range original {
		k := 0
		if it.CatalogItemID != nil {
			k = occurrence[*it.CatalogItemID]
			occurrence[*it.CatalogItemID]++
		}
		if it.SchedulingTaskID == nil && it.CrewAssignmentID == nil {
			continue
		}
		orphan := Orphan{
			ItemID:           it.ID,
			CatalogItemID:    it.CatalogItemID,
			SchedulingTaskID: it.SchedulingTaskID,
			CrewAssignmentID: it.CrewAssignmentID,
		}
		if it.Custom() {
			orphan.Reason = "custom item has no catalog counterpart"
			plan.Orphans = append(plan.Orphans, orphan)
			continue
		}
		cands := candidates[*it.CatalogItemID]
		if len(cands) == 0 {
			orphan.Reason = "catalog item is not part of the revision"
			plan.Orphans = append(plan.Orphans, orphan)
			continue
		}
		idx := cands[min(k, len(cands)-1)]
		target := &targets[idx]

		taskMoved, taskConflict := merge(&target.SchedulingTaskID, it.SchedulingTaskID)
		crewMoved, crewConflict := merge(&target.CrewAssignmentID, it.CrewAssignmentID)
		if taskConflict || crewConflict {
			conflict := orphan
			conflict.Reason = "revision item already references another resource"
			if !taskConflict {
				conflict.SchedulingTaskID = nil
			}
			if !crewConflict {
				conflict.CrewAssignmentID = nil
			}
			plan.Orphans = append(plan.Orphans, conflict)
		}
		if !taskMoved && !crewMoved {
			continue
		}
		if _, seen := touched[idx]; !seen {
			touchOrder = append(touchOrder, idx)
		}
		touched[idx] = append(touched[idx], it.ID)
	}

	for _, idx := range touchOrder {
		t := targets[idx]
		plan.Moves = append(plan.Moves, Move{
			ToItemID:         t.ID,
			FromItemIDs:      touched[idx],
			CatalogItemID:    *t.CatalogItemID,
			SchedulingTaskID: t.SchedulingTaskID,
			CrewAssignmentID: t.CrewAssignmentID,
		})
	}
	return plan
}

// merge copies ref into *dst when dst is free. It reports whether dst changed and whether a
// different reference already occupied it.
func merge(dst **int64, ref *int64) (moved, conflict bool) {
	if ref == nil {
		return false, false
	}
	switch {
	case *dst == nil:
		v := *ref
		*dst = &v
		return true, false
	case **dst == *ref:
		return false, false
	default:
		return false, true
	}
}

// ApplyMigration writes the planned references onto the revision items.
func ApplyMigration(ctx context.Context, tx TxRepository, plan MigrationPlan) error {
	for _, m := range plan.Moves {
		if err := tx.SetItemReferences(ctx, m.ToItemID, m.SchedulingTaskID, m.CrewAssignmentID); err != nil {
			return fmt.Errorf("migrate references to item %d: %w", m.ToItemID, err)
		}
	}
	return nil
}
