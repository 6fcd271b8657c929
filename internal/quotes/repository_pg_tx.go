package quotes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// pgTx implements TxRepository.
type pgTx struct {
	pgReader
	tx pgx.Tx
}

// Lock loads a quotation and holds its row lock until the transaction ends.
func (t *pgTx) Lock(ctx context.Context, id int64) (*Quotation, error) {
	return t.load(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1 FOR UPDATE`, id)
}

// NameTaken reports whether another non-archived quotation of the deal uses name.
func (t *pgTx) NameTaken(ctx context.Context, dealID int64, name string, excludeID int64) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM quotations
			WHERE deal_id = $1 AND lower(name) = lower($2) AND NOT archived AND id <> $3
		)
	`, dealID, name, excludeID).Scan(&taken)
	return taken, err
}

// Create inserts a quotation.
func (t *pgTx) Create(ctx context.Context, q Quotation) (int64, error) {
	query := `
		INSERT INTO quotations (
			studio_id, deal_id, name, description, price, list_price, manual_price, discount,
			status, position, archived, visible_to_client, selected_by_client, condition_id,
			courtesy_notes, revision_of, revision_number, revision_status, event_id,
			event_duration_hours, authorized_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		q.StudioID, q.DealID, q.Name, q.Description, q.Price, q.ListPrice, q.ManualPrice, q.Discount,
		string(q.Status), q.Order, q.Archived, q.VisibleToClient, q.SelectedByClient, q.ConditionID,
		q.CourtesyNotes, q.RevisionOf, q.RevisionNumber, revisionStatusArg(q.RevisionStatus), q.EventID,
		q.EventDurationHours, q.AuthorizedAt,
	).Scan(&id)
	return id, err
}

// Save writes every mutable column of a quotation. Items are untouched.
func (t *pgTx) Save(ctx context.Context, q Quotation) error {
	query := `
		UPDATE quotations SET
			name = $2, description = $3, price = $4, list_price = $5, manual_price = $6,
			discount = $7, status = $8, position = $9, archived = $10, visible_to_client = $11,
			selected_by_client = $12, condition_id = $13, courtesy_notes = $14,
			revision_status = $15, event_id = $16, event_duration_hours = $17,
			authorized_at = $18, updated_at = now()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		q.ID, q.Name, q.Description, q.Price, q.ListPrice, q.ManualPrice,
		q.Discount, string(q.Status), q.Order, q.Archived, q.VisibleToClient,
		q.SelectedByClient, q.ConditionID, q.CourtesyNotes,
		revisionStatusArg(q.RevisionStatus), q.EventID, q.EventDurationHours,
		q.AuthorizedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", ErrNotFound, q.ID)
	}
	return nil
}

// InsertItem inserts a quotation item.
func (t *pgTx) InsertItem(ctx context.Context, it Item) (int64, error) {
	query := `
		INSERT INTO quotation_items (` + itemColumnsNoID + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
		        $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		it.QuotationID, it.CatalogItemID, it.CategoryID, it.Quantity, string(it.Billing), it.Order,
		it.SectionOrder, it.CategoryOrder, it.Courtesy,
		it.Live.Name, it.Live.Description, it.Live.CategoryName, it.Live.SectionName, it.Live.UnitPrice,
		it.Live.Subtotal, it.Live.Cost, it.Live.Expense, it.Live.Profit, string(it.Live.ProfitType),
		it.Snapshot.Name, it.Snapshot.Description, it.Snapshot.CategoryName, it.Snapshot.SectionName, it.Snapshot.UnitPrice,
		it.Snapshot.Subtotal, it.Snapshot.Cost, it.Snapshot.Expense, it.Snapshot.Profit, string(it.Snapshot.ProfitType),
		it.SchedulingTaskID, it.CrewAssignmentID,
	).Scan(&id)
	return id, err
}

const itemColumnsNoID = `
	quotation_id, catalog_item_id, category_id, quantity, billing, position,
	section_order, category_order, courtesy,
	live_name, live_description, live_category_name, live_section_name, live_unit_price,
	live_subtotal, live_cost, live_expense, live_profit, live_profit_type,
	snap_name, snap_description, snap_category_name, snap_section_name, snap_unit_price,
	snap_subtotal, snap_cost, snap_expense, snap_profit, snap_profit_type,
	scheduling_task_id, crew_assignment_id`

// DeleteItems removes every item of a quotation.
func (t *pgTx) DeleteItems(ctx context.Context, quotationID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM quotation_items WHERE quotation_id = $1`, quotationID)
	return err
}

// SaveItemPricing writes the catalog identity, courtesy flag and both field sets of an item.
func (t *pgTx) SaveItemPricing(ctx context.Context, it Item) error {
	query := `
		UPDATE quotation_items SET
			category_id = $2, billing = $3, section_order = $4, category_order = $5, courtesy = $6,
			live_name = $7, live_description = $8, live_category_name = $9, live_section_name = $10,
			live_unit_price = $11, live_subtotal = $12, live_cost = $13, live_expense = $14,
			live_profit = $15, live_profit_type = $16,
			snap_name = $17, snap_description = $18, snap_category_name = $19, snap_section_name = $20,
			snap_unit_price = $21, snap_subtotal = $22, snap_cost = $23, snap_expense = $24,
			snap_profit = $25, snap_profit_type = $26
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		it.ID, it.CategoryID, string(it.Billing), it.SectionOrder, it.CategoryOrder, it.Courtesy,
		it.Live.Name, it.Live.Description, it.Live.CategoryName, it.Live.SectionName,
		it.Live.UnitPrice, it.Live.Subtotal, it.Live.Cost, it.Live.Expense,
		it.Live.Profit, string(it.Live.ProfitType),
		it.Snapshot.Name, it.Snapshot.Description, it.Snapshot.CategoryName, it.Snapshot.SectionName,
		it.Snapshot.UnitPrice, it.Snapshot.Subtotal, it.Snapshot.Cost, it.Snapshot.Expense,
		it.Snapshot.Profit, string(it.Snapshot.ProfitType),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation item %d", ErrNotFound, it.ID)
	}
	return nil
}

// SetItemReferences writes the external scheduling-task and crew-assignment references of an item.
func (t *pgTx) SetItemReferences(ctx context.Context, itemID int64, taskID, assignmentID *int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE quotation_items SET scheduling_task_id = $2, crew_assignment_id = $3 WHERE id = $1
	`, itemID, taskID, assignmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation item %d", ErrNotFound, itemID)
	}
	return nil
}

// ReplaceTemporaryCondition upserts the single temporary condition of a quotation.
func (t *pgTx) ReplaceTemporaryCondition(ctx context.Context, c CommercialCondition) (int64, error) {
	query := `
		INSERT INTO commercial_conditions (
			studio_id, quotation_id, name, advance_percent, advance_amount, discount_percent, temporary
		) VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (quotation_id) WHERE temporary DO UPDATE SET
			name = EXCLUDED.name,
			advance_percent = EXCLUDED.advance_percent,
			advance_amount = EXCLUDED.advance_amount,
			discount_percent = EXCLUDED.discount_percent
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		c.StudioID, c.QuotationID, c.Name, c.AdvancePercent, c.AdvanceAmount, c.DiscountPercent,
	).Scan(&id)
	return id, err
}

// InsertClosing stores the closing record of a quotation, replacing a stale one.
func (t *pgTx) InsertClosing(ctx context.Context, rec ClosingRecord) error {
	siblings := rec.ArchivedSiblingIDs
	if siblings == nil {
		siblings = []int64{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO quotation_closings (quotation_id, prior_status, condition_id, notes, archived_sibling_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (quotation_id) DO UPDATE SET
			prior_status = EXCLUDED.prior_status,
			condition_id = EXCLUDED.condition_id,
			notes = EXCLUDED.notes,
			archived_sibling_ids = EXCLUDED.archived_sibling_ids,
			created_at = EXCLUDED.created_at
	`, rec.QuotationID, string(rec.PriorStatus), rec.ConditionID, rec.Notes, siblings, rec.CreatedAt)
	return err
}

// DeleteClosing removes the closing record of a quotation if present.
func (t *pgTx) DeleteClosing(ctx context.Context, quotationID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM quotation_closings WHERE quotation_id = $1`, quotationID)
	return err
}

// AdvanceDealStage moves a deal to a pipeline stage.
func (t *pgTx) AdvanceDealStage(ctx context.Context, dealID int64, stageSlug string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE deals SET stage_slug = $2, updated_at = now() WHERE id = $1`, dealID, stageSlug)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: deal %d", ErrNotFound, dealID)
	}
	return nil
}

// RemoveDealTag drops a tag from a deal.
func (t *pgTx) RemoveDealTag(ctx context.Context, dealID int64, tag string) error {
	_, err := t.tx.Exec(ctx, `UPDATE deals SET tags = array_remove(tags, $2), updated_at = now() WHERE id = $1`, dealID, tag)
	return err
}

// EnsureDealEvent returns the deal's event, creating it from the deal's event date when missing.
func (t *pgTx) EnsureDealEvent(ctx context.Context, deal Deal) (int64, error) {
	if deal.EventID != nil {
		return *deal.EventID, nil
	}
	if deal.EventDate == nil {
		return 0, fmt.Errorf("%w: deal %d has no confirmed event date", ErrValidation, deal.ID)
	}
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO deal_events (deal_id, event_date) VALUES ($1, $2) RETURNING id
	`, deal.ID, *deal.EventDate).Scan(&id)
	if err != nil {
		return 0, err
	}
	if _, err := t.tx.Exec(ctx, `UPDATE deals SET event_id = $2, updated_at = now() WHERE id = $1`, deal.ID, id); err != nil {
		return 0, err
	}
	return id, nil
}

// RepointEvent links an event to the quotation now backing it.
func (t *pgTx) RepointEvent(ctx context.Context, eventID, quotationID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE deal_events SET quotation_id = $2 WHERE id = $1`, eventID, quotationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: event %d", ErrNotFound, eventID)
	}
	return nil
}

func revisionStatusArg(rs *RevisionStatus) *string {
	if rs == nil {
		return nil
	}
	v := string(*rs)
	return &v
}
