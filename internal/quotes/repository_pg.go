package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studio-ops/quotation-engine/internal/platform/db"
)

const (
	quotationColumns = `
		id, studio_id, deal_id, name, description, price, list_price, manual_price, discount,
		status, position, archived, visible_to_client, selected_by_client, condition_id,
		courtesy_notes, revision_of, revision_number, revision_status, event_id,
		event_duration_hours, authorized_at, created_at, updated_at`

	itemColumns = `
		id, quotation_id, catalog_item_id, category_id, quantity, billing, position,
		section_order, category_order, courtesy,
		live_name, live_description, live_category_name, live_section_name, live_unit_price,
		live_subtotal, live_cost, live_expense, live_profit, live_profit_type,
		snap_name, snap_description, snap_category_name, snap_section_name, snap_unit_price,
		snap_subtotal, snap_cost, snap_expense, snap_profit, snap_profit_type,
		scheduling_task_id, crew_assignment_id`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pgReader
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

// NewPGRepository creates a repository. txTimeout bounds every transaction; zero disables it.
func NewPGRepository(pool *pgxpool.Pool, txTimeout time.Duration) *PGRepository {
	return &PGRepository{pgReader: pgReader{q: pool}, pool: pool, txTimeout: txTimeout}
}

// WithTx wraps fn in a bounded repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, r.txTimeout, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{pgReader: pgReader{q: tx}, tx: tx})
	})
	return mapPgError(err)
}

// ListSyncable returns ids of non-archived quotations whose live pricing may still change,
// least recently updated first.
func (r *PGRepository) ListSyncable(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM quotations
		WHERE NOT archived AND status IN ('pendiente', 'negociacion', 'en_cierre')
		ORDER BY updated_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// mapPgError turns constraint violations into domain errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "quotations_deal_name_uniq":
		return fmt.Errorf("%w: a quotation with this name already exists for this deal", ErrValidation)
	case "quotations_deal_closing_uniq":
		return fmt.Errorf("%w: another quotation of this deal is already in closing", ErrInvalidState)
	default:
		return fmt.Errorf("%w: duplicate value violates %s", ErrValidation, pgErr.ConstraintName)
	}
}

// pgReader implements Reader over any querier.
type pgReader struct {
	q querier
}

// Get retrieves a quotation with its items.
func (r pgReader) Get(ctx context.Context, id int64) (*Quotation, error) {
	return r.load(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1`, id)
}

func (r pgReader) load(ctx context.Context, query string, id int64) (*Quotation, error) {
	q, err := scanQuotation(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: quotation %d", ErrNotFound, id)
		}
		return nil, err
	}
	items, err := r.items(ctx, []int64{q.ID})
	if err != nil {
		return nil, err
	}
	q.Items = items[q.ID]
	return q, nil
}

// ListByDeal returns every quotation of a deal with its items, in display order.
func (r pgReader) ListByDeal(ctx context.Context, dealID int64) ([]Quotation, error) {
	return r.list(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE deal_id = $1 ORDER BY position, id`, dealID)
}

// ListRevisions returns the revisions of a quotation by revision number.
func (r pgReader) ListRevisions(ctx context.Context, originalID int64) ([]Quotation, error) {
	return r.list(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE revision_of = $1 ORDER BY revision_number, id`, originalID)
}

func (r pgReader) list(ctx context.Context, query string, arg int64) ([]Quotation, error) {
	rows, err := r.q.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Quotation
	var ids []int64
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
		ids = append(ids, q.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r pgReader) items(ctx context.Context, quotationIDs []int64) (map[int64][]Item, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+itemColumns+`
		FROM quotation_items
		WHERE quotation_id = ANY($1)
		ORDER BY quotation_id, position, id
	`, quotationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]Item, len(quotationIDs))
	for rows.Next() {
		var it Item
		err := rows.Scan(
			&it.ID, &it.QuotationID, &it.CatalogItemID, &it.CategoryID, &it.Quantity,
			(*string)(&it.Billing), &it.Order, &it.SectionOrder, &it.CategoryOrder, &it.Courtesy,
			&it.Live.Name, &it.Live.Description, &it.Live.CategoryName, &it.Live.SectionName, &it.Live.UnitPrice,
			&it.Live.Subtotal, &it.Live.Cost, &it.Live.Expense, &it.Live.Profit, (*string)(&it.Live.ProfitType),
			&it.Snapshot.Name, &it.Snapshot.Description, &it.Snapshot.CategoryName, &it.Snapshot.SectionName, &it.Snapshot.UnitPrice,
			&it.Snapshot.Subtotal, &it.Snapshot.Cost, &it.Snapshot.Expense, &it.Snapshot.Profit, (*string)(&it.Snapshot.ProfitType),
			&it.SchedulingTaskID, &it.CrewAssignmentID,
		)
		if err != nil {
			return nil, err
		}
		out[it.QuotationID] = append(out[it.QuotationID], it)
	}
	return out, rows.Err()
}

// GetDeal retrieves a deal.
func (r pgReader) GetDeal(ctx context.Context, dealID int64) (*Deal, error) {
	var d Deal
	err := r.q.QueryRow(ctx, `
		SELECT id, studio_id, name, stage_slug, event_date, event_id, tags
		FROM deals WHERE id = $1
	`, dealID).Scan(&d.ID, &d.StudioID, &d.Name, &d.StageSlug, &d.EventDate, &d.EventID, &d.Tags)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: deal %d", ErrNotFound, dealID)
		}
		return nil, err
	}
	return &d, nil
}

// GetClosing retrieves the closing record of a quotation.
func (r pgReader) GetClosing(ctx context.Context, quotationID int64) (*ClosingRecord, error) {
	var rec ClosingRecord
	var prior string
	err := r.q.QueryRow(ctx, `
		SELECT quotation_id, prior_status, condition_id, notes, archived_sibling_ids, created_at
		FROM quotation_closings WHERE quotation_id = $1
	`, quotationID).Scan(&rec.QuotationID, &prior, &rec.ConditionID, &rec.Notes, &rec.ArchivedSiblingIDs, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: closing record of quotation %d", ErrNotFound, quotationID)
		}
		return nil, err
	}
	rec.PriorStatus = Status(prior)
	return &rec, nil
}

// GetCondition retrieves a commercial condition.
func (r pgReader) GetCondition(ctx context.Context, id int64) (*CommercialCondition, error) {
	var c CommercialCondition
	err := r.q.QueryRow(ctx, `
		SELECT id, studio_id, quotation_id, name, advance_percent, advance_amount, discount_percent, temporary
		FROM commercial_conditions WHERE id = $1
	`, id).Scan(&c.ID, &c.StudioID, &c.QuotationID, &c.Name, &c.AdvancePercent, &c.AdvanceAmount, &c.DiscountPercent, &c.Temporary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: commercial condition %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var (
		q         Quotation
		status    string
		revStatus *string
	)
	err := row.Scan(
		&q.ID, &q.StudioID, &q.DealID, &q.Name, &q.Description, &q.Price, &q.ListPrice, &q.ManualPrice, &q.Discount,
		&status, &q.Order, &q.Archived, &q.VisibleToClient, &q.SelectedByClient, &q.ConditionID,
		&q.CourtesyNotes, &q.RevisionOf, &q.RevisionNumber, &revStatus, &q.EventID,
		&q.EventDurationHours, &q.AuthorizedAt, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.Status = Status(status)
	if revStatus != nil {
		rs := RevisionStatus(*revStatus)
		q.RevisionStatus = &rs
	}
	return &q, nil
}
