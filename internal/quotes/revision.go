package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studio-ops/quotation-engine/internal/pricing"
)

// CreateRevision opens a pending revision of an authorized quotation. Without selections the
// revision starts from the original's catalog items and quantities; snapshots are not copied.
func (s *Service) CreateRevision(ctx context.Context, in RevisionInput) (summary Summary, err error) {
	defer func() { s.observe("create_revision", err) }()

	if err := validateSelections(in.Selections); err != nil {
		return Summary{}, err
	}
	if in.PriceOverride != nil && *in.PriceOverride < 0 {
		return Summary{}, fmt.Errorf("%w: price must not be negative", ErrValidation)
	}

	orig, err := s.repo.Get(ctx, in.OriginalID)
	if err != nil {
		return Summary{}, err
	}
	if !Allowed(orig.Status, EventRevise) {
		return Summary{}, fmt.Errorf("%w: only authorized quotations can be revised, quotation %d is %s", ErrInvalidState, orig.ID, orig.Status)
	}
	selections := in.Selections
	if len(selections) == 0 {
		selections = catalogSelectionsOf(orig.Items)
	}
	items, err := s.catalogItems(ctx, selections)
	if err != nil {
		return Summary{}, err
	}
	for i := range items {
		items[i].Order = i
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orig, err := tx.Lock(ctx, in.OriginalID)
		if err != nil {
			return err
		}
		if !Allowed(orig.Status, EventRevise) {
			return fmt.Errorf("%w: only authorized quotations can be revised, quotation %d is %s", ErrInvalidState, orig.ID, orig.Status)
		}
		revisions, err := tx.ListRevisions(ctx, orig.ID)
		if err != nil {
			return fmt.Errorf("list revisions: %w", err)
		}
		number := len(revisions) + 1
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = fmt.Sprintf("%s - Revisión %d", orig.Name, number)
		}
		if err := ensureNameFree(ctx, tx, orig.DealID, name, 0); err != nil {
			return err
		}
		siblings, err := tx.ListByDeal(ctx, orig.DealID)
		if err != nil {
			return fmt.Errorf("list deal quotations: %w", err)
		}

		description := in.Description
		if description == nil {
			description = orig.Description
		}
		pending := RevisionPending
		originalID := orig.ID
		rq := Quotation{
			StudioID:           orig.StudioID,
			DealID:             orig.DealID,
			Name:               name,
			Description:        description,
			Status:             StatusPending,
			Order:              len(siblings),
			RevisionOf:         &originalID,
			RevisionNumber:     number,
			RevisionStatus:     &pending,
			EventDurationHours: orig.EventDurationHours,
			ListPrice:          listPrice(items),
		}
		applyPrice(&rq, in.PriceOverride)
		id, err = tx.Create(ctx, rq)
		if err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		if _, err := insertItems(ctx, tx, id, items); err != nil {
			return err
		}

		if !hasOpenRevision(revisions) {
			orig.RevisionStatus = &pending
			if err := tx.Save(ctx, *orig); err != nil {
				return fmt.Errorf("save original: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	s.runHooks(ctx, "create_revision", id,
		s.historyHook(HistoryEntry{
			DealID: orig.DealID, QuotationID: id, Action: "revision_created", ToStatus: StatusPending,
			Meta: map[string]any{"revision_of": orig.ID},
		}),
		s.syncHook(id),
		s.invalidateHook(id, orig.ID),
	)
	return s.summary(ctx, id)
}

// AuthorizeRevision approves a pending revision and retires its original: the revision takes
// over the original's event and, when requested, its items' external references.
func (s *Service) AuthorizeRevision(ctx context.Context, in AuthorizeRevisionInput) (summary Summary, err error) {
	defer func() { s.observe("authorize_revision", err) }()

	if in.Amount < 0 {
		return Summary{}, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}

	var (
		originalID int64
		dealID     int64
		plan       MigrationPlan
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rev, err := tx.Lock(ctx, in.RevisionID)
		if err != nil {
			return err
		}
		if rev.RevisionOf == nil {
			return fmt.Errorf("%w: quotation %d is not a revision", ErrValidation, rev.ID)
		}
		to, err := Next(rev.Status, EventAuthorizeRevision)
		if err != nil {
			return err
		}
		orig, err := tx.Lock(ctx, *rev.RevisionOf)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: original quotation %d", ErrNotFound, *rev.RevisionOf)
			}
			return err
		}
		if orig.EventID == nil {
			return fmt.Errorf("%w: original quotation %d has no associated event", ErrValidation, orig.ID)
		}
		origTo, err := Next(orig.Status, EventReplace)
		if err != nil {
			return err
		}
		if err := ensureCondition(ctx, tx, in.ConditionID); err != nil {
			return err
		}

		if err := s.sync.Freeze(ctx, tx, rev); err != nil {
			return fmt.Errorf("freeze snapshots: %w", err)
		}

		eventID := *orig.EventID
		now := s.now()
		active := RevisionActive
		rev.Status = to
		rev.RevisionStatus = &active
		rev.Price = pricing.Round2(in.Amount)
		rev.ManualPrice = true
		if in.ConditionID != nil {
			rev.ConditionID = in.ConditionID
		}
		rev.EventID = &eventID
		rev.AuthorizedAt = &now
		if err := tx.Save(ctx, *rev); err != nil {
			return fmt.Errorf("save revision: %w", err)
		}
		if err := tx.RepointEvent(ctx, eventID, rev.ID); err != nil {
			return fmt.Errorf("repoint event: %w", err)
		}

		if in.MigrateDependencies {
			plan = PlanMigration(orig.Items, rev.Items)
			if err := ApplyMigration(ctx, tx, plan); err != nil {
				return err
			}
		}

		replaced := RevisionReplaced
		orig.Status = origTo
		orig.Archived = true
		orig.RevisionStatus = &replaced
		orig.EventID = nil
		orig.SelectedByClient = false
		if err := tx.Save(ctx, *orig); err != nil {
			return fmt.Errorf("save original: %w", err)
		}
		originalID, dealID = orig.ID, orig.DealID
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	for _, o := range plan.Orphans {
		s.logger.Warn("external reference left on replaced quotation",
			slog.Int64("quotation_id", originalID),
			slog.Int64("item_id", o.ItemID),
			slog.String("reason", o.Reason),
			slog.Any("error", ErrDependencyUnresolved),
		)
	}
	s.runHooks(ctx, "authorize_revision", in.RevisionID,
		s.historyHook(HistoryEntry{
			DealID: dealID, QuotationID: in.RevisionID, Action: "revision_authorized",
			FromStatus: StatusPending, ToStatus: StatusApproved,
			Meta: map[string]any{"replaced": originalID, "moved": len(plan.Moves), "orphaned": len(plan.Orphans)},
		}),
		s.invalidateHook(in.RevisionID, originalID),
	)
	return s.summary(ctx, in.RevisionID)
}

func catalogSelectionsOf(items []Item) []CatalogSelection {
	var out []CatalogSelection
	for _, it := range items {
		if it.Custom() {
			continue
		}
		out = append(out, CatalogSelection{ItemID: *it.CatalogItemID, Quantity: it.Quantity})
	}
	return out
}

func hasOpenRevision(revisions []Quotation) bool {
	for _, r := range revisions {
		if r.Archived || r.Status.Terminal() || r.Status.Authorized() {
			continue
		}
		if r.RevisionStatus != nil && *r.RevisionStatus == RevisionPending {
			return true
		}
	}
	return false
}
