package quotes

import (
	"context"
	"fmt"
	"strings"

	"github.com/studio-ops/quotation-engine/internal/pricing"
)

// Negotiate applies negotiated terms to a pending quotation in place: the agreed price, the
// courtesy items and an optional temporary commercial condition.
func (s *Service) Negotiate(ctx context.Context, in NegotiationInput) (summary Summary, err error) {
	defer func() { s.observe("negotiate", err) }()

	if err := in.validate(); err != nil {
		return Summary{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.Lock(ctx, in.QuotationID)
		if err != nil {
			return err
		}
		to, err := Next(q.Status, EventNegotiate)
		if err != nil {
			return err
		}
		courtesy, err := courtesySet(q.Items, in.CourtesyItemIDs)
		if err != nil {
			return err
		}
		for i := range q.Items {
			if _, ok := courtesy[q.Items[i].ID]; !ok {
				continue
			}
			markCourtesy(&q.Items[i])
			if err := tx.SaveItemPricing(ctx, q.Items[i]); err != nil {
				return fmt.Errorf("save courtesy item: %w", err)
			}
		}
		if err := applyNegotiation(ctx, tx, q, in); err != nil {
			return err
		}
		q.Status = to
		if err := tx.Save(ctx, *q); err != nil {
			return fmt.Errorf("save quotation: %w", err)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	s.runHooks(ctx, "negotiate", in.QuotationID, s.invalidateHook(in.QuotationID))
	return s.summary(ctx, in.QuotationID)
}

// CreateNegotiationVersion copies a pending quotation into an independent negotiating quotation
// carrying the negotiated terms. The original is left untouched.
func (s *Service) CreateNegotiationVersion(ctx context.Context, originalID int64, in NegotiationVersionInput) (summary Summary, err error) {
	defer func() { s.observe("negotiate_version", err) }()

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Summary{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := in.validate(); err != nil {
		return Summary{}, err
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orig, err := tx.Lock(ctx, originalID)
		if err != nil {
			return err
		}
		to, err := Next(orig.Status, EventNegotiate)
		if err != nil {
			return err
		}
		courtesy, err := courtesySet(orig.Items, in.CourtesyItemIDs)
		if err != nil {
			return err
		}
		if err := ensureNameFree(ctx, tx, orig.DealID, in.Name, 0); err != nil {
			return err
		}
		siblings, err := tx.ListByDeal(ctx, orig.DealID)
		if err != nil {
			return fmt.Errorf("list deal quotations: %w", err)
		}

		nq := Quotation{
			StudioID:           orig.StudioID,
			DealID:             orig.DealID,
			Name:               in.Name,
			Description:        in.Description,
			Status:             to,
			Order:              len(siblings),
			ConditionID:        orig.ConditionID,
			EventDurationHours: orig.EventDurationHours,
		}
		items := make([]Item, 0, len(orig.Items))
		for _, it := range orig.Items {
			cp := it
			cp.ID = 0
			cp.SchedulingTaskID = nil
			cp.CrewAssignmentID = nil
			cp.Snapshot = ItemFields{}
			if _, ok := courtesy[it.ID]; ok {
				markCourtesy(&cp)
			}
			items = append(items, cp)
		}
		nq.ListPrice = orig.ListPrice

		id, err = tx.Create(ctx, nq)
		if err != nil {
			return fmt.Errorf("create quotation: %w", err)
		}
		nq.ID = id
		if _, err := insertItems(ctx, tx, id, items); err != nil {
			return err
		}
		if err := applyNegotiation(ctx, tx, &nq, in.NegotiationInput); err != nil {
			return err
		}
		if err := tx.Save(ctx, nq); err != nil {
			return fmt.Errorf("save quotation: %w", err)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	s.runHooks(ctx, "negotiate_version", id, s.invalidateHook(id))
	return s.summary(ctx, id)
}

func (in NegotiationInput) validate() error {
	if in.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if in.Condition != nil {
		return in.Condition.validate()
	}
	return nil
}

// applyNegotiation sets the agreed price and notes on q and replaces its temporary condition.
func applyNegotiation(ctx context.Context, tx TxRepository, q *Quotation, in NegotiationInput) error {
	q.Price = pricing.Round2(in.Price)
	q.ManualPrice = true
	if in.Notes != nil {
		q.CourtesyNotes = in.Notes
	}
	if in.Condition == nil {
		return nil
	}
	name := strings.TrimSpace(in.Condition.Name)
	if name == "" {
		name = "Negociación " + q.Name
	}
	quotationID := q.ID
	cid, err := tx.ReplaceTemporaryCondition(ctx, CommercialCondition{
		StudioID:        q.StudioID,
		QuotationID:     &quotationID,
		Name:            name,
		AdvancePercent:  in.Condition.AdvancePercent,
		AdvanceAmount:   in.Condition.AdvanceAmount,
		DiscountPercent: in.Condition.DiscountPercent,
		Temporary:       true,
	})
	if err != nil {
		return fmt.Errorf("replace temporary condition: %w", err)
	}
	q.ConditionID = &cid
	q.Discount = in.Condition.DiscountPercent
	return nil
}

func courtesySet(items []Item, ids []int64) (map[int64]struct{}, error) {
	owned := make(map[int64]struct{}, len(items))
	for _, it := range items {
		owned[it.ID] = struct{}{}
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := owned[id]; !ok {
			return nil, fmt.Errorf("%w: item %d does not belong to the quotation", ErrValidation, id)
		}
		set[id] = struct{}{}
	}
	return set, nil
}

// markCourtesy zeroes the charged amount of an item. The unit price is kept for reference.
func markCourtesy(it *Item) {
	it.Courtesy = true
	it.Live.Subtotal = 0
	if !it.Snapshot.Empty() {
		it.Snapshot.Subtotal = 0
	}
}
