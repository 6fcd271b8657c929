package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// PassToClosing moves a pending or negotiating quotation to en_cierre. Its prior status and the
// siblings it archives are recorded so CancelClosing can undo the move.
func (s *Service) PassToClosing(ctx context.Context, id int64, opts *ClosingOptions) (ack Ack, err error) {
	defer func() { s.observe("pass_to_closing", err) }()

	var (
		from   Status
		dealID int64
		rec    ClosingRecord
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		to, err := Next(q.Status, EventPassToClosing)
		if err != nil {
			return err
		}
		if q.Archived {
			return fmt.Errorf("%w: quotation %d is archived", ErrInvalidState, q.ID)
		}
		siblings, err := tx.ListByDeal(ctx, q.DealID)
		if err != nil {
			return fmt.Errorf("list deal quotations: %w", err)
		}
		for _, sib := range siblings {
			if sib.ID != q.ID && sib.Status == StatusClosing && !sib.Archived {
				return fmt.Errorf("%w: quotation %q is already in closing for this deal", ErrInvalidState, sib.Name)
			}
		}

		rec = ClosingRecord{QuotationID: q.ID, PriorStatus: q.Status, CreatedAt: s.now()}
		if opts != nil {
			if err := ensureCondition(ctx, tx, opts.ConditionID); err != nil {
				return err
			}
			rec.ConditionID = opts.ConditionID
			rec.Notes = opts.Notes
		}

		for _, sib := range siblings {
			if sib.ID == q.ID || sib.Archived {
				continue
			}
			if sib.Status != StatusPending && sib.Status != StatusNegotiation {
				continue
			}
			sib.Archived = true
			if err := tx.Save(ctx, sib); err != nil {
				return fmt.Errorf("archive quotation %d: %w", sib.ID, err)
			}
			rec.ArchivedSiblingIDs = append(rec.ArchivedSiblingIDs, sib.ID)
		}

		from, dealID = q.Status, q.DealID
		q.Status = to
		if rec.ConditionID != nil {
			q.ConditionID = rec.ConditionID
		}
		if err := tx.Save(ctx, *q); err != nil {
			return fmt.Errorf("save quotation: %w", err)
		}
		if err := tx.InsertClosing(ctx, rec); err != nil {
			return fmt.Errorf("insert closing record: %w", err)
		}
		return nil
	})
	if err != nil {
		return Ack{}, err
	}

	s.runHooks(ctx, "pass_to_closing", id,
		s.historyHook(HistoryEntry{
			DealID: dealID, QuotationID: id, Action: "closing_started", FromStatus: from, ToStatus: StatusClosing,
			Meta: map[string]any{"archived_siblings": rec.ArchivedSiblingIDs},
		}),
		s.invalidateHook(append([]int64{id}, rec.ArchivedSiblingIDs...)...),
	)
	return Ack{ID: id}, nil
}

// CancelClosing returns a closing quotation to the status it had before closing and deletes the
// closing record. With restoreSiblings, the quotations archived by the closing are un-archived
// when they are still pending or negotiating and no live quotation of the deal took their name.
func (s *Service) CancelClosing(ctx context.Context, id int64, restoreSiblings bool) (ack Ack, err error) {
	defer func() { s.observe("cancel_closing", err) }()

	var (
		to       Status
		dealID   int64
		restored []int64
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if q.Status != StatusClosing {
			return fmt.Errorf("%w: quotation %d is %s, not in closing", ErrInvalidState, q.ID, q.Status)
		}
		rec, err := tx.GetClosing(ctx, q.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			s.logger.Warn("closing record missing, restoring to pending", slog.Int64("quotation_id", q.ID))
			rec = &ClosingRecord{QuotationID: q.ID, PriorStatus: StatusPending}
		case err != nil:
			return fmt.Errorf("load closing record: %w", err)
		}

		if to, err = Restore(q.Status, rec.PriorStatus); err != nil {
			return err
		}
		dealID = q.DealID
		q.Status = to
		if err := tx.Save(ctx, *q); err != nil {
			return fmt.Errorf("save quotation: %w", err)
		}
		if err := tx.DeleteClosing(ctx, q.ID); err != nil {
			return fmt.Errorf("delete closing record: %w", err)
		}

		if !restoreSiblings {
			return nil
		}
		for _, sibID := range rec.ArchivedSiblingIDs {
			sib, err := tx.Get(ctx, sibID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("load quotation %d: %w", sibID, err)
			}
			if !sib.Archived || (sib.Status != StatusPending && sib.Status != StatusNegotiation) {
				continue
			}
			taken, err := tx.NameTaken(ctx, sib.DealID, sib.Name, sib.ID)
			if err != nil {
				return fmt.Errorf("check quotation name: %w", err)
			}
			if taken {
				s.logger.Warn("sibling name reused while archived, leaving it archived",
					slog.Int64("quotation_id", q.ID), slog.Int64("sibling_id", sib.ID), slog.String("name", sib.Name))
				continue
			}
			sib.Archived = false
			if err := tx.Save(ctx, *sib); err != nil {
				return fmt.Errorf("restore quotation %d: %w", sib.ID, err)
			}
			restored = append(restored, sib.ID)
		}
		return nil
	})
	if err != nil {
		return Ack{}, err
	}

	s.runHooks(ctx, "cancel_closing", id,
		s.historyHook(HistoryEntry{
			DealID: dealID, QuotationID: id, Action: "closing_cancelled", FromStatus: StatusClosing, ToStatus: to,
			Meta: map[string]any{"restored_siblings": restored},
		}),
		s.invalidateHook(append([]int64{id}, restored...)...),
	)
	return Ack{ID: id}, nil
}
