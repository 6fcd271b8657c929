package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/studio-ops/quotation-engine/internal/pricing"
	"github.com/studio-ops/quotation-engine/internal/structure"
)

// Service drives quotations through their lifecycle.
type Service struct {
	repo     Repository
	sync     *Synchronizer
	history  History
	cache    *StructureCache
	enqueuer ResyncEnqueuer
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Dependencies wires a Service. Repo, Catalog and Configs are required; the rest are optional.
type Dependencies struct {
	Repo     Repository
	Catalog  Catalog
	Configs  ConfigStore
	History  History
	Cache    *StructureCache
	Enqueuer ResyncEnqueuer
	Recorder Recorder
	Logger   *slog.Logger
}

// NewService constructs a quotation lifecycle service.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     deps.Repo,
		sync:     NewSynchronizer(deps.Catalog, deps.Configs, logger),
		history:  deps.History,
		cache:    deps.Cache,
		enqueuer: deps.Enqueuer,
		recorder: deps.Recorder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) observe(operation string, err error) {
	if s.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = Code(err)
	}
	s.recorder.ObserveTransition(operation, outcome)
}

// ============================================================================
// READS
// ============================================================================

// Get returns a quotation with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

// ListByDeal returns summaries of every quotation of a deal.
func (s *Service) ListByDeal(ctx context.Context, dealID int64) ([]Summary, error) {
	if _, err := s.repo.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("list quotations: %w", err)
	}
	out := make([]Summary, 0, len(list))
	for i := range list {
		out = append(out, Summarize(&list[i]))
	}
	return out, nil
}

// Structure builds the display hierarchy of a persisted quotation.
func (s *Service) Structure(ctx context.Context, id int64, opts structure.Options) (structure.Hierarchy, error) {
	load := func(ctx context.Context) (structure.Hierarchy, error) {
		q, err := s.repo.Get(ctx, id)
		if err != nil {
			return structure.Hierarchy{}, err
		}
		return structure.Build(Lines(q.Items), opts), nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.FetchHierarchy(ctx, id, opts, load)
}

// CanonicalOrder returns the item ids of a quotation in catalog display order.
func (s *Service) CanonicalOrder(ctx context.Context, id int64) ([]int64, error) {
	h, err := s.Structure(ctx, id, structure.Options{OrderBy: structure.OrderCatalog})
	if err != nil {
		return nil, err
	}
	return structure.Flatten(h), nil
}

// ============================================================================
// CREATE / UPDATE
// ============================================================================

// Create persists a new pending quotation with its catalog and custom items.
func (s *Service) Create(ctx context.Context, in CreateInput) (summary Summary, err error) {
	defer func() { s.observe("create", err) }()

	if err := in.normalize(); err != nil {
		return Summary{}, err
	}
	deal, err := s.repo.GetDeal(ctx, in.DealID)
	if err != nil {
		return Summary{}, err
	}
	items, err := s.buildItems(ctx, in.QuotationInput)
	if err != nil {
		return Summary{}, err
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureNameFree(ctx, tx, deal.ID, in.Name, 0); err != nil {
			return err
		}
		if err := ensureCondition(ctx, tx, in.ConditionID); err != nil {
			return err
		}
		siblings, err := tx.ListByDeal(ctx, deal.ID)
		if err != nil {
			return fmt.Errorf("list deal quotations: %w", err)
		}
		q := Quotation{
			StudioID:           deal.StudioID,
			DealID:             deal.ID,
			Name:               in.Name,
			Description:        in.Description,
			Status:             StatusPending,
			Order:              len(siblings),
			ConditionID:        in.ConditionID,
			EventDurationHours: in.EventDurationHours,
			ListPrice:          listPrice(items),
		}
		applyPrice(&q, in.PriceOverride)

		id, err = tx.Create(ctx, q)
		if err != nil {
			return fmt.Errorf("create quotation: %w", err)
		}
		_, err = insertItems(ctx, tx, id, items)
		return err
	})
	if err != nil {
		return Summary{}, err
	}

	s.runHooks(ctx, "create", id, s.syncHook(id), s.invalidateHook(id))
	return s.summary(ctx, id)
}

// Update replaces the editable fields and the whole item set of a quotation that is not yet
// authorized. Sibling quotations are never touched.
func (s *Service) Update(ctx context.Context, id int64, in QuotationInput) (summary Summary, err error) {
	defer func() { s.observe("update", err) }()

	if err := in.normalize(); err != nil {
		return Summary{}, err
	}
	items, err := s.buildItems(ctx, in)
	if err != nil {
		return Summary{}, err
	}

	var deferred bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if _, err := Next(q.Status, EventUpdate); err != nil {
			return err
		}
		if err := ensureNameFree(ctx, tx, q.DealID, in.Name, q.ID); err != nil {
			return err
		}
		if err := ensureCondition(ctx, tx, in.ConditionID); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, q.ID); err != nil {
			return fmt.Errorf("delete quotation items: %w", err)
		}
		inserted, err := insertItems(ctx, tx, q.ID, items)
		if err != nil {
			return err
		}
		q.Items = inserted
		priced, err := s.sync.Price(ctx, tx, q, q.Status == StatusContractPending)
		if err != nil {
			return err
		}
		deferred = !priced

		q.Name = in.Name
		q.Description = in.Description
		q.ConditionID = in.ConditionID
		q.EventDurationHours = in.EventDurationHours
		q.ListPrice = listPrice(q.Items)
		applyPrice(q, in.PriceOverride)
		if err := tx.Save(ctx, *q); err != nil {
			return fmt.Errorf("update quotation: %w", err)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	hooks := []Hook{s.invalidateHook(id)}
	if deferred {
		hooks = append([]Hook{s.syncHook(id)}, hooks...)
	}
	s.runHooks(ctx, "update", id, hooks...)
	return s.summary(ctx, id)
}

// SyncPricing re-derives live pricing of a quotation from the catalog.
func (s *Service) SyncPricing(ctx context.Context, id int64) (summary Summary, err error) {
	defer func() { s.observe("sync_pricing", err) }()

	if err := s.sync.Sync(ctx, s.repo, id); err != nil {
		return Summary{}, err
	}
	s.runHooks(ctx, "sync_pricing", id, s.invalidateHook(id))
	return s.summary(ctx, id)
}

// ============================================================================
// AUTHORIZATION
// ============================================================================

// Authorize freezes a quotation at an agreed amount, moves it to contract_pending, archives
// every other live quotation of the deal and advances the deal to the approved stage.
func (s *Service) Authorize(ctx context.Context, in AuthorizeInput) (summary Summary, err error) {
	defer func() { s.observe("authorize", err) }()

	if in.Amount < 0 {
		return Summary{}, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}

	var (
		from     Status
		archived []int64
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.Lock(ctx, in.QuotationID)
		if err != nil {
			return err
		}
		if q.DealID != in.DealID {
			return fmt.Errorf("%w: quotation %d does not belong to deal %d", ErrValidation, q.ID, in.DealID)
		}
		to, err := Next(q.Status, EventAuthorize)
		if err != nil {
			return err
		}
		deal, err := tx.GetDeal(ctx, q.DealID)
		if err != nil {
			return err
		}
		if deal.EventDate == nil {
			return fmt.Errorf("%w: deal %d has no confirmed event date", ErrValidation, deal.ID)
		}
		if err := ensureCondition(ctx, tx, in.ConditionID); err != nil {
			return err
		}

		if err := s.sync.Freeze(ctx, tx, q); err != nil {
			return fmt.Errorf("freeze snapshots: %w", err)
		}
		eventID, err := tx.EnsureDealEvent(ctx, *deal)
		if err != nil {
			return fmt.Errorf("ensure deal event: %w", err)
		}
		if err := tx.RepointEvent(ctx, eventID, q.ID); err != nil {
			return fmt.Errorf("link deal event: %w", err)
		}

		now := s.now()
		from = q.Status
		q.Status = to
		q.Price = pricing.Round2(in.Amount)
		q.ManualPrice = true
		if in.ConditionID != nil {
			q.ConditionID = in.ConditionID
		}
		q.EventID = &eventID
		q.AuthorizedAt = &now
		if err := tx.Save(ctx, *q); err != nil {
			return fmt.Errorf("save quotation: %w", err)
		}
		if from == StatusClosing {
			if err := tx.DeleteClosing(ctx, q.ID); err != nil {
				return fmt.Errorf("delete closing record: %w", err)
			}
		}

		archived, err = archiveSiblings(ctx, tx, *q)
		if err != nil {
			return err
		}
		if err := tx.AdvanceDealStage(ctx, deal.ID, StageApproved); err != nil {
			return fmt.Errorf("advance deal stage: %w", err)
		}
		if err := tx.RemoveDealTag(ctx, deal.ID, TagCancelled); err != nil {
			return fmt.Errorf("remove deal tag: %w", err)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	q, err := s.repo.Get(ctx, in.QuotationID)
	if err != nil {
		return Summary{}, err
	}
	s.runHooks(ctx, "authorize", q.ID,
		s.historyHook(HistoryEntry{
			DealID: q.DealID, QuotationID: q.ID, Action: "authorized", FromStatus: from, ToStatus: q.Status,
			Meta: map[string]any{"amount": q.Price, "archived_siblings": archived},
		}),
		s.invalidateHook(append([]int64{q.ID}, archived...)...),
	)
	return Summarize(q), nil
}

// ConfirmContract completes authorization once the contract is signed.
func (s *Service) ConfirmContract(ctx context.Context, id int64) (summary Summary, err error) {
	defer func() { s.observe("confirm_contract", err) }()

	var from, to Status
	var dealID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if to, err = Next(q.Status, EventConfirmContract); err != nil {
			return err
		}
		from, dealID = q.Status, q.DealID
		q.Status = to
		return tx.Save(ctx, *q)
	})
	if err != nil {
		return Summary{}, err
	}

	s.runHooks(ctx, "confirm_contract", id,
		s.historyHook(HistoryEntry{DealID: dealID, QuotationID: id, Action: "contract_confirmed", FromStatus: from, ToStatus: to}),
		s.invalidateHook(id),
	)
	return s.summary(ctx, id)
}

// Cancel cancels a quotation from any non-terminal status. Items are kept.
func (s *Service) Cancel(ctx context.Context, id int64) (ack Ack, err error) {
	defer func() { s.observe("cancel", err) }()

	var from Status
	var dealID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		to, err := Next(q.Status, EventCancel)
		if err != nil {
			return err
		}
		from, dealID = q.Status, q.DealID
		q.Status = to
		q.Discount = nil
		q.EventID = nil
		q.SelectedByClient = false
		if err := tx.Save(ctx, *q); err != nil {
			return fmt.Errorf("save quotation: %w", err)
		}
		if from == StatusClosing {
			if err := tx.DeleteClosing(ctx, q.ID); err != nil {
				return fmt.Errorf("delete closing record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Ack{}, err
	}

	s.runHooks(ctx, "cancel", id,
		s.historyHook(HistoryEntry{DealID: dealID, QuotationID: id, Action: "cancelled", FromStatus: from, ToStatus: StatusCancelled}),
		s.invalidateHook(id),
	)
	return Ack{ID: id}, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) summary(ctx context.Context, id int64) (Summary, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(q), nil
}

// buildItems resolves the declared items of in: catalog selections first, then custom items.
// Catalog items carry their catalog identity only; pricing is filled by the synchronizer.
func (s *Service) buildItems(ctx context.Context, in QuotationInput) ([]Item, error) {
	items, err := s.catalogItems(ctx, in.CatalogSelections)
	if err != nil {
		return nil, err
	}
	for _, c := range in.CustomItems {
		items = append(items, customItem(c, in.EventDurationHours))
	}
	for i := range items {
		items[i].Order = i
	}
	return items, nil
}

func (s *Service) catalogItems(ctx context.Context, selections []CatalogSelection) ([]Item, error) {
	items := make([]Item, 0, len(selections))
	for _, sel := range selections {
		ci, err := s.sync.catalog.GetItem(ctx, sel.ItemID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: catalog item %d", ErrNotFound, sel.ItemID)
			}
			return nil, fmt.Errorf("load catalog item %d: %w", sel.ItemID, err)
		}
		catalogID, categoryID := ci.ID, ci.CategoryID
		items = append(items, Item{
			CatalogItemID: &catalogID,
			CategoryID:    &categoryID,
			Quantity:      sel.Quantity,
			Billing:       ci.Billing,
			Live: ItemFields{
				Name:        ci.Name,
				Description: ci.Description,
				Cost:        ci.Cost,
				Expense:     ci.Expense,
				ProfitType:  ci.Classification,
			},
		})
	}
	return items, nil
}

func customItem(c CustomItemInput, hours *float64) Item {
	qty := pricing.EffectiveQuantity(c.Billing, c.Quantity, hours)
	return Item{
		Quantity: c.Quantity,
		Billing:  c.Billing,
		Live: ItemFields{
			Name:         c.Name,
			Description:  c.Description,
			CategoryName: c.CategoryName,
			SectionName:  c.SectionName,
			UnitPrice:    pricing.Round2(c.UnitPrice),
			Subtotal:     pricing.Subtotal(c.UnitPrice, qty),
			Cost:         c.Cost,
			Expense:      c.Expense,
			Profit:       pricing.Round2(c.UnitPrice - c.Cost - c.Expense),
			ProfitType:   c.Classification,
		},
	}
}

func insertItems(ctx context.Context, tx TxRepository, quotationID int64, items []Item) ([]Item, error) {
	inserted := make([]Item, 0, len(items))
	for _, it := range items {
		it.QuotationID = quotationID
		itemID, err := tx.InsertItem(ctx, it)
		if err != nil {
			return nil, fmt.Errorf("insert quotation item: %w", err)
		}
		it.ID = itemID
		inserted = append(inserted, it)
	}
	return inserted, nil
}

func applyPrice(q *Quotation, override *float64) {
	if override != nil {
		q.Price = pricing.Round2(*override)
		q.ManualPrice = true
		return
	}
	q.Price = q.ListPrice
	q.ManualPrice = false
}

func ensureNameFree(ctx context.Context, tx TxRepository, dealID int64, name string, excludeID int64) error {
	taken, err := tx.NameTaken(ctx, dealID, name, excludeID)
	if err != nil {
		return fmt.Errorf("check quotation name: %w", err)
	}
	if taken {
		return fmt.Errorf("%w: a quotation named %q already exists for this deal", ErrValidation, name)
	}
	return nil
}

func ensureCondition(ctx context.Context, tx TxRepository, id *int64) error {
	if id == nil {
		return nil
	}
	if _, err := tx.GetCondition(ctx, *id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: commercial condition %d", ErrNotFound, *id)
		}
		return fmt.Errorf("load commercial condition: %w", err)
	}
	return nil
}

// archiveSiblings archives every other non-cancelled, not yet archived quotation of q's deal.
// Statuses that can be archived move to archivada; the rest only get the archived flag.
func archiveSiblings(ctx context.Context, tx TxRepository, q Quotation) ([]int64, error) {
	siblings, err := tx.ListByDeal(ctx, q.DealID)
	if err != nil {
		return nil, fmt.Errorf("list deal quotations: %w", err)
	}
	var archived []int64
	for _, sib := range siblings {
		if sib.ID == q.ID || sib.Status == StatusCancelled || sib.Status == StatusArchived {
			continue
		}
		if sib.Status == StatusClosing {
			if err := tx.DeleteClosing(ctx, sib.ID); err != nil {
				return nil, fmt.Errorf("delete closing record: %w", err)
			}
		}
		if to, err := Next(sib.Status, EventArchive); err == nil {
			sib.Status = to
		}
		sib.Archived = true
		sib.SelectedByClient = false
		if err := tx.Save(ctx, sib); err != nil {
			return nil, fmt.Errorf("archive quotation %d: %w", sib.ID, err)
		}
		archived = append(archived, sib.ID)
	}
	return archived, nil
}
