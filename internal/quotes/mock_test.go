package quotes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studio-ops/quotation-engine/internal/pricing"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type memStore struct {
	quotations map[int64]Quotation
	items      map[int64]Item
	deals      map[int64]Deal
	closings   map[int64]ClosingRecord
	conditions map[int64]CommercialCondition
	events     map[int64]int64

	nextQuotationID int64
	nextItemID      int64
	nextConditionID int64
	nextEventID     int64

	// Error injection
	txError      error
	advanceError error
	saveError    map[int64]error
}

func (s *memStore) clone() *memStore {
	cp := *s
	cp.quotations = make(map[int64]Quotation, len(s.quotations))
	for k, v := range s.quotations {
		cp.quotations[k] = v
	}
	cp.items = make(map[int64]Item, len(s.items))
	for k, v := range s.items {
		cp.items[k] = v
	}
	cp.deals = make(map[int64]Deal, len(s.deals))
	for k, v := range s.deals {
		v.Tags = append([]string(nil), v.Tags...)
		cp.deals[k] = v
	}
	cp.closings = make(map[int64]ClosingRecord, len(s.closings))
	for k, v := range s.closings {
		v.ArchivedSiblingIDs = append([]int64(nil), v.ArchivedSiblingIDs...)
		cp.closings[k] = v
	}
	cp.conditions = make(map[int64]CommercialCondition, len(s.conditions))
	for k, v := range s.conditions {
		cp.conditions[k] = v
	}
	cp.events = make(map[int64]int64, len(s.events))
	for k, v := range s.events {
		cp.events[k] = v
	}
	return &cp
}

type mockRepository struct {
	*memStore
	mu sync.Mutex
}

func newMockRepository() *mockRepository {
	return &mockRepository{memStore: &memStore{
		quotations:      make(map[int64]Quotation),
		items:           make(map[int64]Item),
		deals:           make(map[int64]Deal),
		closings:        make(map[int64]ClosingRecord),
		conditions:      make(map[int64]CommercialCondition),
		events:          make(map[int64]int64),
		saveError:       make(map[int64]error),
		nextQuotationID: 1,
		nextItemID:      1,
		nextConditionID: 1,
		nextEventID:     1,
	}}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txError != nil {
		return m.txError
	}
	snapshot := m.memStore.clone()
	if err := fn(ctx, &mockTxRepo{memStore: m.memStore}); err != nil {
		*m.memStore = *snapshot
		return err
	}
	return nil
}

func (m *mockRepository) ListSyncable(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	for id, q := range m.quotations {
		if !q.Archived && Syncable(q.Status) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ============================================================================
// READER
// ============================================================================

func (s *memStore) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, ok := s.quotations[id]
	if !ok {
		return nil, fmt.Errorf("%w: quotation %d", ErrNotFound, id)
	}
	q.Items = s.itemsOf(id)
	return &q, nil
}

func (s *memStore) itemsOf(quotationID int64) []Item {
	var out []Item
	for _, it := range s.items {
		if it.QuotationID == quotationID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *memStore) filter(match func(Quotation) bool, less func(a, b Quotation) bool) []Quotation {
	var out []Quotation
	for id, q := range s.quotations {
		if match(q) {
			q.Items = s.itemsOf(id)
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (s *memStore) ListByDeal(ctx context.Context, dealID int64) ([]Quotation, error) {
	return s.filter(
		func(q Quotation) bool { return q.DealID == dealID },
		func(a, b Quotation) bool {
			if a.Order != b.Order {
				return a.Order < b.Order
			}
			return a.ID < b.ID
		},
	), nil
}

func (s *memStore) ListRevisions(ctx context.Context, originalID int64) ([]Quotation, error) {
	return s.filter(
		func(q Quotation) bool { return q.RevisionOf != nil && *q.RevisionOf == originalID },
		func(a, b Quotation) bool { return a.RevisionNumber < b.RevisionNumber },
	), nil
}

func (s *memStore) GetDeal(ctx context.Context, dealID int64) (*Deal, error) {
	d, ok := s.deals[dealID]
	if !ok {
		return nil, fmt.Errorf("%w: deal %d", ErrNotFound, dealID)
	}
	return &d, nil
}

func (s *memStore) GetClosing(ctx context.Context, quotationID int64) (*ClosingRecord, error) {
	rec, ok := s.closings[quotationID]
	if !ok {
		return nil, fmt.Errorf("%w: closing record of quotation %d", ErrNotFound, quotationID)
	}
	return &rec, nil
}

func (s *memStore) GetCondition(ctx context.Context, id int64) (*CommercialCondition, error) {
	c, ok := s.conditions[id]
	if !ok {
		return nil, fmt.Errorf("%w: commercial condition %d", ErrNotFound, id)
	}
	return &c, nil
}

// ============================================================================
// MOCK TX REPOSITORY
// ============================================================================

type mockTxRepo struct {
	*memStore
}

func (tx *mockTxRepo) Lock(ctx context.Context, id int64) (*Quotation, error) {
	return tx.Get(ctx, id)
}

func (tx *mockTxRepo) NameTaken(ctx context.Context, dealID int64, name string, excludeID int64) (bool, error) {
	for id, q := range tx.quotations {
		if id != excludeID && q.DealID == dealID && !q.Archived && strings.EqualFold(q.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *mockTxRepo) Create(ctx context.Context, q Quotation) (int64, error) {
	q.ID = tx.nextQuotationID
	tx.nextQuotationID++
	q.Items = nil
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	tx.quotations[q.ID] = q
	return q.ID, nil
}

func (tx *mockTxRepo) Save(ctx context.Context, q Quotation) error {
	if err := tx.saveError[q.ID]; err != nil {
		return err
	}
	if _, ok := tx.quotations[q.ID]; !ok {
		return fmt.Errorf("%w: quotation %d", ErrNotFound, q.ID)
	}
	if !q.Archived {
		if taken, _ := tx.NameTaken(ctx, q.DealID, q.Name, q.ID); taken {
			return fmt.Errorf("%w: quotation name %q already exists in deal %d", ErrValidation, q.Name, q.DealID)
		}
	}
	q.Items = nil
	q.UpdatedAt = time.Now()
	tx.quotations[q.ID] = q
	return nil
}

func (tx *mockTxRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	item.ID = tx.nextItemID
	tx.nextItemID++
	tx.items[item.ID] = item
	return item.ID, nil
}

func (tx *mockTxRepo) DeleteItems(ctx context.Context, quotationID int64) error {
	for id, it := range tx.items {
		if it.QuotationID == quotationID {
			delete(tx.items, id)
		}
	}
	return nil
}

func (tx *mockTxRepo) SaveItemPricing(ctx context.Context, item Item) error {
	if _, ok := tx.items[item.ID]; !ok {
		return fmt.Errorf("%w: item %d", ErrNotFound, item.ID)
	}
	tx.items[item.ID] = item
	return nil
}

func (tx *mockTxRepo) SetItemReferences(ctx context.Context, itemID int64, taskID, assignmentID *int64) error {
	it, ok := tx.items[itemID]
	if !ok {
		return fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}
	it.SchedulingTaskID = taskID
	it.CrewAssignmentID = assignmentID
	tx.items[itemID] = it
	return nil
}

func (tx *mockTxRepo) ReplaceTemporaryCondition(ctx context.Context, c CommercialCondition) (int64, error) {
	for id, existing := range tx.conditions {
		if existing.Temporary && existing.QuotationID != nil && c.QuotationID != nil && *existing.QuotationID == *c.QuotationID {
			c.ID = id
			tx.conditions[id] = c
			return id, nil
		}
	}
	c.ID = tx.nextConditionID
	tx.nextConditionID++
	tx.conditions[c.ID] = c
	return c.ID, nil
}

func (tx *mockTxRepo) InsertClosing(ctx context.Context, rec ClosingRecord) error {
	tx.closings[rec.QuotationID] = rec
	return nil
}

func (tx *mockTxRepo) DeleteClosing(ctx context.Context, quotationID int64) error {
	delete(tx.closings, quotationID)
	return nil
}

func (tx *mockTxRepo) AdvanceDealStage(ctx context.Context, dealID int64, stageSlug string) error {
	if tx.advanceError != nil {
		return tx.advanceError
	}
	d := tx.deals[dealID]
	d.StageSlug = stageSlug
	tx.deals[dealID] = d
	return nil
}

func (tx *mockTxRepo) RemoveDealTag(ctx context.Context, dealID int64, tag string) error {
	d := tx.deals[dealID]
	kept := d.Tags[:0:0]
	for _, t := range d.Tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	d.Tags = kept
	tx.deals[dealID] = d
	return nil
}

func (tx *mockTxRepo) EnsureDealEvent(ctx context.Context, deal Deal) (int64, error) {
	d := tx.deals[deal.ID]
	if d.EventID != nil {
		return *d.EventID, nil
	}
	id := tx.nextEventID
	tx.nextEventID++
	d.EventID = &id
	tx.deals[deal.ID] = d
	tx.events[id] = 0
	return id, nil
}

func (tx *mockTxRepo) RepointEvent(ctx context.Context, eventID, quotationID int64) error {
	tx.events[eventID] = quotationID
	return nil
}

// ============================================================================
// COLLABORATORS
// ============================================================================

type mockCatalog struct {
	items map[int64]CatalogItem
	paths map[int64]CategoryPath
	err   error
}

func (c *mockCatalog) GetItem(ctx context.Context, itemID int64) (*CatalogItem, error) {
	if c.err != nil {
		return nil, c.err
	}
	it, ok := c.items[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: catalog item %d", ErrNotFound, itemID)
	}
	return &it, nil
}

func (c *mockCatalog) GetCategoryPath(ctx context.Context, categoryID int64) (*CategoryPath, error) {
	p, ok := c.paths[categoryID]
	if !ok {
		return nil, fmt.Errorf("%w: category %d", ErrNotFound, categoryID)
	}
	return &p, nil
}

type mockConfigs struct {
	cfg *pricing.Config
	err error
}

func (c *mockConfigs) GetConfig(ctx context.Context, studioID int64) (pricing.Config, error) {
	if c.err != nil {
		return pricing.Config{}, c.err
	}
	if c.cfg == nil {
		return pricing.Config{}, ErrConfigurationMissing
	}
	return *c.cfg, nil
}

type mockHistory struct {
	entries []HistoryEntry
	err     error
	panics  bool
}

func (h *mockHistory) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	if h.panics {
		panic("history store unavailable")
	}
	if h.err != nil {
		return h.err
	}
	h.entries = append(h.entries, entry)
	return nil
}

func (h *mockHistory) actions() []string {
	out := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, e.Action)
	}
	return out
}

type mockEnqueuer struct {
	ids []int64
	err error
}

func (e *mockEnqueuer) EnqueuePricingResync(ctx context.Context, quotationID int64) error {
	e.ids = append(e.ids, quotationID)
	return e.err
}

type mockRecorder struct {
	transitions map[string]int
	hooks       map[string]int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{transitions: map[string]int{}, hooks: map[string]int{}}
}

func (r *mockRecorder) ObserveTransition(operation, outcome string) {
	r.transitions[operation+"/"+outcome]++
}

func (r *mockRecorder) ObserveHookFailure(hook string) {
	r.hooks[hook]++
}

// ============================================================================
// FIXTURE
// ============================================================================

const (
	testStudioID = int64(10)
	testDealID   = int64(1)

	itemCoverage = int64(100)
	itemAlbum    = int64(101)
	itemDrone    = int64(102)
)

var errBoom = errors.New("boom")

type fixture struct {
	svc      *Service
	repo     *mockRepository
	catalog  *mockCatalog
	configs  *mockConfigs
	history  *mockHistory
	enqueuer *mockEnqueuer
	recorder *mockRecorder
	now      time.Time
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMockRepository()
	eventDate := time.Date(2026, 11, 21, 0, 0, 0, 0, time.UTC)
	repo.deals[testDealID] = Deal{
		ID: testDealID, StudioID: testStudioID, Name: "Boda Ana y Luis", StageSlug: "negotiation",
		EventDate: &eventDate, Tags: []string{"vip", TagCancelled},
	}
	repo.deals[2] = Deal{ID: 2, StudioID: testStudioID, Name: "XV años", StageSlug: "lead"}

	catalog := &mockCatalog{
		items: map[int64]CatalogItem{
			itemCoverage: {ID: itemCoverage, Name: "Cobertura fotográfica", Cost: 100, Classification: pricing.ClassificationService, CategoryID: 5, Billing: pricing.BillingService},
			itemAlbum:    {ID: itemAlbum, Name: "Álbum impreso", Cost: 80, Expense: 20, Classification: pricing.ClassificationProduct, CategoryID: 6, Billing: pricing.BillingUnit},
			itemDrone:    {ID: itemDrone, Name: "Toma con dron", Cost: 50, Classification: pricing.ClassificationService, CategoryID: 5, Billing: pricing.BillingHour},
		},
		paths: map[int64]CategoryPath{
			5: {SectionName: "Fotografía", CategoryName: "Cobertura", SectionOrder: intPtr(1), CategoryOrder: intPtr(1)},
			6: {SectionName: "Productos", CategoryName: "Álbumes", SectionOrder: intPtr(2), CategoryOrder: intPtr(1)},
		},
	}
	configs := &mockConfigs{cfg: &pricing.Config{ServiceMargin: 0.3, ProductMargin: 0.2, Markup: 0.05}}
	history := &mockHistory{}
	enqueuer := &mockEnqueuer{}
	recorder := newMockRecorder()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	svc := NewService(Dependencies{
		Repo:     repo,
		Catalog:  catalog,
		Configs:  configs,
		History:  history,
		Enqueuer: enqueuer,
		Recorder: recorder,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).WithClock(func() time.Time { return now })

	return &fixture{svc: svc, repo: repo, catalog: catalog, configs: configs, history: history, enqueuer: enqueuer, recorder: recorder, now: now}
}

func (f *fixture) create(t *testing.T, name string, selections ...CatalogSelection) Summary {
	t.Helper()
	if len(selections) == 0 {
		selections = []CatalogSelection{{ItemID: itemCoverage, Quantity: 2}}
	}
	sum, err := f.svc.Create(context.Background(), CreateInput{
		DealID:         testDealID,
		QuotationInput: QuotationInput{Name: name, CatalogSelections: selections},
	})
	require.NoError(t, err)
	return sum
}

func (f *fixture) quotation(t *testing.T, id int64) *Quotation {
	t.Helper()
	q, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return q
}

func (f *fixture) authorize(t *testing.T, id int64, amount float64) Summary {
	t.Helper()
	sum, err := f.svc.Authorize(context.Background(), AuthorizeInput{QuotationID: id, DealID: testDealID, Amount: amount})
	require.NoError(t, err)
	return sum
}
