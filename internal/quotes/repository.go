package quotes

import (
	"context"
)

// Reader exposes the lookups available both inside and outside a transaction.
type Reader interface {
	Get(ctx context.Context, id int64) (*Quotation, error)
	ListByDeal(ctx context.Context, dealID int64) ([]Quotation, error)
	ListRevisions(ctx context.Context, originalID int64) ([]Quotation, error)
	GetDeal(ctx context.Context, dealID int64) (*Deal, error)
	GetClosing(ctx context.Context, quotationID int64) (*ClosingRecord, error)
	GetCondition(ctx context.Context, id int64) (*CommercialCondition, error)
}

// Repository is the persistent store of quotations.
type Repository interface {
	Reader
	// WithTx runs fn atomically. Any error returned by fn rolls every write back.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// ListSyncable returns ids of non-archived quotations whose live pricing may be refreshed.
	ListSyncable(ctx context.Context, limit int) ([]int64, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Reader

	// Lock loads a quotation with its items and holds it for the rest of the transaction.
	Lock(ctx context.Context, id int64) (*Quotation, error)
	NameTaken(ctx context.Context, dealID int64, name string, excludeID int64) (bool, error)

	Create(ctx context.Context, q Quotation) (int64, error)
	Save(ctx context.Context, q Quotation) error
	InsertItem(ctx context.Context, item Item) (int64, error)
	DeleteItems(ctx context.Context, quotationID int64) error
	SaveItemPricing(ctx context.Context, item Item) error
	SetItemReferences(ctx context.Context, itemID int64, taskID, assignmentID *int64) error

	ReplaceTemporaryCondition(ctx context.Context, c CommercialCondition) (int64, error)

	InsertClosing(ctx context.Context, rec ClosingRecord) error
	DeleteClosing(ctx context.Context, quotationID int64) error

	AdvanceDealStage(ctx context.Context, dealID int64, stageSlug string) error
	RemoveDealTag(ctx context.Context, dealID int64, tag string) error
	EnsureDealEvent(ctx context.Context, deal Deal) (int64, error)
	RepointEvent(ctx context.Context, eventID, quotationID int64) error
}
