// Package deals records quotation lifecycle events in the deal pipeline history.
package deals

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studio-ops/quotation-engine/internal/quotes"
)

// HistoryWriter implements quotes.History on PostgreSQL.
type HistoryWriter struct {
	pool *pgxpool.Pool
}

// NewHistoryWriter creates a history writer.
func NewHistoryWriter(pool *pgxpool.Pool) *HistoryWriter {
	return &HistoryWriter{pool: pool}
}

// AppendHistory inserts one entry. Re-delivering an entry with the same id is a no-op.
func (w *HistoryWriter) AppendHistory(ctx context.Context, entry quotes.HistoryEntry) error {
	meta, err := encodeMeta(entry.Meta)
	if err != nil {
		return err
	}
	_, err = w.pool.Exec(ctx, `
		INSERT INTO deal_history (id, deal_id, quotation_id, action, from_status, to_status, meta, occurred_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.DealID, entry.QuotationID, entry.Action,
		string(entry.FromStatus), string(entry.ToStatus), meta, entry.At)
	if err != nil {
		return fmt.Errorf("append deal history: %w", err)
	}
	return nil
}

func encodeMeta(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode history meta: %w", err)
	}
	return raw, nil
}

var _ quotes.History = (*HistoryWriter)(nil)
