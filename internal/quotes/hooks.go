package quotes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Hook is a best-effort side effect run after a lifecycle transaction commits.
type Hook struct {
	Name string
	Run  func(ctx context.Context) error
}

// runHooks executes every hook independently. A failing or panicking hook is logged and
// counted; it never affects the caller or the hooks after it.
func (s *Service) runHooks(ctx context.Context, operation string, quotationID int64, hooks ...Hook) {
	if len(hooks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	batch := uuid.NewString()
	for _, h := range hooks {
		if h.Run == nil {
			continue
		}
		if err := safeRun(ctx, h); err != nil {
			s.logger.Warn("post-commit hook failed",
				slog.String("hook", h.Name),
				slog.String("operation", operation),
				slog.Int64("quotation_id", quotationID),
				slog.String("batch", batch),
				slog.Any("error", err),
			)
			if s.recorder != nil {
				s.recorder.ObserveHookFailure(h.Name)
			}
		}
	}
}

func safeRun(ctx context.Context, h Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: hook %s panicked: %v", ErrExternalSync, h.Name, r)
		}
	}()
	if err := h.Run(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalSync, err)
	}
	return nil
}

// syncHook re-prices catalog items of a quotation. On failure it schedules an asynchronous retry.
func (s *Service) syncHook(quotationID int64) Hook {
	return Hook{Name: "pricing_sync", Run: func(ctx context.Context) error {
		err := s.sync.Sync(ctx, s.repo, quotationID)
		if err == nil {
			return nil
		}
		if s.enqueuer != nil {
			if qerr := s.enqueuer.EnqueuePricingResync(ctx, quotationID); qerr != nil {
				s.logger.Warn("enqueue pricing resync", slog.Int64("quotation_id", quotationID), slog.Any("error", qerr))
			}
		}
		return err
	}}
}

// invalidateHook bumps the cached structure version of every given quotation.
func (s *Service) invalidateHook(ids ...int64) Hook {
	return Hook{Name: "structure_invalidate", Run: func(ctx context.Context) error {
		if s.cache == nil {
			return nil
		}
		var firstErr error
		for _, id := range ids {
			if err := s.cache.Invalidate(ctx, id); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}}
}

// historyHook appends a pipeline history entry.
func (s *Service) historyHook(entry HistoryEntry) Hook {
	return Hook{Name: "pipeline_history", Run: func(ctx context.Context) error {
		if s.history == nil {
			return nil
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.At.IsZero() {
			entry.At = s.now()
		}
		entry.Action = historyNamespace + "." + entry.Action
		return s.history.AppendHistory(ctx, entry)
	}}
}
