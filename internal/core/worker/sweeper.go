package worker

import (
	"context"
	"log/slog"
	"time"
)

// ExpiringStore is an idempotency store that can drop expired records
// eagerly. The in-memory store implements it; Redis expires keys on its
// own and needs no sweeping.
type ExpiringStore interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// Sweeper periodically evicts expired idempotency records.
type Sweeper struct {
	stores   []ExpiringStore
	interval time.Duration
	log      *slog.Logger
}

// NewSweeper creates a sweeper over the given stores. A non-positive
// interval defaults to five minutes.
func NewSweeper(stores []ExpiringStore, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{stores: stores, interval: interval, log: log}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	total := 0
	for _, store := range s.stores {
		n, err := store.DeleteExpired(ctx)
		if err != nil {
			s.log.Warn("idempotency sweep failed", "error", err)
			continue
		}
		total += n
	}
	if total > 0 {
		s.log.Debug("swept expired idempotency records", "count", total)
	}
}
