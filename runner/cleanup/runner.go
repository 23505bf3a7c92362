// Package cleanup sweeps TTL-expired entries out of the store.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/tiercache/store"
)

// Runner deletes expired entries on a low-frequency timer. Expiry is
// otherwise lazy (on read), so this pass only reclaims space held by entries
// nobody asks for anymore. It is tier-agnostic: an expired entry is removed
// whichever tier it lives in.
type Runner struct {
	store    *store.Store
	interval time.Duration
}

func NewRunner(store *store.Store, interval time.Duration) *Runner {
	return &Runner{store: store, interval: interval}
}

// Run starts the background sweep until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("cleanup runner stopped")
			return
		}
	}
}

// RunOnce performs a single sweep.
func (r *Runner) RunOnce(ctx context.Context) {
	deleted, err := r.store.DeleteExpiredCacheEntries(ctx, time.Now().UnixMilli())
	if err != nil {
		slog.Error("expired entry sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("swept expired cache entries", "count", deleted)
	}
}
