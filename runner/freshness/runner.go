// Package freshness revalidates cache entries against their sources.
package freshness

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hrygo/tiercache/cache"
	"github.com/hrygo/tiercache/store"
)

// Fetcher reads the raw content behind a source locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// LocatorFetcher resolves locators against an optional base and reads them
// over HTTP or from the local filesystem.
type LocatorFetcher struct {
	base   string
	client *http.Client
}

func NewLocatorFetcher(baseLocator string) *LocatorFetcher {
	return NewLocatorFetcherWithClient(baseLocator, &http.Client{Timeout: 30 * time.Second})
}

// NewLocatorFetcherWithClient uses a caller-supplied HTTP client instead of
// the default 30s-timeout one.
func NewLocatorFetcherWithClient(baseLocator string, client *http.Client) *LocatorFetcher {
	return &LocatorFetcher{
		base:   baseLocator,
		client: client,
	}
}

func isRemote(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

func (f *LocatorFetcher) resolve(locator string) string {
	if f.base == "" || isRemote(locator) || strings.HasPrefix(locator, "/") {
		return locator
	}
	return strings.TrimSuffix(f.base, "/") + "/" + locator
}

func (f *LocatorFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	resolved := f.resolve(locator)

	if isRemote(resolved) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build request for %s", resolved)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch %s", resolved)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Errorf("unexpected status %d fetching %s", resp.StatusCode, resolved)
		}
		return io.ReadAll(resp.Body)
	}

	blob, err := os.ReadFile(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", resolved)
	}
	return blob, nil
}

// Runner polls every entry carrying a source locator, re-hashes the fetched
// content, and replaces the entry when the hash changed.
type Runner struct {
	cache       *cache.Cache
	fetcher     Fetcher
	interval    time.Duration
	limiter     *rate.Limiter
	concurrency int
}

func NewRunner(c *cache.Cache, fetcher Fetcher, interval time.Duration) *Runner {
	return &Runner{
		cache:    c,
		fetcher:  fetcher,
		interval: interval,
		// Sources are typically one upstream; keep the fetch rate polite.
		limiter:     rate.NewLimiter(rate.Limit(20), 20),
		concurrency: 4,
	}
}

// Run starts the polling loop until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.PollOnce(ctx); err != nil {
				slog.Error("freshness pass failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("freshness runner stopped")
			return
		}
	}
}

// PollOnce runs a single freshness pass. A fetch failure skips that entry
// and never aborts the rest of the pass; only a store scan failure is
// returned.
func (r *Runner) PollOnce(ctx context.Context) error {
	hasLocator := true
	entries, err := r.cache.Store().ListCacheEntries(ctx, &store.FindCacheEntry{
		HasSourceLocator: &hasLocator,
	})
	if err != nil {
		return errors.Wrap(err, "failed to scan entries for freshness check")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, entry := range entries {
		if !entry.Freshable() {
			continue
		}
		entry := entry
		g.Go(func() error {
			r.checkEntry(ctx, entry)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) checkEntry(ctx context.Context, entry *store.CacheEntry) {
	if err := r.limiter.Wait(ctx); err != nil {
		return
	}

	blob, err := r.fetcher.Fetch(ctx, *entry.SourceLocator)
	if err != nil {
		slog.Debug("source unreachable, skipping freshness check", "key", entry.Key, "error", err)
		return
	}

	hash := cache.HashContent(blob)
	if hash == *entry.ContentHash {
		return
	}

	value := valueForKind(entry.Kind, blob)
	ttl := cache.TTLNone
	if entry.TTLMs != nil {
		ttl = time.Duration(*entry.TTLMs) * time.Millisecond
	}
	if err := r.cache.SetWithOptions(ctx, entry.Key, value, ttl, cache.SetOptions{
		Tier:          entry.Tier,
		SourceLocator: *entry.SourceLocator,
		ContentHash:   hash,
	}); err != nil {
		slog.Warn("failed to refresh stale entry", "key", entry.Key, "error", err)
		return
	}

	slog.Info("refreshed stale cache entry", "key", entry.Key, "locator", *entry.SourceLocator)
	r.cache.Notifier().Publish(cache.ChangeNotification{
		Key:       entry.Key,
		NewValue:  value,
		Timestamp: time.Now(),
	})
}

// valueForKind re-wraps fetched raw content in the shape the entry was
// originally stored with.
func valueForKind(kind store.ValueKind, blob []byte) any {
	switch kind {
	case store.ValueKindText:
		return string(blob)
	case store.ValueKindStructured:
		return json.RawMessage(blob)
	default:
		return blob
	}
}
