// Package cache implements the tiered cache facade on top of the entry store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/tiercache/store"
)

// TTLNone disables TTL expiry for an entry. A zero TTL picks the tier default
// from the profile.
const TTLNone = time.Duration(-1)

// Factory computes a value on cache miss.
type Factory func(ctx context.Context) (any, error)

// SetOptions carries the optional metadata of a write.
type SetOptions struct {
	// Tier forces a tier. When empty, an existing entry keeps its tier and a
	// new entry gets the keyword heuristic.
	Tier store.Tier
	// SourceLocator makes the entry participate in freshness polling.
	SourceLocator string
	// ContentHash overrides the hash computed from the payload. Only used
	// together with SourceLocator.
	ContentHash string
}

// Cache is the facade over the entry store. The zero prefix instance covers
// the whole key space; Namespace derives prefixed views sharing the same
// store, configuration, counters, and notifier.
//
// All methods are safe for concurrent use. There is no locking above the
// store's per-statement atomicity, so a Get followed by a Set of the same key
// by two callers is not atomic end to end.
type Cache struct {
	store    *store.Store
	config   *tierConfig
	counters *counters
	notifier *Notifier
	prefix   string
}

// New creates a cache facade. Tier limits are seeded from the store's
// profile.
func New(st *store.Store) *Cache {
	p := st.Profile()
	return &Cache{
		store: st,
		config: &tierConfig{
			bounded:    p.Bounded,
			persistent: p.Persistent,
		},
		counters: &counters{},
		notifier: newNotifier(),
	}
}

// Store exposes the underlying entry store for runners.
func (c *Cache) Store() *store.Store {
	return c.store
}

// Notifier returns the change-notification fanout shared by all views.
func (c *Cache) Notifier() *Notifier {
	return c.notifier
}

// Namespace returns a view that prefixes all keys with name + ":". Views
// compose: Namespace("a").Namespace("b") prefixes with "a:b:".
func (c *Cache) Namespace(name string) *Cache {
	clone := *c
	clone.prefix = c.prefix + name + ":"
	return &clone
}

// Prefix returns the accumulated namespace prefix of this view.
func (c *Cache) Prefix() string {
	return c.prefix
}

func (c *Cache) fullKey(key string) string {
	return c.prefix + key
}

// HashContent returns the content hash used for freshness comparison.
func HashContent(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// Get returns the live value for a key. Expired entries are deleted lazily
// and reported as a miss. Read failures degrade to a miss. A successful read
// refreshes the entry's last-accessed time.
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	full := c.fullKey(key)
	entry, err := c.store.GetCacheEntry(ctx, full)
	if err != nil {
		slog.Warn("cache read failed, treating as miss", "key", full, "error", err)
		c.counters.misses.Add(1)
		return nil, false
	}
	if entry == nil {
		c.counters.misses.Add(1)
		return nil, false
	}

	now := time.Now()
	if entry.IsExpired(now) {
		if err := c.store.DeleteCacheEntry(ctx, &store.DeleteCacheEntry{Key: full}); err != nil {
			slog.Warn("failed to delete expired cache entry", "key", full, "error", err)
		}
		c.counters.misses.Add(1)
		return nil, false
	}

	if err := c.store.TouchCacheEntry(ctx, full, now.UnixMilli()); err != nil {
		slog.Warn("failed to update last-accessed time", "key", full, "error", err)
	}

	value, err := decodeValue(entry.Kind, entry.Value)
	if err != nil {
		slog.Error("failed to decode cache entry, dropping it", "key", full, "error", err)
		_ = c.store.DeleteCacheEntry(ctx, &store.DeleteCacheEntry{Key: full})
		c.counters.misses.Add(1)
		return nil, false
	}

	c.counters.hits.Add(1)
	return value, true
}

// Has reports whether a live entry exists for the key, expiring it lazily
// like Get. It does not refresh last-accessed time or touch counters.
func (c *Cache) Has(ctx context.Context, key string) bool {
	full := c.fullKey(key)
	entry, err := c.store.GetCacheEntry(ctx, full)
	if err != nil || entry == nil {
		return false
	}
	if entry.IsExpired(time.Now()) {
		if err := c.store.DeleteCacheEntry(ctx, &store.DeleteCacheEntry{Key: full}); err != nil {
			slog.Warn("failed to delete expired cache entry", "key", full, "error", err)
		}
		return false
	}
	return true
}

// Set stores a value with the tier heuristic and default metadata.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.SetWithOptions(ctx, key, value, ttl, SetOptions{})
}

// SetWithOptions stores a value. A failed write is returned to the caller;
// silently dropping it could hide misses later. A failed eviction pass after
// the write is logged only, the write itself stands.
func (c *Cache) SetWithOptions(ctx context.Context, key string, value any, ttl time.Duration, opts SetOptions) error {
	full := c.fullKey(key)

	kind, blob, err := encodeValue(value)
	if err != nil {
		return errors.Wrapf(err, "failed to encode value for key %q", full)
	}

	tier := opts.Tier
	if tier == "" {
		// Overwrites keep the entry's tier unless one was requested.
		existing, err := c.store.GetCacheEntry(ctx, full)
		if err == nil && existing != nil {
			tier = existing.Tier
		} else {
			tier = tierForKey(full)
		}
	}

	limits := c.config.limits(tier)
	var ttlMs *int64
	switch {
	case ttl == TTLNone:
		// no expiry
	case ttl > 0:
		v := ttl.Milliseconds()
		ttlMs = &v
	default:
		if limits.DefaultTTL > 0 {
			v := limits.DefaultTTL.Milliseconds()
			ttlMs = &v
		}
	}

	now := time.Now().UnixMilli()
	entry := &store.CacheEntry{
		Key:            full,
		Value:          blob,
		Kind:           kind,
		CreatedTs:      now,
		TTLMs:          ttlMs,
		SizeBytes:      estimateSize(kind, blob),
		LastAccessedTs: now,
		Tier:           tier,
	}
	if opts.SourceLocator != "" {
		locator := opts.SourceLocator
		hash := opts.ContentHash
		if hash == "" {
			hash = HashContent(blob)
		}
		entry.SourceLocator = &locator
		entry.ContentHash = &hash
	}

	if _, err := c.store.UpsertCacheEntry(ctx, entry); err != nil {
		return errors.Wrapf(err, "failed to persist cache entry %q", full)
	}

	if tier == store.TierBounded {
		if _, err := c.EnforceTier(ctx, store.TierBounded); err != nil {
			slog.Warn("tier enforcement failed, limits may be exceeded until next pass", "error", err)
		}
	}
	return nil
}

// GetOrSet returns the cached value when present, otherwise computes it with
// factory, stores the result, and returns it.
//
// There is no per-key mutual exclusion: concurrent callers missing the same
// key may each run the factory. Factories must tolerate duplicate runs.
func (c *Cache) GetOrSet(ctx context.Context, key string, factory Factory, ttl time.Duration) (any, error) {
	return c.GetOrSetWithOptions(ctx, key, factory, ttl, SetOptions{})
}

// GetOrSetWithOptions is GetOrSet with write metadata. A factory error is
// propagated untouched and nothing is cached. A failed cache write is logged
// and the freshly computed value is still returned, so cache trouble degrades
// to recomputation.
func (c *Cache) GetOrSetWithOptions(ctx context.Context, key string, factory Factory, ttl time.Duration, opts SetOptions) (any, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}
	value, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.SetWithOptions(ctx, key, value, ttl, opts); err != nil {
		slog.Warn("failed to cache computed value", "key", c.fullKey(key), "error", err)
	}
	return value, nil
}

// Delete removes the entry for a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.DeleteCacheEntry(ctx, &store.DeleteCacheEntry{Key: c.fullKey(key)})
}

// GetMultiple returns the live values for the given keys. Missing or expired
// keys are absent from the result.
func (c *Cache) GetMultiple(ctx context.Context, keys []string) map[string]any {
	result := make(map[string]any, len(keys))
	for _, key := range keys {
		if value, ok := c.Get(ctx, key); ok {
			result[key] = value
		}
	}
	return result
}

// SetMultiple stores every pair with a shared TTL. The first failed write
// aborts the batch.
func (c *Cache) SetMultiple(ctx context.Context, values map[string]any, ttl time.Duration) error {
	for key, value := range values {
		if err := c.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMultiple removes the given keys and returns how many existed.
func (c *Cache) DeleteMultiple(ctx context.Context, keys []string) (int64, error) {
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, c.fullKey(key))
	}
	return c.store.DeleteCacheEntries(ctx, full)
}

// KeysMatching returns the keys of this view matching a glob pattern, with
// the view's prefix stripped.
func (c *Cache) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	entries, err := c.store.ListCacheEntries(ctx, &store.FindCacheEntry{KeyPrefix: &c.prefix})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan cache entries")
	}

	keys := make([]string, 0)
	for _, entry := range entries {
		key := strings.TrimPrefix(entry.Key, c.prefix)
		matched, err := path.Match(pattern, key)
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", pattern)
		}
		if matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// DeleteMatching removes all keys of this view matching a glob pattern.
func (c *Cache) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	keys, err := c.KeysMatching(ctx, pattern)
	if err != nil {
		return 0, err
	}
	return c.DeleteMultiple(ctx, keys)
}

// ClearByPrefix removes all keys of this view starting with the given
// prefix.
func (c *Cache) ClearByPrefix(ctx context.Context, prefix string) (int64, error) {
	full := c.prefix + prefix
	entries, err := c.store.ListCacheEntries(ctx, &store.FindCacheEntry{KeyPrefix: &full})
	if err != nil {
		return 0, errors.Wrap(err, "failed to scan cache entries")
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.Key)
	}
	return c.store.DeleteCacheEntries(ctx, keys)
}

// Clear wipes this view. On the root view it wipes the whole store and
// resets the statistics counters; on a namespace view it only removes the
// namespace's keys.
func (c *Cache) Clear(ctx context.Context) error {
	if c.prefix == "" {
		if _, err := c.store.ClearCacheEntries(ctx, nil); err != nil {
			return errors.Wrap(err, "failed to clear cache")
		}
		c.counters.reset()
		return nil
	}
	_, err := c.ClearByPrefix(ctx, "")
	return err
}

// GetStatistics returns entry totals for this view and the shared
// hit/miss/eviction counters.
func (c *Cache) GetStatistics(ctx context.Context) (*Statistics, error) {
	find := &store.FindCacheEntry{}
	if c.prefix != "" {
		find.KeyPrefix = &c.prefix
	}
	count, err := c.store.CountCacheEntries(ctx, find)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count cache entries")
	}
	size, err := c.store.SumCacheEntrySizes(ctx, find)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum cache entry sizes")
	}

	hits, misses, evictions, hitRate, missRate := c.counters.snapshot()
	return &Statistics{
		TotalEntries:   count,
		TotalSizeBytes: size,
		Hits:           hits,
		Misses:         misses,
		HitRate:        hitRate,
		MissRate:       missRate,
		Evictions:      evictions,
	}, nil
}
