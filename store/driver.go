package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that a store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// CacheEntry model related methods.
	UpsertCacheEntry(ctx context.Context, upsert *CacheEntry) (*CacheEntry, error)
	ListCacheEntries(ctx context.Context, find *FindCacheEntry) ([]*CacheEntry, error)
	DeleteCacheEntry(ctx context.Context, delete *DeleteCacheEntry) error
	DeleteCacheEntries(ctx context.Context, keys []string) (int64, error)
	CountCacheEntries(ctx context.Context, find *FindCacheEntry) (int64, error)
	SumCacheEntrySizes(ctx context.Context, find *FindCacheEntry) (int64, error)
	// TouchCacheEntry updates last_accessed_ts for a single key.
	TouchCacheEntry(ctx context.Context, key string, accessedTs int64) error
	// ClearCacheEntries wipes all entries, optionally restricted to one tier.
	ClearCacheEntries(ctx context.Context, tier *Tier) (int64, error)
	// DeleteExpiredCacheEntries removes, in one statement, every entry whose
	// TTL elapsed at or before the given unix-millisecond timestamp.
	DeleteExpiredCacheEntries(ctx context.Context, nowMs int64) (int64, error)

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	GetSystemSetting(ctx context.Context, name string) (*SystemSetting, error)
}
