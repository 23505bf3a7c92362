// Package store provides durable access to the cache entry table.
package store

import (
	"context"

	"github.com/hrygo/tiercache/internal/profile"
)

// Store provides database access to all raw cache entries.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Profile() *profile.Profile {
	return s.profile
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// GetCacheEntry returns the entry for a key, or nil when no entry exists.
func (s *Store) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	limit := 1
	list, err := s.driver.ListCacheEntries(ctx, &FindCacheEntry{Key: &key, Limit: &limit})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpsertCacheEntry(ctx context.Context, upsert *CacheEntry) (*CacheEntry, error) {
	return s.driver.UpsertCacheEntry(ctx, upsert)
}

func (s *Store) ListCacheEntries(ctx context.Context, find *FindCacheEntry) ([]*CacheEntry, error) {
	return s.driver.ListCacheEntries(ctx, find)
}

func (s *Store) DeleteCacheEntry(ctx context.Context, delete *DeleteCacheEntry) error {
	return s.driver.DeleteCacheEntry(ctx, delete)
}

func (s *Store) DeleteCacheEntries(ctx context.Context, keys []string) (int64, error) {
	return s.driver.DeleteCacheEntries(ctx, keys)
}

func (s *Store) CountCacheEntries(ctx context.Context, find *FindCacheEntry) (int64, error) {
	return s.driver.CountCacheEntries(ctx, find)
}

func (s *Store) SumCacheEntrySizes(ctx context.Context, find *FindCacheEntry) (int64, error) {
	return s.driver.SumCacheEntrySizes(ctx, find)
}

func (s *Store) TouchCacheEntry(ctx context.Context, key string, accessedTs int64) error {
	return s.driver.TouchCacheEntry(ctx, key, accessedTs)
}

func (s *Store) ClearCacheEntries(ctx context.Context, tier *Tier) (int64, error) {
	return s.driver.ClearCacheEntries(ctx, tier)
}

// DeleteExpiredCacheEntries removes every entry whose TTL elapsed at or
// before now (unix milliseconds), regardless of tier. The sweep is a single
// statement, so an entry overwritten with a fresh value mid-sweep is never
// deleted.
func (s *Store) DeleteExpiredCacheEntries(ctx context.Context, nowMs int64) (int64, error) {
	return s.driver.DeleteExpiredCacheEntries(ctx, nowMs)
}
