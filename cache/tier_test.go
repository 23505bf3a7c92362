package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tiercache/internal/profile"
	"github.com/hrygo/tiercache/store"
)

func TestTierForKey(t *testing.T) {
	assert.Equal(t, store.TierPersistent, tierForKey("persistent:cfg"))
	assert.Equal(t, store.TierPersistent, tierForKey("metadata:track:1"))
	assert.Equal(t, store.TierPersistent, tierForKey("app:CONFIG:theme"))
	assert.Equal(t, store.TierPersistent, tierForKey("search:index:v2"))
	assert.Equal(t, store.TierBounded, tierForKey("thumb:photo.jpg"))
	assert.Equal(t, store.TierBounded, tierForKey("doc:readme"))
}

func TestCountCeilingEvictsLRU(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, profile.TierLimits{MaxCount: 2})

	require.NoError(t, c.Set(ctx, "a", "va", 0))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", "vb", 0))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "c", "vc", 0))

	// "a" is the least recently used, so the write of "c" evicted it.
	assert.False(t, c.Has(ctx, "a"))
	assert.True(t, c.Has(ctx, "b"))
	assert.True(t, c.Has(ctx, "c"))

	stats, err := c.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestAccessRefreshesRecency(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, profile.TierLimits{MaxCount: 2})

	require.NoError(t, c.Set(ctx, "a", "va", 0))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", "vb", 0))
	time.Sleep(2 * time.Millisecond)

	// Reading "a" makes "b" the eviction candidate.
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)
	time.Sleep(2 * time.Millisecond)

	require.NoError(t, c.Set(ctx, "c", "vc", 0))

	assert.True(t, c.Has(ctx, "a"))
	assert.False(t, c.Has(ctx, "b"))
	assert.True(t, c.Has(ctx, "c"))
}

func TestPersistentTierNeverEvicted(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, profile.TierLimits{MaxCount: 3})

	require.NoError(t, c.Set(ctx, "metadata:track:1", "meta", 0))

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("thumb:%d", i), "v", 0))
	}

	assert.True(t, c.Has(ctx, "metadata:track:1"))

	boundedStats, err := c.GetTierStatistics(ctx, store.TierBounded)
	require.NoError(t, err)
	assert.Equal(t, int64(3), boundedStats.Entries)

	persistentStats, err := c.GetTierStatistics(ctx, store.TierPersistent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), persistentStats.Entries)
}

func TestPersistentEntrySurvivesBoundedFlood(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, profile.TierLimits{MaxCount: 5, MaxSizeMB: 1})

	require.NoError(t, c.Set(ctx, "persistent:cfg", map[string]int{"x": 1}, TTLNone))

	// Flood the bounded tier far past both ceilings.
	for i := 0; i < 200; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("doc:%d", i), strings.Repeat("x", 1024), 0))
	}

	got, ok, err := GetAs[map[string]int](ctx, c, "persistent:cfg")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"x": 1}, got)

	entry, err := c.Store().GetCacheEntry(ctx, "persistent:cfg")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, store.TierPersistent, entry.Tier)
	assert.Nil(t, entry.TTLMs)
}

func TestSizeCeilingEvictsLRU(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, profile.TierLimits{MaxSizeMB: 1})

	// Text entries are sized at two bytes per character, so each of these
	// weighs roughly 800KB. The third write pushes the total past 1MB twice
	// over and the two oldest entries go.
	payload := strings.Repeat("x", 400*1024)
	require.NoError(t, c.Set(ctx, "big:a", payload, 0))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "big:b", payload, 0))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "big:c", payload, 0))

	assert.False(t, c.Has(ctx, "big:a"))
	assert.False(t, c.Has(ctx, "big:b"))
	assert.True(t, c.Has(ctx, "big:c"))
}

func TestExplicitTierOverride(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, profile.TierLimits{})

	require.NoError(t, c.SetWithOptions(ctx, "thumb:pinned", "v", 0, SetOptions{Tier: store.TierPersistent}))

	entry, err := c.Store().GetCacheEntry(ctx, "thumb:pinned")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, store.TierPersistent, entry.Tier)

	// A plain overwrite keeps the assigned tier.
	require.NoError(t, c.Set(ctx, "thumb:pinned", "v2", 0))
	entry, err = c.Store().GetCacheEntry(ctx, "thumb:pinned")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, store.TierPersistent, entry.Tier)
}

func TestUpdateTierConfig(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, profile.TierLimits{MaxCount: 10})

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("doc:%d", i), "v", 0))
		time.Sleep(2 * time.Millisecond)
	}

	c.UpdateTierConfig(store.TierBounded, profile.TierLimits{MaxCount: 2})

	evicted, err := c.EnforceTier(ctx, store.TierBounded)
	require.NoError(t, err)
	assert.Equal(t, 3, evicted)

	stats, err := c.GetTierStatistics(ctx, store.TierBounded)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entries)
	assert.Equal(t, 2, stats.MaxCount)
}

func TestEnforceTierIgnoresPersistent(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, profile.TierLimits{})

	evicted, err := c.EnforceTier(ctx, store.TierPersistent)
	require.NoError(t, err)
	assert.Zero(t, evicted)
}
