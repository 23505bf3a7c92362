package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tiercache/internal/profile"
	"github.com/hrygo/tiercache/store"
	"github.com/hrygo/tiercache/store/db"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	p := &profile.Profile{Mode: "dev", Data: t.TempDir(), Driver: "sqlite"}
	require.NoError(t, p.Validate())

	driver, err := db.NewDBDriver(p)
	require.NoError(t, err)

	st := store.New(driver, p)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func newEntry(key string, tier store.Tier) *store.CacheEntry {
	now := time.Now().UnixMilli()
	return &store.CacheEntry{
		Key:            key,
		Value:          []byte("payload"),
		Kind:           store.ValueKindText,
		CreatedTs:      now,
		SizeBytes:      14,
		LastAccessedTs: now,
		Tier:           tier,
	}
}

func TestCacheEntryUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.UpsertCacheEntry(ctx, newEntry("files:one", store.TierBounded))
	require.NoError(t, err)

	got, err := st.GetCacheEntry(ctx, "files:one")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("payload"), got.Value)
	assert.Equal(t, store.ValueKindText, got.Kind)
	assert.Equal(t, store.TierBounded, got.Tier)
	assert.Nil(t, got.TTLMs)

	missing, err := st.GetCacheEntry(ctx, "files:other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCacheEntryOverwrite(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	entry := newEntry("files:one", store.TierBounded)
	_, err := st.UpsertCacheEntry(ctx, entry)
	require.NoError(t, err)

	entry.Value = []byte("updated")
	ttl := int64(60_000)
	entry.TTLMs = &ttl
	_, err = st.UpsertCacheEntry(ctx, entry)
	require.NoError(t, err)

	got, err := st.GetCacheEntry(ctx, "files:one")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("updated"), got.Value)
	require.NotNil(t, got.TTLMs)
	assert.Equal(t, int64(60_000), *got.TTLMs)

	count, err := st.CountCacheEntries(ctx, &store.FindCacheEntry{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestListCacheEntriesByTierAndPrefix(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for _, e := range []*store.CacheEntry{
		newEntry("files:a", store.TierBounded),
		newEntry("files:b", store.TierBounded),
		newEntry("metadata:a", store.TierPersistent),
	} {
		_, err := st.UpsertCacheEntry(ctx, e)
		require.NoError(t, err)
	}

	bounded := store.TierBounded
	list, err := st.ListCacheEntries(ctx, &store.FindCacheEntry{Tier: &bounded})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	prefix := "metadata:"
	list, err = st.ListCacheEntries(ctx, &store.FindCacheEntry{KeyPrefix: &prefix})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "metadata:a", list[0].Key)
}

func TestListCacheEntriesOrderByLastAccessed(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	old := newEntry("files:old", store.TierBounded)
	old.LastAccessedTs -= 10_000
	_, err := st.UpsertCacheEntry(ctx, old)
	require.NoError(t, err)
	_, err = st.UpsertCacheEntry(ctx, newEntry("files:new", store.TierBounded))
	require.NoError(t, err)

	list, err := st.ListCacheEntries(ctx, &store.FindCacheEntry{OrderByLastAccessedAsc: true})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "files:old", list[0].Key)

	require.NoError(t, st.TouchCacheEntry(ctx, "files:old", time.Now().UnixMilli()+1))

	list, err = st.ListCacheEntries(ctx, &store.FindCacheEntry{OrderByLastAccessedAsc: true})
	require.NoError(t, err)
	assert.Equal(t, "files:new", list[0].Key)
}

func TestDeleteExpiredCacheEntries(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	expired := newEntry("files:expired", store.TierBounded)
	ttl := int64(10)
	expired.TTLMs = &ttl
	expired.CreatedTs -= 1000
	_, err := st.UpsertCacheEntry(ctx, expired)
	require.NoError(t, err)

	_, err = st.UpsertCacheEntry(ctx, newEntry("files:live", store.TierBounded))
	require.NoError(t, err)

	deleted, err := st.DeleteExpiredCacheEntries(ctx, time.Now().UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err := st.GetCacheEntry(ctx, "files:live")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDeleteExpiredCacheEntriesSparesOverwrittenEntry(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	stale := newEntry("files:refetched", store.TierBounded)
	ttl := int64(10)
	stale.TTLMs = &ttl
	stale.CreatedTs -= 1000
	_, err := st.UpsertCacheEntry(ctx, stale)
	require.NoError(t, err)
	sweepCutoff := time.Now().UnixMilli()

	// A writer replaces the expired row before the sweep runs. The sweep
	// matches on the row's current created_ts/ttl_ms, so the fresh value
	// survives even though the key was expired at the cutoff.
	fresh := newEntry("files:refetched", store.TierBounded)
	freshTTL := int64(60_000)
	fresh.TTLMs = &freshTTL
	_, err = st.UpsertCacheEntry(ctx, fresh)
	require.NoError(t, err)

	deleted, err := st.DeleteExpiredCacheEntries(ctx, sweepCutoff)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	got, err := st.GetCacheEntry(ctx, "files:refetched")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestClearCacheEntriesByTier(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.UpsertCacheEntry(ctx, newEntry("files:a", store.TierBounded))
	require.NoError(t, err)
	_, err = st.UpsertCacheEntry(ctx, newEntry("metadata:a", store.TierPersistent))
	require.NoError(t, err)

	bounded := store.TierBounded
	cleared, err := st.ClearCacheEntries(ctx, &bounded)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	got, err := st.GetCacheEntry(ctx, "metadata:a")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSumCacheEntrySizes(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	total, err := st.SumCacheEntrySizes(ctx, &store.FindCacheEntry{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = st.UpsertCacheEntry(ctx, newEntry("files:a", store.TierBounded))
	require.NoError(t, err)
	_, err = st.UpsertCacheEntry(ctx, newEntry("files:b", store.TierBounded))
	require.NoError(t, err)

	total, err = st.SumCacheEntrySizes(ctx, &store.FindCacheEntry{})
	require.NoError(t, err)
	assert.Equal(t, int64(28), total)
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// A second migration pass against an initialized schema is a no-op.
	require.NoError(t, st.Migrate(ctx))

	setting, err := st.GetDriver().GetSystemSetting(ctx, store.SystemSettingSchemaVersion)
	require.NoError(t, err)
	require.NotNil(t, setting)
	assert.NotEmpty(t, setting.Value)
}
