package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tiercache/cache"
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

func TestRunOnceSweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	c := cache.New(st)

	require.NoError(t, c.Set(ctx, "doc:expired", "v", 20*time.Millisecond))
	require.NoError(t, c.SetWithOptions(ctx, "metadata:expired", "v", 20*time.Millisecond, cache.SetOptions{}))
	require.NoError(t, c.Set(ctx, "doc:live", "v", time.Hour))
	require.NoError(t, c.Set(ctx, "doc:forever", "v", cache.TTLNone))

	time.Sleep(30 * time.Millisecond)
	NewRunner(st, time.Minute).RunOnce(ctx)

	count, err := st.CountCacheEntries(ctx, &store.FindCacheEntry{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// The sweep removes expired entries from both tiers.
	entry, err := st.GetCacheEntry(ctx, "metadata:expired")
	require.NoError(t, err)
	assert.Nil(t, entry)

	assert.True(t, c.Has(ctx, "doc:live"))
	assert.True(t, c.Has(ctx, "doc:forever"))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewRunner(st, 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
