// Package manager owns the cache facade, its background runners, and the
// registry of cached service wrappers.
package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/tiercache/cache"
	"github.com/hrygo/tiercache/cache/proxy"
	"github.com/hrygo/tiercache/internal/profile"
	"github.com/hrygo/tiercache/runner/cleanup"
	"github.com/hrygo/tiercache/runner/freshness"
	"github.com/hrygo/tiercache/store"
	"github.com/hrygo/tiercache/store/db"
)

// ClearPersistentConfirmation is the phrase callers must supply before the
// persistent tier is wiped.
const ClearPersistentConfirmation = "confirm-clear-persistent"

type registration struct {
	target  proxy.Service
	wrapped *proxy.CachedService
}

// Manager is the explicit context object applications create at startup and
// hand to every component that needs caching. Lifecycle is explicit:
// New opens the store, Close stops the runners and closes it.
type Manager struct {
	profile *profile.Profile
	store   *store.Store
	cache   *cache.Cache

	mu       sync.Mutex
	services map[string]*registration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
}

// New opens the entry store, migrates the schema, and starts the configured
// background runners. A store that fails to open is fatal.
func New(ctx context.Context, p *profile.Profile) (*Manager, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize cache store")
	}
	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, errors.Wrap(err, "failed to migrate cache store")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		profile:  p,
		store:    st,
		cache:    cache.New(st),
		services: make(map[string]*registration),
		ctx:      runCtx,
		cancel:   cancel,
	}

	if p.CleanupEnabled {
		runner := cleanup.NewRunner(st, p.CleanupInterval)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			runner.Run(runCtx)
		}()
	}
	if p.PollingEnabled {
		m.EnablePolling(p.BaseLocator)
	}

	return m, nil
}

// Cache returns the root cache facade.
func (m *Manager) Cache() *cache.Cache {
	return m.cache
}

// Store returns the underlying entry store.
func (m *Manager) Store() *store.Store {
	return m.store
}

// CreateCachedService builds (or returns the memoized) caching wrapper for a
// service under a namespace. Re-registering the same namespace with a
// different target instance rebuilds the wrapper.
func (m *Manager) CreateCachedService(target proxy.Service, namespace string, config proxy.Config) (*proxy.CachedService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reg, ok := m.services[namespace]; ok && reg.target == target {
		return reg.wrapped, nil
	}

	wrapped, err := proxy.Wrap(target, m.cache.Namespace(namespace), config)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to wrap service %q", namespace)
	}
	m.services[namespace] = &registration{target: target, wrapped: wrapped}
	return wrapped, nil
}

// ClearLRU wipes the bounded tier.
func (m *Manager) ClearLRU(ctx context.Context) (int64, error) {
	tier := store.TierBounded
	return m.store.ClearCacheEntries(ctx, &tier)
}

// ClearTier wipes one tier. The persistent tier is refused here; use
// ClearPersistent with its confirmation phrase.
func (m *Manager) ClearTier(ctx context.Context, tier store.Tier) (int64, error) {
	if tier == store.TierPersistent {
		return 0, errors.New("refusing to clear persistent tier without confirmation, use ClearPersistent")
	}
	return m.store.ClearCacheEntries(ctx, &tier)
}

// ClearPersistent wipes the never-auto-evicted tier. The caller must pass
// ClearPersistentConfirmation to prove the destruction is intended.
func (m *Manager) ClearPersistent(ctx context.Context, confirmation string) (int64, error) {
	if confirmation != ClearPersistentConfirmation {
		return 0, errors.Errorf("persistent tier not cleared: confirmation %q does not match", confirmation)
	}
	tier := store.TierPersistent
	return m.store.ClearCacheEntries(ctx, &tier)
}

// GetExpiredPersistentEntries lists persistent-tier entries whose explicit
// TTL elapsed but which were not yet removed.
func (m *Manager) GetExpiredPersistentEntries(ctx context.Context) ([]*store.CacheEntry, error) {
	tier := store.TierPersistent
	now := time.Now().UnixMilli()
	return m.store.ListCacheEntries(ctx, &store.FindCacheEntry{Tier: &tier, ExpiredBefore: &now})
}

// ForceCleanupExpiredPersistent removes those expired persistent entries.
func (m *Manager) ForceCleanupExpiredPersistent(ctx context.Context) (int64, error) {
	expired, err := m.GetExpiredPersistentEntries(ctx)
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(expired))
	for _, entry := range expired {
		keys = append(keys, entry.Key)
	}
	return m.store.DeleteCacheEntries(ctx, keys)
}

// GetTierStatistics returns occupancy and limits for a tier.
func (m *Manager) GetTierStatistics(ctx context.Context, tier store.Tier) (*cache.TierStatistics, error) {
	return m.cache.GetTierStatistics(ctx, tier)
}

// UpdateTierConfig replaces the limits of a tier at runtime.
func (m *Manager) UpdateTierConfig(tier store.Tier, limits profile.TierLimits) {
	m.cache.UpdateTierConfig(tier, limits)
}

// EnablePolling starts the freshness runner with the given base locator. A
// second call while polling is active is a no-op.
func (m *Manager) EnablePolling(baseLocator string) {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()
	if m.pollCancel != nil {
		return
	}

	runner := freshness.NewRunner(m.cache, freshness.NewLocatorFetcher(baseLocator), m.profile.PollingInterval)
	pollCtx, cancel := context.WithCancel(m.ctx)
	m.pollCancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		runner.Run(pollCtx)
	}()
	slog.Info("freshness polling enabled", "interval", m.profile.PollingInterval, "baseLocator", baseLocator)
}

// DisablePolling stops the freshness runner.
func (m *Manager) DisablePolling() {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()
	if m.pollCancel != nil {
		m.pollCancel()
		m.pollCancel = nil
		slog.Info("freshness polling disabled")
	}
}

// CheckForUpdates runs a single on-demand freshness pass.
func (m *Manager) CheckForUpdates(ctx context.Context) error {
	runner := freshness.NewRunner(m.cache, freshness.NewLocatorFetcher(m.profile.BaseLocator), m.profile.PollingInterval)
	return runner.PollOnce(ctx)
}

// Warmup pre-populates entries for a known hot set by invoking one cached
// operation once per argument list.
func (m *Manager) Warmup(ctx context.Context, svc *proxy.CachedService, operation string, argsList [][]any) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, args := range argsList {
		args := args
		g.Go(func() error {
			_, err := svc.Call(ctx, operation, args...)
			return err
		})
	}
	return g.Wait()
}

// HealthCheck round-trips a probe entry through the facade.
func (m *Manager) HealthCheck(ctx context.Context) error {
	key := "health:" + shortuuid.New()
	value := shortuuid.New()

	if err := m.cache.Set(ctx, key, value, time.Minute); err != nil {
		return errors.Wrap(err, "health check write failed")
	}
	got, ok := m.cache.Get(ctx, key)
	if !ok {
		return errors.New("health check probe missing after write")
	}
	if got != value {
		return errors.Errorf("health check probe mismatch: got %v", got)
	}
	return m.cache.Delete(ctx, key)
}

// Close stops the runners and closes the store.
func (m *Manager) Close() error {
	m.DisablePolling()
	m.cancel()
	m.wg.Wait()
	return m.store.Close()
}
