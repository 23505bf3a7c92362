package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/hrygo/tiercache/internal/profile"
	"github.com/hrygo/tiercache/store"
)

// persistentKeyTokens mark keys that default to the persistent tier when no
// tier was requested explicitly.
var persistentKeyTokens = []string{"persistent", "metadata", "config", "index"}

// tierForKey picks the default tier for a key.
func tierForKey(key string) store.Tier {
	lower := strings.ToLower(key)
	for _, token := range persistentKeyTokens {
		if strings.Contains(lower, token) {
			return store.TierPersistent
		}
	}
	return store.TierBounded
}

// tierConfig holds the per-tier limits, shared across namespace views and
// updatable at runtime.
type tierConfig struct {
	mu         sync.RWMutex
	bounded    profile.TierLimits
	persistent profile.TierLimits
}

func (tc *tierConfig) limits(tier store.Tier) profile.TierLimits {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	if tier == store.TierPersistent {
		return tc.persistent
	}
	return tc.bounded
}

func (tc *tierConfig) update(tier store.Tier, limits profile.TierLimits) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tier == store.TierPersistent {
		tc.persistent = limits
	} else {
		tc.bounded = limits
	}
}

// TierStatistics describes the current occupancy of one tier against its
// limits.
type TierStatistics struct {
	Tier      store.Tier `json:"tier"`
	Entries   int64      `json:"entries"`
	SizeBytes int64      `json:"sizeBytes"`
	MaxCount  int        `json:"maxCount"`
	MaxSizeMB int        `json:"maxSizeMB"`
}

// GetTierStatistics returns occupancy and limits for a tier.
func (c *Cache) GetTierStatistics(ctx context.Context, tier store.Tier) (*TierStatistics, error) {
	find := &store.FindCacheEntry{Tier: &tier}
	count, err := c.store.CountCacheEntries(ctx, find)
	if err != nil {
		return nil, err
	}
	size, err := c.store.SumCacheEntrySizes(ctx, find)
	if err != nil {
		return nil, err
	}
	limits := c.config.limits(tier)
	return &TierStatistics{
		Tier:      tier,
		Entries:   count,
		SizeBytes: size,
		MaxCount:  limits.MaxCount,
		MaxSizeMB: limits.MaxSizeMB,
	}, nil
}

// UpdateTierConfig replaces the limits of a tier. The new ceilings are
// applied on the next enforcement pass.
func (c *Cache) UpdateTierConfig(tier store.Tier, limits profile.TierLimits) {
	c.config.update(tier, limits)
}

// EnforceTier applies the capacity limits of a tier, evicting
// least-recently-used entries until both the count and size ceilings hold.
// The persistent tier is never enforced. Returns the number of evictions.
func (c *Cache) EnforceTier(ctx context.Context, tier store.Tier) (int, error) {
	if tier != store.TierBounded {
		return 0, nil
	}
	limits := c.config.limits(tier)

	entries, err := c.store.ListCacheEntries(ctx, &store.FindCacheEntry{
		Tier:                   &tier,
		OrderByLastAccessedAsc: true,
	})
	if err != nil {
		return 0, err
	}

	var victims []string

	// Count ceiling first: drop the oldest overflow.
	if limits.MaxCount > 0 && len(entries) > limits.MaxCount {
		overflow := len(entries) - limits.MaxCount
		for _, entry := range entries[:overflow] {
			victims = append(victims, entry.Key)
		}
		entries = entries[overflow:]
	}

	// Then the size ceiling over the already-trimmed set.
	if limits.MaxSizeMB > 0 {
		budget := int64(limits.MaxSizeMB) * 1024 * 1024
		var total int64
		for _, entry := range entries {
			total += entry.SizeBytes
		}
		for len(entries) > 0 && total > budget {
			oldest := entries[0]
			victims = append(victims, oldest.Key)
			total -= oldest.SizeBytes
			entries = entries[1:]
		}
	}

	if len(victims) == 0 {
		return 0, nil
	}
	evicted, err := c.store.DeleteCacheEntries(ctx, victims)
	if err != nil {
		return 0, err
	}
	c.counters.evictions.Add(evicted)
	return int(evicted), nil
}
