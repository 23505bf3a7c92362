package store

import "time"

// Tier is the retention class of a cache entry.
type Tier string

const (
	// TierPersistent entries are never removed by capacity enforcement.
	TierPersistent Tier = "persistent"
	// TierBounded entries are subject to count and size ceilings with LRU eviction.
	TierBounded Tier = "bounded"
)

// ValueKind describes the shape of a stored payload. It drives both
// serialization and size estimation.
type ValueKind string

const (
	ValueKindText       ValueKind = "text"
	ValueKindBinary     ValueKind = "binary"
	ValueKindStructured ValueKind = "structured"
)

// CacheEntry is a single row of the entry table.
type CacheEntry struct {
	Key            string
	Value          []byte
	Kind           ValueKind
	CreatedTs      int64 // unix milliseconds
	TTLMs          *int64
	SizeBytes      int64
	LastAccessedTs int64 // unix milliseconds, drives LRU ordering
	Tier           Tier
	ContentHash    *string
	SourceLocator  *string
}

// IsExpired reports whether the entry's TTL has elapsed at the given time.
// Entries without a TTL never expire.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	if e.TTLMs == nil {
		return false
	}
	return now.UnixMilli() >= e.CreatedTs+*e.TTLMs
}

// Freshable reports whether the entry participates in freshness polling.
// Content hash and source locator are set together or not at all.
func (e *CacheEntry) Freshable() bool {
	return e.ContentHash != nil && e.SourceLocator != nil
}

// FindCacheEntry is the query filter for entry lookups and scans.
type FindCacheEntry struct {
	Key              *string
	KeyPrefix        *string
	Tier             *Tier
	HasSourceLocator *bool
	// ExpiredBefore matches entries whose TTL elapsed at or before the given
	// unix-millisecond timestamp. Entries without a TTL never match.
	ExpiredBefore *int64
	// OrderByLastAccessedAsc scans oldest-unused-first for eviction passes.
	OrderByLastAccessedAsc bool
	Limit                  *int
	Offset                 *int
}

// DeleteCacheEntry identifies a single entry to remove.
type DeleteCacheEntry struct {
	Key string
}

// SystemSetting is a name/value row used for engine bookkeeping such as the
// schema version.
type SystemSetting struct {
	Name  string
	Value string
}

// SystemSettingSchemaVersion is the setting name holding the schema version.
const SystemSettingSchemaVersion = "schema_version"
