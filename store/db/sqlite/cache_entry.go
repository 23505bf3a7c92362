package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/tiercache/store"
)

func (d *DB) UpsertCacheEntry(ctx context.Context, upsert *store.CacheEntry) (*store.CacheEntry, error) {
	stmt := `
		INSERT INTO cache_entry (
			key, value, value_kind, created_ts, ttl_ms, size_bytes,
			last_accessed_ts, tier, content_hash, source_locator
		)
		VALUES (` + placeholders(10) + `)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			value_kind = excluded.value_kind,
			created_ts = excluded.created_ts,
			ttl_ms = excluded.ttl_ms,
			size_bytes = excluded.size_bytes,
			last_accessed_ts = excluded.last_accessed_ts,
			tier = excluded.tier,
			content_hash = excluded.content_hash,
			source_locator = excluded.source_locator`

	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.Key, upsert.Value, upsert.Kind, upsert.CreatedTs, upsert.TTLMs, upsert.SizeBytes,
		upsert.LastAccessedTs, upsert.Tier, upsert.ContentHash, upsert.SourceLocator,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return upsert, nil
}

func buildFindClauses(find *store.FindCacheEntry) ([]string, []any) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.Key; v != nil {
		where, args = append(where, "cache_entry.key = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.KeyPrefix; v != nil {
		where, args = append(where, `cache_entry.key LIKE `+placeholder(len(args)+1)+` ESCAPE '\'`), append(args, escapeLike(*v)+"%")
	}
	if v := find.Tier; v != nil {
		where, args = append(where, "cache_entry.tier = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.HasSourceLocator; v != nil {
		if *v {
			where = append(where, "cache_entry.source_locator IS NOT NULL")
		} else {
			where = append(where, "cache_entry.source_locator IS NULL")
		}
	}
	if v := find.ExpiredBefore; v != nil {
		where, args = append(where, "cache_entry.ttl_ms IS NOT NULL AND cache_entry.created_ts + cache_entry.ttl_ms <= "+placeholder(len(args)+1)), append(args, *v)
	}

	return where, args
}

func (d *DB) ListCacheEntries(ctx context.Context, find *store.FindCacheEntry) ([]*store.CacheEntry, error) {
	where, args := buildFindClauses(find)

	orderBy := "ORDER BY cache_entry.key ASC"
	if find.OrderByLastAccessedAsc {
		orderBy = "ORDER BY cache_entry.last_accessed_ts ASC, cache_entry.key ASC"
	}

	query := `
		SELECT
			key, value, value_kind, created_ts, ttl_ms, size_bytes,
			last_accessed_ts, tier, content_hash, source_locator
		FROM cache_entry
		WHERE ` + strings.Join(where, " AND ") + ` ` + orderBy

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
		if find.Offset != nil {
			query = fmt.Sprintf("%s OFFSET %d", query, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	list := make([]*store.CacheEntry, 0)
	for rows.Next() {
		var entry store.CacheEntry
		var ttlMs sql.NullInt64
		var contentHash, sourceLocator sql.NullString

		if err := rows.Scan(
			&entry.Key,
			&entry.Value,
			&entry.Kind,
			&entry.CreatedTs,
			&ttlMs,
			&entry.SizeBytes,
			&entry.LastAccessedTs,
			&entry.Tier,
			&contentHash,
			&sourceLocator,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}

		if ttlMs.Valid {
			entry.TTLMs = &ttlMs.Int64
		}
		if contentHash.Valid {
			entry.ContentHash = &contentHash.String
		}
		if sourceLocator.Valid {
			entry.SourceLocator = &sourceLocator.String
		}
		list = append(list, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache entries: %w", err)
	}

	return list, nil
}

func (d *DB) DeleteCacheEntry(ctx context.Context, delete *store.DeleteCacheEntry) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM cache_entry WHERE key = ?", delete.Key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (d *DB) DeleteCacheEntries(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(keys))
	for _, key := range keys {
		args = append(args, key)
	}
	result, err := d.db.ExecContext(ctx,
		"DELETE FROM cache_entry WHERE key IN ("+placeholders(len(keys))+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	return result.RowsAffected()
}

func (d *DB) CountCacheEntries(ctx context.Context, find *store.FindCacheEntry) (int64, error) {
	where, args := buildFindClauses(find)

	var count int64
	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cache_entry WHERE "+strings.Join(where, " AND "), args...,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}

func (d *DB) SumCacheEntrySizes(ctx context.Context, find *store.FindCacheEntry) (int64, error) {
	where, args := buildFindClauses(find)

	var total sql.NullInt64
	if err := d.db.QueryRowContext(ctx,
		"SELECT SUM(size_bytes) FROM cache_entry WHERE "+strings.Join(where, " AND "), args...,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum cache entry sizes: %w", err)
	}
	return total.Int64, nil
}

func (d *DB) TouchCacheEntry(ctx context.Context, key string, accessedTs int64) error {
	if _, err := d.db.ExecContext(ctx,
		"UPDATE cache_entry SET last_accessed_ts = ? WHERE key = ?", accessedTs, key,
	); err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

func (d *DB) DeleteExpiredCacheEntries(ctx context.Context, nowMs int64) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		"DELETE FROM cache_entry WHERE ttl_ms IS NOT NULL AND created_ts + ttl_ms <= ?", nowMs)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return result.RowsAffected()
}

func (d *DB) ClearCacheEntries(ctx context.Context, tier *store.Tier) (int64, error) {
	stmt, args := "DELETE FROM cache_entry", []any{}
	if tier != nil {
		stmt, args = stmt+" WHERE tier = ?", append(args, *tier)
	}
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache entries: %w", err)
	}
	return result.RowsAffected()
}
