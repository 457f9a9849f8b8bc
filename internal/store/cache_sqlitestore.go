package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/haatos/securegate/internal"
)

type CacheSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewCacheSQLiteStore(rdb, rwdb *sql.DB) *CacheSQLiteStore {
	return &CacheSQLiteStore{rdb, rwdb}
}

func (store *CacheSQLiteStore) Restore(
	ctx context.Context,
	key string,
	restoreKeys []string,
) (*CacheEntry, error) {
	entry := new(CacheEntry)
	query := `select * from cache_entries where cache_key = $1`
	err := sqlscan.Get(ctx, store.rdb, entry, query, key)
	if err == nil {
		return entry, store.touch(ctx, entry.CacheKey)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	prefixQuery := `select * from cache_entries
	where cache_key like $1 || '%'
	order by created_on desc, cache_key desc
	limit 1`
	for _, prefix := range restoreKeys {
		entry = new(CacheEntry)
		err := sqlscan.Get(ctx, store.rdb, entry, prefixQuery, prefix)
		if err == nil {
			return entry, store.touch(ctx, entry.CacheKey)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	return nil, nil
}

func (store *CacheSQLiteStore) touch(ctx context.Context, key string) error {
	query := `update cache_entries set last_used_on = $1 where cache_key = $2`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		time.Now().UTC().Format(internal.DBTimestampLayout),
		key,
	)
	return err
}

func (store *CacheSQLiteStore) Save(
	ctx context.Context,
	key, namespace string,
	payload []byte,
) error {
	query := `insert into cache_entries (
		cache_key,
		namespace,
		payload,
		size
	)
	values ($1, $2, $3, $4)
	on conflict (cache_key) do update set
		payload = excluded.payload,
		size = excluded.size,
		created_on = current_timestamp,
		last_used_on = current_timestamp`
	_, err := store.rwdb.ExecContext(ctx, query, key, namespace, payload, int64(len(payload)))
	return err
}

func (store *CacheSQLiteStore) Prune(ctx context.Context, capacityBytes int64) (int64, error) {
	var pruned int64
	for {
		var total int64
		query := `select coalesce(sum(size), 0) from cache_entries`
		if err := sqlscan.Get(ctx, store.rdb, &total, query); err != nil {
			return pruned, err
		}
		if total <= capacityBytes {
			return pruned, nil
		}

		deleteQuery := `delete from cache_entries
		where cache_key = (
			select cache_key from cache_entries
			order by last_used_on asc, created_on asc
			limit 1
		)`
		res, err := store.rwdb.ExecContext(ctx, deleteQuery)
		if err != nil {
			return pruned, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return pruned, err
		}
		if n == 0 {
			return pruned, nil
		}
		pruned += n
	}
}
