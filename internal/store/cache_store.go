package store

import (
	"context"
	"time"
)

// CacheEntry is a content-addressed blob keyed by namespace, OS and a
// hash of the declared input file set. The payload of a stored entry is
// never mutated by a restore; only an explicit save overwrites it.
type CacheEntry struct {
	CacheKey   string
	Namespace  string
	Payload    []byte
	Size       int64
	CreatedOn  time.Time
	LastUsedOn time.Time
}

type CacheStore interface {
	// Restore tries an exact key match, then each restore-key prefix in
	// declared order, returning the most recently written match. A full
	// miss returns (nil, nil) -- never an error.
	Restore(context.Context, string, []string) (*CacheEntry, error)
	// Save writes unconditionally. Callers gate saves on a restore miss to
	// preserve immutability-on-hit.
	Save(context.Context, string, string, []byte) error
	// Prune drops least-recently-used entries until total payload size
	// fits the capacity. A pruned entry simply misses on the next restore.
	Prune(context.Context, int64) (int64, error)
}
