// Package cache defines the external relational metadata cache
// collaborator spec.md §1 and §6.3 name (the files/hashes/mylist_cache/
// sync_queue tables) as a repository interface — not a concrete
// database. internal/sync and identification consume it without
// knowing whether it is backed by SQLite, Postgres, or an in-memory
// fake; no driver is wired here (see DESIGN.md / SPEC_FULL.md's
// dropped-dependency list for why bbolt/go-cache are not pulled in).
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/anidbgo/anidbclient/internal/sync/syncentry"
)

// ErrMiss is returned by FileCache.Get when no row matches.
var ErrMiss = errors.New("cache: miss")

// FileRecord is one row of the "files"/"hashes" tables joined into the
// shape identification.Service needs for a cache hit (spec.md §3
// "Identification Result" / §6.3).
type FileRecord struct {
	FID, AID, EID, GID uint64
	Size               uint64
	ED2K               string
	CachedAt           time.Time
}

// FileCache is the read/write surface identification.Service uses for
// its cache-first lookup path (spec.md §4.9, §8 "DataSource Cache(age)").
type FileCache interface {
	// Get looks up a previously cached identification by (ed2k, size).
	// Returns ErrMiss if absent.
	Get(ctx context.Context, ed2k string, size uint64) (FileRecord, error)
	Put(ctx context.Context, rec FileRecord) error
}

// SyncQueueRepository is the sync_queue table's query surface spec.md
// §6.3 names explicitly: "find_ready(limit), find_retriable(limit),
// update_status(id, status, error?), batch_retry(ids, delay)".
type SyncQueueRepository interface {
	Enqueue(ctx context.Context, entry syncentry.Entry) (syncentry.Entry, error)
	// FindReady returns up to limit entries with scheduled_at <= now
	// and retry_count < max_retries, ordered by priority then
	// scheduled_at (spec.md §3 "Sync Queue Entry").
	FindReady(ctx context.Context, limit int) ([]syncentry.Entry, error)
	// FindRetriable returns up to limit Failed entries whose
	// retry_count is still below max_retries (i.e. scheduled for
	// automatic reconsideration, as distinct from dead-lettered ones).
	FindRetriable(ctx context.Context, limit int) ([]syncentry.Entry, error)
	UpdateStatus(ctx context.Context, id string, status syncentry.Status, errMsg string) error
	BatchRetry(ctx context.Context, ids []string, delay time.Duration) error
}
