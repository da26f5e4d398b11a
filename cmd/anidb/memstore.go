package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anidbgo/anidbclient/cache"
	"github.com/anidbgo/anidbclient/internal/sync/syncentry"
)

// memFileCache is a process-lifetime stand-in for the relational file
// cache spec §6.3 leaves to an external collaborator. A persistent
// deployment plugs in its own cache.FileCache backed by sqlite/postgres
// instead of this one.
type memFileCache struct {
	mu      sync.Mutex
	records map[string]cache.FileRecord
}

func newMemFileCache() *memFileCache {
	return &memFileCache{records: make(map[string]cache.FileRecord)}
}

func fileCacheKey(ed2k string, size uint64) string {
	return fmt.Sprintf("%s:%d", ed2k, size)
}

func (m *memFileCache) Get(ctx context.Context, ed2k string, size uint64) (cache.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[fileCacheKey(ed2k, size)]
	if !ok {
		return cache.FileRecord{}, cache.ErrMiss
	}
	return rec, nil
}

func (m *memFileCache) Put(ctx context.Context, rec cache.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[fileCacheKey(rec.ED2K, rec.Size)] = rec
	return nil
}

// memSyncQueue is a process-lifetime stand-in for the persistent
// sync_queue table spec §6.3 leaves to an external collaborator. It
// implements cache.SyncQueueRepository well enough to drive the sync
// engine end to end for a standalone CLI run.
type memSyncQueue struct {
	mu      sync.Mutex
	entries map[string]syncentry.Entry
	seq     int
}

func newMemSyncQueue() *memSyncQueue {
	return &memSyncQueue{entries: make(map[string]syncentry.Entry)}
}

func (q *memSyncQueue) Enqueue(ctx context.Context, entry syncentry.Entry) (syncentry.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("sq-%d", q.seq)
	}
	if entry.MaxRetries == 0 {
		entry.MaxRetries = 5
	}
	if entry.ScheduledAt.IsZero() {
		entry.ScheduledAt = time.Now()
	}
	entry.Status = syncentry.StatusPending
	q.entries[entry.ID] = entry
	return entry, nil
}

func (q *memSyncQueue) FindReady(ctx context.Context, limit int) ([]syncentry.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var ready []syncentry.Entry
	for _, e := range q.entries {
		if e.Status == syncentry.StatusPending && e.Ready(now) {
			ready = append(ready, e)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].ScheduledAt.Before(ready[j].ScheduledAt)
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	return ready, nil
}

func (q *memSyncQueue) FindRetriable(ctx context.Context, limit int) ([]syncentry.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []syncentry.Entry
	for _, e := range q.entries {
		if e.Status == syncentry.StatusFailed && e.RetryCount < e.MaxRetries {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (q *memSyncQueue) UpdateStatus(ctx context.Context, id string, status syncentry.Status, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return fmt.Errorf("anidb: sync queue entry %s not found", id)
	}
	e.Status = status
	e.ErrorMessage = errMsg
	q.entries[id] = e
	return nil
}

func (q *memSyncQueue) BatchRetry(ctx context.Context, ids []string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		e, ok := q.entries[id]
		if !ok {
			continue
		}
		e.RetryCount++
		e.Status = syncentry.StatusPending
		e.ScheduledAt = time.Now().Add(delay)
		q.entries[id] = e
	}
	return nil
}
