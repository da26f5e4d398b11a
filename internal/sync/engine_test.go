package sync

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/anidbgo/anidbclient/internal/sync/syncentry"
	"github.com/anidbgo/anidbclient/protocol/codec"
	"github.com/anidbgo/anidbclient/protocol/query"
	"github.com/anidbgo/anidbclient/protocol/transport"
	"github.com/stretchr/testify/require"
)

// fakeSender answers AUTH with a canned session and every other
// command with whatever respond returns, letting tests drive
// QueryManager.SendAuthenticated without a real socket round trip.
type fakeSender struct {
	respond func(cmd *codec.Command) codec.Response
}

func (f *fakeSender) Send(ctx context.Context, cmd *codec.Command) (codec.Response, error) {
	if cmd.Name == "AUTH" {
		return codec.Response{Code: 200, Message: "LOGIN ACCEPTED", Fields: []string{"sess123"}}, nil
	}
	return f.respond(cmd), nil
}

func paramValue(cmd *codec.Command, key string) string {
	for _, p := range cmd.Params {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

func newTestQueryManager(t *testing.T, maxRetries int, respond func(cmd *codec.Command) codec.Response) *query.QueryManager {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:9997")
	require.NoError(t, err)
	tr, err := transport.Dial(transport.Config{ServerAddr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	conn := transport.NewConnection(tr)
	require.NoError(t, conn.Connect())

	sender := &fakeSender{respond: respond}
	return query.New(conn, sender, query.Credentials{Username: "u", Password: "p", ClientName: "c", ClientVersion: 1}, maxRetries)
}

// memRepo is a minimal in-memory cache.SyncQueueRepository for engine tests.
type memRepo struct {
	mu      sync.Mutex
	entries map[string]syncentry.Entry
}

func newMemRepo(entries ...syncentry.Entry) *memRepo {
	m := &memRepo{entries: make(map[string]syncentry.Entry)}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return m
}

func (m *memRepo) Enqueue(ctx context.Context, entry syncentry.Entry) (syncentry.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	return entry, nil
}

func (m *memRepo) FindReady(ctx context.Context, limit int) ([]syncentry.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []syncentry.Entry
	for _, e := range m.entries {
		if e.Status == syncentry.StatusPending && e.Ready(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepo) FindRetriable(ctx context.Context, limit int) ([]syncentry.Entry, error) {
	return m.FindReady(ctx, limit)
}

func (m *memRepo) UpdateStatus(ctx context.Context, id string, status syncentry.Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.Status = status
	e.ErrorMessage = errMsg
	m.entries[id] = e
	return nil
}

func (m *memRepo) BatchRetry(ctx context.Context, ids []string, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		e := m.entries[id]
		e.RetryCount++
		e.Status = syncentry.StatusPending
		e.ScheduledAt = time.Now().Add(delay)
		m.entries[id] = e
	}
	return nil
}

func (m *memRepo) get(id string) syncentry.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id]
}

func TestEngineProcessOnceCompletesAdd(t *testing.T) {
	qm := newTestQueryManager(t, 3, func(cmd *codec.Command) codec.Response {
		require.Equal(t, "MYLISTADD", cmd.Name)
		return codec.Response{Code: 210, Message: "MYLIST ENTRY ADDED", Fields: []string{"999"}}
	})
	repo := newMemRepo(syncentry.Entry{
		ID: "e1", FileID: 312498, Operation: syncentry.OpAdd, MaxRetries: 3,
		ScheduledAt: time.Now().Add(-time.Second),
	})

	engine := New(repo, qm, Config{Limit: 10, BaseDelay: time.Millisecond})
	summary, err := engine.ProcessOnce(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, syncentry.StatusCompleted, repo.get("e1").Status)
}

func TestEngineProcessOnceCompletesDelete(t *testing.T) {
	qm := newTestQueryManager(t, 3, func(cmd *codec.Command) codec.Response {
		require.Equal(t, "MYLISTDEL", cmd.Name)
		return codec.Response{Code: 211, Message: "MYLIST ENTRY DELETED"}
	})
	repo := newMemRepo(syncentry.Entry{
		ID: "e1", LID: 42, Operation: syncentry.OpDelete, MaxRetries: 3,
		ScheduledAt: time.Now().Add(-time.Second),
	})

	engine := New(repo, qm, Config{Limit: 10, BaseDelay: time.Millisecond})
	summary, err := engine.ProcessOnce(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Completed)
	require.Equal(t, syncentry.StatusCompleted, repo.get("e1").Status)
}

func TestEngineProcessOnceReschedulesTransientFailure(t *testing.T) {
	qm := newTestQueryManager(t, 1, func(cmd *codec.Command) codec.Response {
		return codec.Response{Code: 602, Message: "SERVER BUSY"}
	})
	repo := newMemRepo(syncentry.Entry{
		ID: "e1", FileID: 1, Operation: syncentry.OpAdd, MaxRetries: 3,
		ScheduledAt: time.Now().Add(-time.Second),
	})

	engine := New(repo, qm, Config{Limit: 10, BaseDelay: time.Millisecond})
	summary, err := engine.ProcessOnce(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Retried)
	require.Equal(t, 0, summary.DeadLettered)
	got := repo.get("e1")
	require.Equal(t, syncentry.StatusPending, got.Status)
	require.Equal(t, 1, got.RetryCount)
}

func TestEngineProcessOnceDeadLettersOnExhaustedRetries(t *testing.T) {
	qm := newTestQueryManager(t, 1, func(cmd *codec.Command) codec.Response {
		return codec.Response{Code: 602, Message: "SERVER BUSY"}
	})
	repo := newMemRepo(syncentry.Entry{
		ID: "e1", FileID: 1, Operation: syncentry.OpAdd, MaxRetries: 2, RetryCount: 1,
		ScheduledAt: time.Now().Add(-time.Second),
	})

	engine := New(repo, qm, Config{Limit: 10, BaseDelay: time.Millisecond})
	summary, err := engine.ProcessOnce(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.DeadLettered)
	require.Equal(t, syncentry.StatusFailed, repo.get("e1").Status)
}

func TestEngineProcessOnceOrdersByPriorityThenSchedule(t *testing.T) {
	var mu sync.Mutex
	var order []string
	qm := newTestQueryManager(t, 3, func(cmd *codec.Command) codec.Response {
		mu.Lock()
		order = append(order, paramValue(cmd, "fid"))
		mu.Unlock()
		return codec.Response{Code: 210, Message: "OK", Fields: []string{"1"}}
	})
	now := time.Now().Add(-time.Minute)
	repo := newMemRepo(
		syncentry.Entry{ID: "low", FileID: 1, Operation: syncentry.OpAdd, MaxRetries: 3, Priority: 0, ScheduledAt: now},
		syncentry.Entry{ID: "high", FileID: 2, Operation: syncentry.OpAdd, MaxRetries: 3, Priority: 5, ScheduledAt: now.Add(time.Second)},
	)
	engine := New(repo, qm, Config{Limit: 10, BaseDelay: time.Millisecond})

	summary, err := engine.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Completed)
	require.Equal(t, []string{"2", "1"}, order)
}
