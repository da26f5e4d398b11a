package identification

import (
	"context"
	"testing"
	"time"

	"github.com/anidbgo/anidbclient/cache"
	"github.com/anidbgo/anidbclient/credential"
	"github.com/anidbgo/anidbclient/internal/strategy"
	"github.com/anidbgo/anidbclient/protocol/codec"
	"github.com/anidbgo/anidbclient/protocol/perr"
	"github.com/anidbgo/anidbclient/protocol/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	resp codec.Response
	err  error
}

func (f *fakeSender) SendAuthenticated(ctx context.Context, build query.Builder) (codec.Response, error) {
	return f.resp, f.err
}

type fakeCreds struct{ accounts []string }

func (f *fakeCreds) Store(ctx context.Context, cred credential.Credential) error { return nil }
func (f *fakeCreds) Retrieve(ctx context.Context, service, account string) (credential.Credential, error) {
	return credential.Credential{}, credential.ErrNotFound
}
func (f *fakeCreds) ListAccounts(ctx context.Context, service string) ([]string, error) {
	return f.accounts, nil
}
func (f *fakeCreds) Delete(ctx context.Context, service, account string) error { return nil }

type fakeFileCache struct {
	records map[string]cache.FileRecord
	puts    int
}

func newFakeFileCache() *fakeFileCache {
	return &fakeFileCache{records: make(map[string]cache.FileRecord)}
}

func (f *fakeFileCache) Get(ctx context.Context, ed2k string, size uint64) (cache.FileRecord, error) {
	rec, ok := f.records[ed2k]
	if !ok {
		return cache.FileRecord{}, cache.ErrMiss
	}
	return rec, nil
}

func (f *fakeFileCache) Put(ctx context.Context, rec cache.FileRecord) error {
	f.puts++
	f.records[rec.ED2K] = rec
	return nil
}

type fakeOfflineQueue struct {
	enqueued []Request
}

func (f *fakeOfflineQueue) Enqueue(ctx context.Context, req Request) error {
	f.enqueued = append(f.enqueued, req)
	return nil
}

func TestIdentifyHashSuccess(t *testing.T) {
	sender := &fakeSender{resp: codec.Response{Code: 220, Message: "FILE", Fields: []string{
		"312498", "4896", "69260", "41", "1", "233647104", "abc123",
	}}}
	fileCache := newFakeFileCache()
	svc := New(strategy.NewSelector(), sender, &fakeCreds{accounts: []string{"acct"}}, fileCache, nil, DefaultServiceConfig())

	res, err := svc.IdentifyHash(context.Background(), "abc123", 233647104, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusIdentified, res.Status)
	require.NotNil(t, res.File)
	assert.Equal(t, uint64(312498), res.File.FID)
	assert.Equal(t, DataSourceNetwork, res.Source.Kind)
	assert.Equal(t, 1, fileCache.puts)
}

func TestIdentifyHashNotFound(t *testing.T) {
	sender := &fakeSender{resp: codec.Response{Code: 320, Message: "NO SUCH FILE"}}
	svc := New(strategy.NewSelector(), sender, &fakeCreds{accounts: []string{"acct"}}, nil, nil, DefaultServiceConfig())

	res, err := svc.IdentifyHash(context.Background(), "abc123", 100, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestIdentifyRequiresCredentialsWhenStoreConfigured(t *testing.T) {
	sender := &fakeSender{resp: codec.Response{Code: 220}}
	svc := New(strategy.NewSelector(), sender, &fakeCreds{accounts: nil}, nil, nil, DefaultServiceConfig())

	_, err := svc.IdentifyHash(context.Background(), "abc123", 100, DefaultOptions())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestIdentifyCacheHit(t *testing.T) {
	sender := &fakeSender{err: assert.AnError}
	fileCache := newFakeFileCache()
	fileCache.records["abc123"] = cache.FileRecord{FID: 1, Size: 100, ED2K: "abc123", CachedAt: time.Now()}
	svc := New(strategy.NewSelector(), sender, nil, fileCache, nil, DefaultServiceConfig())

	res, err := svc.IdentifyHash(context.Background(), "abc123", 100, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusIdentified, res.Status)
	assert.Equal(t, DataSourceCache, res.Source.Kind)
}

func TestIdentifyCacheExpiredFallsThroughToNetwork(t *testing.T) {
	sender := &fakeSender{resp: codec.Response{Code: 220, Message: "FILE", Fields: []string{
		"1", "1", "1", "1", "1", "100", "abc123",
	}}}
	fileCache := newFakeFileCache()
	fileCache.records["abc123"] = cache.FileRecord{FID: 1, Size: 100, ED2K: "abc123", CachedAt: time.Now().Add(-48 * time.Hour)}
	opts := DefaultOptions()
	opts.CacheTTL = time.Hour
	svc := New(strategy.NewSelector(), sender, nil, fileCache, nil, DefaultServiceConfig())

	res, err := svc.IdentifyHash(context.Background(), "abc123", 100, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusIdentified, res.Status)
	assert.Equal(t, DataSourceNetwork, res.Source.Kind)
}

func TestIdentifyQueuesOnTransientFailure(t *testing.T) {
	sender := &fakeSender{err: &perr.ServerError{Code: 602, Message: "SERVER BUSY"}}
	queue := &fakeOfflineQueue{}
	svc := New(strategy.NewSelector(), sender, nil, nil, queue, DefaultServiceConfig())

	res, err := svc.IdentifyHash(context.Background(), "abc123", 100, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, res.Status)
	assert.Len(t, queue.enqueued, 1)
}

func TestIdentifySurfacesFatalErrorWhenQueueingDisabled(t *testing.T) {
	sender := &fakeSender{err: &perr.ServerError{Code: 505, Message: "ILLEGAL INPUT"}}
	svc := New(strategy.NewSelector(), sender, nil, nil, nil, DefaultServiceConfig())

	_, err := svc.IdentifyHash(context.Background(), "abc123", 100, DefaultOptions())
	assert.Error(t, err)
}

func TestIdentifyOfflineModeQueuesImmediately(t *testing.T) {
	svc := New(strategy.NewSelector(), &fakeSender{}, nil, nil, nil, DefaultServiceConfig())
	opts := DefaultOptions()
	opts.OfflineMode = true

	res, err := svc.IdentifyHash(context.Background(), "abc123", 100, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, res.Status)
	assert.Equal(t, DataSourceOffline, res.Source.Kind)
}

func TestBatchAggregatesSuccessAndFailure(t *testing.T) {
	sender := &fakeSender{resp: codec.Response{Code: 220, Message: "FILE", Fields: []string{
		"1", "1", "1", "1", "1", "100", "abc123",
	}}}
	svc := New(strategy.NewSelector(), sender, nil, nil, nil, DefaultServiceConfig())

	batch := svc.Batch(context.Background(), []Request{
		{Source: HashWithSize("abc123", 100), Options: DefaultOptions()},
		{Source: HashWithSize("def456", 200), Options: DefaultOptions()},
	})
	assert.Equal(t, 2, batch.SuccessCount)
	assert.Equal(t, 0, batch.FailureCount)
}
