package identification

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anidbgo/anidbclient/cache"
	"github.com/anidbgo/anidbclient/credential"
	"github.com/anidbgo/anidbclient/internal/hash"
	"github.com/anidbgo/anidbclient/internal/strategy"
	"github.com/anidbgo/anidbclient/protocol/codec"
	"github.com/anidbgo/anidbclient/protocol/message"
	"github.com/anidbgo/anidbclient/protocol/perr"
	"github.com/anidbgo/anidbclient/protocol/query"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ErrAuthRequired is returned when no AniDB credential is on file;
// spec.md §4.9: "bail with a 'run auth login' message if none."
var ErrAuthRequired = fmt.Errorf("identification: no AniDB credentials found, run `anidb auth login` first")

// Sender issues an authenticated command and returns its decoded
// response, satisfied by *query.QueryManager; kept as an interface so
// the service can be tested without a live UDP socket.
type Sender interface {
	SendAuthenticated(ctx context.Context, build query.Builder) (codec.Response, error)
}

// OfflineQueue defers a Request for later reprocessing when the
// network is unavailable (spec.md §4.9: "enqueue and return
// status=Queued"). Distinct from cache.SyncQueueRepository, which
// queues MyList mutations (spec.md §4.10), not identification lookups.
type OfflineQueue interface {
	Enqueue(ctx context.Context, req Request) error
}

// ServiceConfig configures a Service (spec.md §4.9 and the original
// source's ServiceConfig: verbose/max_concurrent/enable_offline_queue).
type ServiceConfig struct {
	MaxConcurrent      int
	EnableOfflineQueue bool
	Logger             *logrus.Entry
}

// DefaultServiceConfig mirrors the original source's default (4
// concurrent identifications, offline queue enabled).
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxConcurrent:      4,
		EnableOfflineQueue: true,
		Logger:             logrus.WithField("component", "identification"),
	}
}

// Service implements spec.md §4.9: translate a Request into a Result,
// hashing locally, querying the catalog, and falling back to an
// offline queue on transient failure.
type Service struct {
	selector     *strategy.Selector
	sender       Sender
	creds        credential.Store
	fileCache    cache.FileCache
	offlineQueue OfflineQueue
	cfg          ServiceConfig
}

// New builds a Service. fileCache and offlineQueue may be nil to
// disable caching/queueing respectively.
func New(selector *strategy.Selector, sender Sender, creds credential.Store, fileCache cache.FileCache, offlineQueue OfflineQueue, cfg ServiceConfig) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultServiceConfig().MaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultServiceConfig().Logger
	}
	return &Service{selector: selector, sender: sender, creds: creds, fileCache: fileCache, offlineQueue: offlineQueue, cfg: cfg}
}

// IdentifyFile identifies the file at path (spec.md §4.9's path source).
func (s *Service) IdentifyFile(ctx context.Context, path string, opts Options) (Result, error) {
	return s.Identify(ctx, Request{Source: FilePath(path), Options: opts})
}

// IdentifyHash identifies by a precomputed ED2K hash and size.
func (s *Service) IdentifyHash(ctx context.Context, ed2k string, size uint64, opts Options) (Result, error) {
	return s.Identify(ctx, Request{Source: HashWithSize(ed2k, size), Options: opts})
}

// IdentifyByID identifies directly by AniDB file ID.
func (s *Service) IdentifyByID(ctx context.Context, fid uint64, opts Options) (Result, error) {
	return s.Identify(ctx, Request{Source: ByFileID(fid), Options: opts})
}

// Identify runs spec.md §4.9's algorithm for a single request.
func (s *Service) Identify(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if req.Options.OfflineMode {
		return Result{Request: req, Status: StatusQueued, Source: DataSource{Kind: DataSourceOffline}, ProcessingTime: time.Since(start)}, nil
	}

	fq, err := s.resolveQuery(ctx, req)
	if err != nil {
		return Result{}, err
	}

	if req.Options.UseCache && s.fileCache != nil && (fq.ED2K != "" || fq.FID != 0) {
		if res, ok := s.cacheHit(ctx, req, fq, start); ok {
			return res, nil
		}
	}

	if s.creds != nil {
		accounts, err := s.creds.ListAccounts(ctx, credential.AniDBService)
		if err != nil || len(accounts) == 0 {
			return Result{}, ErrAuthRequired
		}
	}

	netStart := time.Now()
	resp, sendErr := s.sender.SendAuthenticated(ctx, func(session string) *codec.Command {
		return message.NewFile(session, fq, req.Options.Fmask, req.Options.Amask)
	})
	latency := time.Since(netStart)

	if sendErr != nil {
		return s.handleFailure(ctx, req, sendErr, start)
	}

	fi, outcome, parseErr := message.ParseFile(resp)
	switch {
	case parseErr == nil && outcome == message.OutcomeSuccess && fi.Found:
		result := Result{
			Request:        req,
			Status:         StatusIdentified,
			File:           &fi,
			Source:         DataSource{Kind: DataSourceNetwork, Latency: latency},
			ProcessingTime: time.Since(start),
		}
		if s.fileCache != nil {
			_ = s.fileCache.Put(ctx, cache.FileRecord{FID: fi.FID, AID: fi.AID, EID: fi.EID, GID: fi.GID, Size: fi.Size, ED2K: fi.ED2K, CachedAt: time.Now()})
		}
		return result, nil

	case outcome == message.OutcomeNotFound:
		return Result{Request: req, Status: StatusNotFound, Source: DataSource{Kind: DataSourceNetwork, Latency: latency}, ProcessingTime: time.Since(start)}, nil

	default:
		return s.handleFailure(ctx, req, parseErr, start)
	}
}

// handleFailure applies spec.md §4.9's "on network or transient
// failure when caller permitted queueing: enqueue and return
// status=Queued" branch, surfacing the error otherwise.
func (s *Service) handleFailure(ctx context.Context, req Request, cause error, start time.Time) (Result, error) {
	queueable := req.Options.QueueOnFailure && s.cfg.EnableOfflineQueue && s.offlineQueue != nil && isTransient(cause)
	if !queueable {
		return Result{}, cause
	}
	if err := s.offlineQueue.Enqueue(ctx, req); err != nil {
		s.cfg.Logger.WithError(err).Warn("identification: failed to enqueue for offline retry")
		return Result{}, cause
	}
	s.cfg.Logger.WithField("path", req.Source.Path).Info("identification: queued after transient failure")
	return Result{Request: req, Status: StatusQueued, Source: DataSource{Kind: DataSourceOffline}, ProcessingTime: time.Since(start)}, nil
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if err == perr.ErrTimeout || err == perr.ErrSessionExpired || err == perr.ErrRateLimitExceeded {
		return true
	}
	if svrErr, ok := err.(*perr.ServerError); ok {
		return perr.Retriable(svrErr.Code)
	}
	return false
}

func (s *Service) cacheHit(ctx context.Context, req Request, fq message.FileQuery, start time.Time) (Result, bool) {
	rec, err := s.fileCache.Get(ctx, fq.ED2K, fq.Size)
	if err != nil {
		return Result{}, false
	}
	age := time.Since(rec.CachedAt)
	status := StatusIdentified
	if req.Options.CacheTTL > 0 && age > req.Options.CacheTTL {
		status = StatusExpired
	}
	return Result{
		Request: req,
		Status:  status,
		File: &message.FileInfo{
			Found: true, FID: rec.FID, AID: rec.AID, EID: rec.EID, GID: rec.GID,
			Size: rec.Size, ED2K: rec.ED2K,
		},
		Source:         DataSource{Kind: DataSourceCache, Age: age},
		ProcessingTime: time.Since(start),
	}, status == StatusIdentified
}

// resolveQuery turns req.Source into a message.FileQuery, computing the
// ED2K hash locally via the fast-path Sequential strategy when the
// source is a file path (spec.md §4.9: "run the pipeline with {ED2K}
// only (fast path) to obtain the hash and size").
func (s *Service) resolveQuery(ctx context.Context, req Request) (message.FileQuery, error) {
	switch req.Source.Kind {
	case SourceFileID:
		return message.ByID(req.Source.FID), nil
	case SourceHash:
		return message.ByHash(req.Source.Size, req.Source.ED2K), nil
	default:
		info, err := os.Stat(req.Source.Path)
		if err != nil {
			return message.FileQuery{}, err
		}
		fctx := strategy.FileContext{
			FilePath:   req.Source.Path,
			FileSize:   info.Size(),
			Algorithms: hash.NewSet(hash.TypeED2K),
			Config:     hash.DefaultConfig(),
		}
		strat, err := s.selector.Select(fctx, strategy.Automatic)
		if err != nil {
			return message.FileQuery{}, err
		}
		res, err := strat.Execute(ctx, fctx, strategy.NoopProgress{})
		if err != nil {
			return message.FileQuery{}, err
		}
		return message.ByHash(uint64(info.Size()), res.Digests[hash.TypeED2K]), nil
	}
}

// Batch fans out up to cfg.MaxConcurrent requests with a semaphore
// (spec.md §4.9: "Batch identification fans out up to max_concurrent
// requests with a semaphore; aggregates results with success/failure
// counts").
func (s *Service) Batch(ctx context.Context, requests []Request) BatchResult {
	start := time.Now()
	results := make([]Result, len(requests))
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrent))

	done := make(chan struct{}, len(requests))
	for i, req := range requests {
		i, req := i, req
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Request: req, Status: StatusNetworkError}
			done <- struct{}{}
			continue
		}
		go func() {
			defer sem.Release(1)
			defer func() { done <- struct{}{} }()
			res, err := s.Identify(ctx, req)
			if err != nil {
				results[i] = Result{Request: req, Status: StatusNetworkError, ProcessingTime: time.Since(start)}
				return
			}
			results[i] = res
		}()
	}
	for range requests {
		<-done
	}

	var batch BatchResult
	batch.Results = results
	batch.TotalTime = time.Since(start)
	for _, r := range results {
		if r.IsSuccess() {
			batch.SuccessCount++
		} else {
			batch.FailureCount++
		}
	}
	return batch
}
