// Package identification glues the hashing core (internal/strategy,
// internal/hash) to the protocol client (protocol/query,
// protocol/message), projecting a decoded AniDB response into a typed
// IdentificationResult with offline-queue fallback (spec.md §4.9).
// Grounded on
// _examples/original_source/anidb_client_core/src/identification/{service,types}.rs
// for the request/result shape and the DataSource discriminant.
package identification

import (
	"time"

	"github.com/anidbgo/anidbclient/protocol/message"
)

// SourceKind discriminates how a Request addresses the file to
// identify (spec.md §3 "Identification Result"/§4.9).
type SourceKind int

const (
	// SourceFilePath identifies by a local file path; ED2K is computed.
	SourceFilePath SourceKind = iota
	// SourceHash identifies by a precomputed (ed2k, size) pair.
	SourceHash
	// SourceFileID identifies directly by AniDB file ID.
	SourceFileID
)

// Source is the identifying key of a Request.
type Source struct {
	Kind SourceKind
	Path string
	ED2K string
	Size uint64
	FID  uint64
}

// FilePath builds a path-addressed Source.
func FilePath(path string) Source { return Source{Kind: SourceFilePath, Path: path} }

// HashWithSize builds a hash-addressed Source.
func HashWithSize(ed2k string, size uint64) Source {
	return Source{Kind: SourceHash, ED2K: ed2k, Size: size}
}

// ByFileID builds an ID-addressed Source.
func ByFileID(fid uint64) Source { return Source{Kind: SourceFileID, FID: fid} }

// Priority orders batch requests (spec.md original_source types.rs).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Options configures one identification request (spec.md §4.9).
type Options struct {
	UseCache        bool
	CacheTTL        time.Duration
	Timeout         time.Duration
	MaxRetries      int
	OfflineMode     bool
	QueueOnFailure  bool // enqueue for later sync instead of surfacing the error
	IncludeMetadata bool
	Fmask           string
	Amask           string
}

// DefaultOptions mirrors the original source's IdentificationOptions
// default (30-day cache TTL, 30s timeout, 3 retries, cache-on,
// offline-off).
func DefaultOptions() Options {
	return Options{
		UseCache:        true,
		CacheTTL:        30 * 24 * time.Hour,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		QueueOnFailure:  true,
		IncludeMetadata: true,
		Fmask:           message.DefaultFmask,
		Amask:           message.DefaultAmask,
	}
}

// Request bundles a Source, Options, and Priority for batch fan-out.
type Request struct {
	Source   Source
	Options  Options
	Priority Priority
}

// Status is the discriminant of a Result (spec.md §3: "{Identified,
// NotFound, NetworkError, Queued, Expired}").
type Status int

const (
	StatusIdentified Status = iota
	StatusNotFound
	StatusNetworkError
	StatusQueued
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusIdentified:
		return "identified"
	case StatusNotFound:
		return "not_found"
	case StatusNetworkError:
		return "network_error"
	case StatusQueued:
		return "queued"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// DataSourceKind discriminates where a Result's data came from (spec.md
// §3: "always carries a DataSource tag {Cache(age), Network(latency),
// Offline}").
type DataSourceKind int

const (
	DataSourceNetwork DataSourceKind = iota
	DataSourceCache
	DataSourceOffline
)

// DataSource tags a Result with its provenance and the associated
// age/latency measurement.
type DataSource struct {
	Kind    DataSourceKind
	Age     time.Duration // set when Kind == DataSourceCache
	Latency time.Duration // set when Kind == DataSourceNetwork
}

// Result is the outcome of one identification (spec.md §3, §6.4).
type Result struct {
	Request        Request
	Status         Status
	Anime          *message.AnimeInfo
	Episode        *message.EpisodeInfo
	File           *message.FileInfo
	Group          *message.GroupInfo
	Source         DataSource
	ProcessingTime time.Duration
}

// IsSuccess reports whether the identification produced a match.
func (r Result) IsSuccess() bool { return r.Status == StatusIdentified }

// BatchResult aggregates a batch identification pass (spec.md §4.9
// "aggregates results with success/failure counts").
type BatchResult struct {
	Results      []Result
	TotalTime    time.Duration
	SuccessCount int
	FailureCount int
}
