// Package hash implements the catalog's fixed set of content digests
// (spec §3 "Hash Algorithm", §4.5 ED2K notes) and the streaming hasher
// abstraction the pipeline and strategies drive. It is grounded on
// rclone's fs/hash package (see fs/hash_test.go in the example pack):
// a closed Type enumeration, a Set bitset, and a Multi hasher that fans
// one io.Writer out to N running digests.
package hash

import "fmt"

// Type is one of the five catalog hash algorithms. The set is closed:
// this is not a general hashing library (spec §1 Non-goals).
type Type uint8

const (
	// TypeNone represents no hash / an absent entry in a Set.
	TypeNone Type = iota
	// TypeED2K is AniDB's primary fingerprint: a two-level MD4 hash
	// over 9,728,000-byte chunks (spec §4.5).
	TypeED2K
	TypeCRC32
	TypeMD5
	TypeSHA1
	// TypeTTH (Tiger Tree Hash) is optional: spec §9 notes the
	// original implementation's coverage of it is uneven and that
	// implementers should flag it as optional in algorithm discovery.
	TypeTTH

	numTypes = int(TypeTTH) + 1
)

// ED2KChunkSize is the fixed chunk boundary ED2K hashes against (spec §4.5).
const ED2KChunkSize = 9_728_000

var typeNames = [numTypes]string{
	TypeNone:  "None",
	TypeED2K:  "ED2K",
	TypeCRC32: "CRC32",
	TypeMD5:   "MD5",
	TypeSHA1:  "SHA-1",
	TypeTTH:   "TTH",
}

func (t Type) String() string {
	if int(t) < numTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// DigestLength is the raw (non-hex) digest length in bytes.
func (t Type) DigestLength() int {
	switch t {
	case TypeED2K, TypeMD5:
		return 16
	case TypeCRC32:
		return 4
	case TypeSHA1, TypeTTH:
		return 20
	default:
		return 0
	}
}

// RequiresChunkAlignment reports whether the strategy layer should feed
// this algorithm fixed ED2KChunkSize chunks for optimal throughput. The
// hasher itself buffers internally to the chunk boundary regardless, so
// this is a pipeline/strategy hint (spec §4.4.4), not a hard Update()
// precondition.
func (t Type) RequiresChunkAlignment() bool {
	return t == TypeED2K
}

// Optional reports whether this algorithm may be absent from a given
// build's algorithm discovery (spec §9: TTH coverage is uneven).
func (t Type) Optional() bool {
	return t == TypeTTH
}

// Valid reports whether t is one of the five known algorithms (TypeNone
// included, as the zero/absent value).
func (t Type) Valid() bool {
	return int(t) < numTypes
}
