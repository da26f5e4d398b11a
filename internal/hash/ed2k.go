package hash

import (
	"encoding/hex"

	"golang.org/x/crypto/md4"
)

// Variant selects the ED2K finalization policy (spec §4.5).
type Variant uint8

const (
	// VariantRed omits the trailing zero-length chunk digest when the
	// file size is an exact multiple of ED2KChunkSize. This is the
	// AniDB-compatible variant and the default (spec §9).
	VariantRed Variant = iota
	// VariantBlue includes that trailing zero-length chunk digest.
	VariantBlue
)

// ed2kState is the two-level MD4 hasher described in spec §4.5: the
// file is split into ED2KChunkSize chunks, each MD4-hashed, and the
// concatenated per-chunk digests are MD4-hashed again. Buffering to the
// chunk boundary happens internally, so callers may call Update with
// any slice size; the RequiresChunkAlignment hint only governs what
// read size the pipeline picks for throughput.
type ed2kState struct {
	variant Variant
	buf     []byte // bytes accumulated toward the current chunk
	digests [][]byte
	size    int64
}

func newED2K(v Variant) *ed2kState {
	return &ed2kState{
		variant: v,
		buf:     make([]byte, 0, ED2KChunkSize),
	}
}

func (e *ed2kState) Update(p []byte) {
	e.size += int64(len(p))
	for len(p) > 0 {
		room := ED2KChunkSize - len(e.buf)
		n := len(p)
		if n > room {
			n = room
		}
		e.buf = append(e.buf, p[:n]...)
		p = p[n:]
		if len(e.buf) == ED2KChunkSize {
			e.flushChunk()
		}
	}
}

func (e *ed2kState) flushChunk() {
	h := md4.New()
	h.Write(e.buf)
	e.digests = append(e.digests, h.Sum(nil))
	e.buf = e.buf[:0]
}

func (e *ed2kState) Finalize() string {
	// A partial final chunk (including the empty-file case, where buf
	// is empty and no chunk has ever flushed) is always hashed.
	hadPartial := len(e.buf) > 0 || len(e.digests) == 0
	if hadPartial {
		e.flushChunk()
	}

	// File smaller than one chunk (or exactly empty): the single MD4
	// digest is the result, per spec §4.5. A file of exactly one chunk
	// still goes through the two-level hash below, since that is the
	// boundary where Blue and Red must diverge (spec §8).
	if len(e.digests) == 1 && e.size < ED2KChunkSize {
		return hex.EncodeToString(e.digests[0])
	}

	digests := e.digests
	exactMultiple := e.size%ED2KChunkSize == 0 && e.size > 0
	if e.variant == VariantBlue && exactMultiple {
		h := md4.New()
		digests = append(append([][]byte{}, digests...), h.Sum(nil))
	}

	top := md4.New()
	for _, d := range digests {
		top.Write(d)
	}
	return hex.EncodeToString(top.Sum(nil))
}
