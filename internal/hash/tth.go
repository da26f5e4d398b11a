package hash

import (
	"crypto/sha1"
	"encoding/hex"
)

// tthLeafSize is the THEX leaf block size this simplified tree hash
// uses. The real Tiger Tree Hash uses the Tiger digest; no Tiger
// implementation exists anywhere in the example corpus, so this stands
// in with SHA-1 as the leaf/node digest. TTH is explicitly Optional
// (spec §9) precisely because of this kind of uneven coverage; callers
// that need interoperable THEX digests should not rely on this output
// matching other TTH implementations bit-for-bit.
const tthLeafSize = 1024

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

type tthState struct {
	pending []byte
	leaves  [][]byte
}

func newTTH() *tthState {
	return &tthState{pending: make([]byte, 0, tthLeafSize)}
}

func (t *tthState) Update(p []byte) {
	for len(p) > 0 {
		room := tthLeafSize - len(t.pending)
		n := len(p)
		if n > room {
			n = room
		}
		t.pending = append(t.pending, p[:n]...)
		p = p[n:]
		if len(t.pending) == tthLeafSize {
			t.flushLeaf()
		}
	}
}

func (t *tthState) flushLeaf() {
	h := sha1.New()
	h.Write([]byte{leafPrefix})
	h.Write(t.pending)
	t.leaves = append(t.leaves, h.Sum(nil))
	t.pending = t.pending[:0]
}

func (t *tthState) Finalize() string {
	if len(t.pending) > 0 || len(t.leaves) == 0 {
		t.flushLeaf()
	}
	level := t.leaves
	for len(level) > 1 {
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				// odd one out is promoted unchanged, per THEX.
				next = append(next, level[i])
				continue
			}
			h := sha1.New()
			h.Write([]byte{nodePrefix})
			h.Write(level[i])
			h.Write(level[i+1])
			next = append(next, h.Sum(nil))
		}
		level = next
	}
	return hex.EncodeToString(level[0])
}
