package memory

import (
	"sync"
	"time"
)

// pooledBuf is one retained buffer sitting in a class pool, stamped with
// the time it was released so evictStale can age it out.
type pooledBuf struct {
	data       []byte
	releasedAt time.Time
}

// classPool is a single size class's free list. It mirrors the shape of
// rclone's lib/pool.Pool (Get/Put, alloced/inUse/inPool accounting) but
// scoped to one fixed buffer size, since the Manager owns the ceiling
// and the mapping from requested size to class.
type classPool struct {
	mu      sync.Mutex
	class   Class
	bufSize int
	max     int // maximum retained buffers before Put drops instead of pooling
	free    []pooledBuf

	alloced int // buffers currently checked out (not pooled)
}

func newClassPool(c Class, max int) *classPool {
	return &classPool{
		class:   c,
		bufSize: c.size(),
		max:     max,
	}
}

// get returns a pooled buffer if one is available, or (nil, false) on a
// pool miss. The caller charges the ceiling on a miss.
func (p *classPool) get() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		p.alloced++
		return nil, false
	}
	buf := p.free[n-1].data
	p.free = p.free[:n-1]
	p.alloced++
	return buf, true
}

// put returns buf to the pool if there is room, or reports that it was
// dropped (the caller should subtract its bytes from the ceiling).
func (p *classPool) put(buf []byte) (retained bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alloced--
	if len(p.free) >= p.max {
		return false
	}
	buf = buf[:0]
	buf = buf[:cap(buf)]
	for i := range buf {
		buf[i] = 0
	}
	p.free = append(p.free, pooledBuf{data: buf, releasedAt: time.Now()})
	return true
}

// inPool reports how many buffers are currently retained in the pool.
func (p *classPool) inPool() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// shrinkTo drops retained buffers (LIFO, most recently freed first isn't
// important here — order doesn't affect correctness) until at most
// keep buffers remain, returning the number of bytes dropped.
func (p *classPool) shrinkTo(keep int) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	var freed int64
	for len(p.free) > keep {
		n := len(p.free)
		p.free = p.free[:n-1]
		freed += int64(p.bufSize)
	}
	return freed
}

// evictStale drops retained buffers idle longer than maxAge, returning
// the number of bytes dropped.
func (p *classPool) evictStale(maxAge time.Duration) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	kept := p.free[:0]
	var freed int64
	for _, b := range p.free {
		if now.Sub(b.releasedAt) > maxAge {
			freed += int64(p.bufSize)
			continue
		}
		kept = append(kept, b)
	}
	p.free = kept
	return freed
}
