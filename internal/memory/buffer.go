package memory

// Buffer is a byte vector bound to a size class, per spec §3. Its
// length (Bytes()) is the caller's requested size; its capacity is
// always the owning class's fixed size, except for oversized buffers
// (larger than XLargeSize) which are never pooled.
type Buffer struct {
	data      []byte
	class     Class
	oversized bool
}

// Bytes returns the buffer's data, length-limited to the requested size.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the logical length of the buffer.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Class returns the buffer's owning size class.
func (b *Buffer) Class() Class {
	return b.class
}

// capBytes is the number of bytes actually charged against the ceiling.
func (b *Buffer) capBytes() int {
	if b.oversized {
		return cap(b.data)
	}
	return b.class.size()
}

// Wrap adapts an externally-owned byte slice (not tracked by any
// Manager) into a Buffer, for pipeline stages that synthesize their
// own chunks (e.g. a buffering or transform combinator). Releasing a
// wrapped buffer through a Manager is invalid; wrapped buffers are
// meant to be paired with a chunk that has a nil release callback.
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data, oversized: true}
}

// Sub returns a Buffer sharing the same backing array truncated to
// the first n bytes, for a short final read that filled less than the
// buffer's requested size. It shares release semantics with b: release
// the returned value, not both.
func (b *Buffer) Sub(n int) *Buffer {
	return &Buffer{data: b.data[:n], class: b.class, oversized: b.oversized}
}
