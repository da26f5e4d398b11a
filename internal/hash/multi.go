package hash

import "fmt"

// Multi fans a single stream of writes out to N running hashers,
// mirroring rclone's fs.MultiHasher / NewMultiHasherTypes / Sums
// (fs/hash_test.go). It implements io.Writer so it can be used with
// io.Copy directly.
type Multi struct {
	hashers map[Type]Hasher
	size    int64
}

// NewMulti builds a Multi hasher for the given types using cfg.
func NewMulti(cfg Config, types ...Type) (*Multi, error) {
	return NewMultiSet(cfg, NewSet(types...))
}

// NewMultiSet builds a Multi hasher for every algorithm in s.
func NewMultiSet(cfg Config, s Set) (*Multi, error) {
	m := &Multi{hashers: make(map[Type]Hasher, s.Count())}
	for _, t := range s.Array() {
		h, err := NewHasher(t, cfg)
		if err != nil {
			return nil, fmt.Errorf("hash: building multi hasher: %w", err)
		}
		m.hashers[t] = h
	}
	return m, nil
}

// Write feeds p to every hasher. It never returns an error or a short count.
func (m *Multi) Write(p []byte) (int, error) {
	for _, h := range m.hashers {
		h.Update(p)
	}
	m.size += int64(len(p))
	return len(p), nil
}

// Size returns the total number of bytes written so far.
func (m *Multi) Size() int64 {
	return m.size
}

// Sums finalizes every hasher and returns their lowercase-hex digests.
// Exactly one call is valid per Multi, matching the single-Finalize
// contract of the underlying Hashers.
func (m *Multi) Sums() map[Type]string {
	out := make(map[Type]string, len(m.hashers))
	for t, h := range m.hashers {
		out[t] = h.Finalize()
	}
	return out
}
