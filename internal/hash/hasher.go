package hash

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
)

// Hasher is the polymorphic streaming-state contract from spec §3:
// Update folds in more input, Finalize consumes the state and returns
// the lowercase-hex digest. Exactly one Finalize call per Hasher;
// Update calls are sequential (never concurrent on one Hasher).
type Hasher interface {
	Update(p []byte)
	Finalize() string
}

// Config carries per-algorithm knobs. Only ED2K currently has one: the
// Blue/Red finalization variant (spec §4.5).
type Config struct {
	ED2KVariant Variant
}

// DefaultConfig returns Red as the ED2K variant, per spec §9's stated
// test default.
func DefaultConfig() Config {
	return Config{ED2KVariant: VariantRed}
}

// genericHasher adapts a stdlib hash.Hash to the Hasher interface.
type genericHasher struct {
	h hash.Hash
}

func (g *genericHasher) Update(p []byte) { g.h.Write(p) }
func (g *genericHasher) Finalize() string {
	return hex.EncodeToString(g.h.Sum(nil))
}

// NewHasher constructs the streaming state factory for t (spec §3: "its
// streaming state factory").
func NewHasher(t Type, cfg Config) (Hasher, error) {
	switch t {
	case TypeCRC32:
		return &genericHasher{h: crc32.NewIEEE()}, nil
	case TypeMD5:
		return &genericHasher{h: md5.New()}, nil
	case TypeSHA1:
		return &genericHasher{h: sha1.New()}, nil
	case TypeED2K:
		return newED2K(cfg.ED2KVariant), nil
	case TypeTTH:
		return newTTH(), nil
	default:
		return nil, fmt.Errorf("hash: unsupported algorithm %v", t)
	}
}
