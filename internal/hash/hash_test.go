package hash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetBasics(t *testing.T) {
	var s Set
	assert.Equal(t, 0, s.Count())
	assert.Len(t, s.Array(), 0)

	s = s.Add(TypeMD5)
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, TypeMD5, s.GetOne())
	assert.True(t, s.SubsetOf(SupportedHashes))

	s = s.Add(TypeSHA1)
	assert.Equal(t, 2, s.Count())
	assert.True(t, s.SubsetOf(SupportedHashes))
	assert.False(t, s.SubsetOf(NewSet(TypeMD5)))

	ol := s.Overlap(NewSet(TypeMD5))
	assert.Equal(t, 1, ol.Count())
	assert.True(t, ol.Contains(TypeMD5))
	assert.False(t, ol.Contains(TypeSHA1))
}

func TestSetString(t *testing.T) {
	assert.Equal(t, "[MD5, SHA-1]", NewSet(TypeSHA1, TypeMD5).String())
	assert.Equal(t, "[]", NewSet().String())
}

func TestEmptyFileDigests(t *testing.T) {
	mh, err := NewMulti(DefaultConfig(), TypeMD5, TypeSHA1, TypeCRC32, TypeED2K)
	require.NoError(t, err)
	n, err := mh.Write(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	sums := mh.Sums()
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", sums[TypeMD5])
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", sums[TypeSHA1])
	assert.Equal(t, "00000000", sums[TypeCRC32])
	assert.Equal(t, "31d6cfe0d16ae931b73c59d7e0c089c0", sums[TypeED2K])
}

func TestHelloWorldCRC32(t *testing.T) {
	mh, err := NewMulti(DefaultConfig(), TypeCRC32)
	require.NoError(t, err)
	_, err = mh.Write([]byte("Hello, world!"))
	require.NoError(t, err)
	assert.Equal(t, "ebe6c6e6", mh.Sums()[TypeCRC32])
}

func TestMultiHasherAllPresent(t *testing.T) {
	input := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	mh, err := NewMulti(DefaultConfig(), TypeMD5, TypeSHA1)
	require.NoError(t, err)
	n, err := mh.Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)
	sums := mh.Sums()
	assert.Equal(t, "bf13fc19e5151ac57d4252e0e0f87abe", sums[TypeMD5])
	assert.Equal(t, "3ab6543c08a75f292a5ecedac87ec41642d12166", sums[TypeSHA1])
}

func TestED2KSmallerThanOneChunk(t *testing.T) {
	h, err := NewHasher(TypeED2K, DefaultConfig())
	require.NoError(t, err)
	h.Update([]byte("some small content"))
	redDigest := h.Finalize()

	h2, err := NewHasher(TypeED2K, Config{ED2KVariant: VariantBlue})
	require.NoError(t, err)
	h2.Update([]byte("some small content"))
	blueDigest := h2.Finalize()

	assert.Equal(t, redDigest, blueDigest, "below one chunk, variant is irrelevant")
}

func TestED2KExactlyOneChunkVariantsDiffer(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, ED2KChunkSize)

	red, err := NewHasher(TypeED2K, Config{ED2KVariant: VariantRed})
	require.NoError(t, err)
	red.Update(data)
	redDigest := red.Finalize()

	blue, err := NewHasher(TypeED2K, Config{ED2KVariant: VariantBlue})
	require.NoError(t, err)
	blue.Update(data)
	blueDigest := blue.Finalize()

	assert.NotEqual(t, redDigest, blueDigest)
}

func TestED2KChunkedVsStreamedFeedingAgree(t *testing.T) {
	data := bytes.Repeat([]byte{0x07}, ED2KChunkSize*3+17)

	whole, err := NewHasher(TypeED2K, DefaultConfig())
	require.NoError(t, err)
	whole.Update(data)
	wholeDigest := whole.Finalize()

	chunked, err := NewHasher(TypeED2K, DefaultConfig())
	require.NoError(t, err)
	for i := 0; i < len(data); i += 4096 {
		end := i + 4096
		if end > len(data) {
			end = len(data)
		}
		chunked.Update(data[i:end])
	}
	chunkedDigest := chunked.Finalize()

	assert.Equal(t, wholeDigest, chunkedDigest, "arbitrary feed sizes must agree with chunk-aligned feeding")
}

func TestTTHOptionalFlag(t *testing.T) {
	assert.True(t, TypeTTH.Optional())
	assert.False(t, SupportedHashes.Contains(TypeTTH))
	h, err := NewHasher(TypeTTH, DefaultConfig())
	require.NoError(t, err)
	h.Update([]byte("anything"))
	assert.Len(t, h.Finalize(), 40) // sha1-sized hex digest
}
