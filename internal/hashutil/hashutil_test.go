package hashutil

import (
	"bytes"
	"context"
	"crypto/md5"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumEmpty(t *testing.T) {
	h, err := Sum(bytes.NewReader(nil))
	require.NoError(t, err)
	want := md5.Sum(nil)
	assert.Equal(t, Hash(want), h)
}

func TestSumKnownContent(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	h, err := Sum(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Hash(md5.Sum(data)), h)
}

func TestSumLargerThanChunkSize(t *testing.T) {
	data := bytes.Repeat([]byte("x"), chunkSize*3+17)
	h, err := Sum(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Hash(md5.Sum(data)), h)
}

func TestSumWithSize(t *testing.T) {
	data := []byte("measure me")
	h, size, err := SumWithSize(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Hash(md5.Sum(data)), h)
	assert.Equal(t, uint64(len(data)), size)
}

func TestSumAsync(t *testing.T) {
	data := []byte("async hashing works the same way")
	ch := make(chan Chunk, 1)
	go func() {
		defer close(ch)
		for i := 0; i < len(data); i += 8 {
			end := i + 8
			if end > len(data) {
				end = len(data)
			}
			ch <- Chunk{Data: data[i:end]}
		}
	}()

	h, err := SumAsync(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, Hash(md5.Sum(data)), h)
}

func TestSumAsyncPropagatesChunkError(t *testing.T) {
	boom := assert.AnError
	ch := make(chan Chunk, 1)
	ch <- Chunk{Err: boom}
	close(ch)

	_, err := SumAsync(context.Background(), ch)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestParseAndStringRoundTrip(t *testing.T) {
	want := Hash(md5.Sum([]byte("round trip")))
	parsed, err := Parse(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, parsed)
}

func TestParseToleratesSeparators(t *testing.T) {
	want := Hash(md5.Sum([]byte("separators")))
	raw := want.String()
	spaced := raw[:8] + "-" + raw[8:16] + "_" + raw[16:24] + " " + raw[24:]

	parsed, err := Parse(spaced)
	require.NoError(t, err)
	assert.Equal(t, want, parsed)
}

func TestParseInvalidLength(t *testing.T) {
	_, err := Parse("abcd")
	require.Error(t, err)
}

func TestUpperHex(t *testing.T) {
	h := Hash(md5.Sum([]byte("case")))
	assert.Equal(t, len(h.String()), len(h.UpperHex()))
	reparsed, err := Parse(h.UpperHex())
	require.NoError(t, err)
	assert.Equal(t, h, reparsed)
}
