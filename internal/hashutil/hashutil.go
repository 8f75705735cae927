// Package hashutil implements the streaming 128-bit content digest used to
// identify save file content, independent of where the bytes came from.
package hashutil

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// chunkSize is the read buffer size used by Sum when streaming a local
// io.Reader. Remote/device probes that need a larger buffer (spec.md §4.6
// uses 4 MiB for device files) pass their own reader wrapped accordingly;
// Sum itself always reads in chunkSize increments from whatever is handed
// to it.
const chunkSize = 4096

// Hash is a 128-bit MD5 content digest.
type Hash [md5.Size]byte

// Sum consumes r in chunkSize-byte chunks until EOF, feeding an MD5
// accumulator, and returns the resulting digest.
func Sum(r io.Reader) (Hash, error) {
	h := md5.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Hash{}, fmt.Errorf("hashutil: read: %w", err)
		}
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// SumWithSize behaves like Sum but also returns the number of bytes
// consumed. Callers that don't already know a stream's length (e.g. the
// remote client hashing a downloaded save whose size isn't in the API
// response) use this instead of Sum.
func SumWithSize(r io.Reader) (Hash, uint64, error) {
	counter := &countingReader{r: r}
	h, err := Sum(counter)
	return h, counter.n, err
}

type countingReader struct {
	r io.Reader
	n uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	return n, err
}

// Chunk is one unit of an asynchronous byte-chunk stream fed to SumAsync.
// Err, if non-nil, aborts the hash with that error.
type Chunk struct {
	Data []byte
	Err  error
}

// SumAsync is the asynchronous counterpart to Sum: it consumes chunks from
// a channel (as produced by a concurrent reader, e.g. an HTTP response body
// being read on another goroutine) instead of pulling from an io.Reader
// directly, and returns as soon as the channel closes or a chunk carries an
// error. Cancelling ctx aborts the hash early.
func SumAsync(ctx context.Context, chunks <-chan Chunk) (Hash, error) {
	h := md5.New()
	for {
		select {
		case <-ctx.Done():
			return Hash{}, fmt.Errorf("hashutil: sum async: %w", ctx.Err())
		case c, ok := <-chunks:
			if !ok {
				var out Hash
				copy(out[:], h.Sum(nil))
				return out, nil
			}
			if c.Err != nil {
				return Hash{}, fmt.Errorf("hashutil: sum async: %w", c.Err)
			}
			h.Write(c.Data)
		}
	}
}

// String formats the digest as 32 lowercase hex characters.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// UpperHex formats the digest as 32 uppercase hex characters.
func (h Hash) UpperHex() string {
	return strings.ToUpper(h.String())
}

// Parse parses a hash from hex, tolerating '-', '_' and whitespace between
// any pair of hex characters.
func Parse(s string) (Hash, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '-' || r == '_':
			return -1
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return -1
		default:
			return r
		}
	}, s)

	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return Hash{}, fmt.Errorf("hashutil: parse %q: %w", s, err)
	}
	if len(raw) != md5.Size {
		return Hash{}, fmt.Errorf("hashutil: parse %q: want %d bytes, got %d", s, md5.Size, len(raw))
	}

	var out Hash
	copy(out[:], raw)
	return out, nil
}
