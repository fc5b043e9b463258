// Package decompressed derives decoded bodies from raw entries of the memory tier and keeps them
// in their own tier. A decoded entry remembers the digest of the raw payload it was built from.
package decompressed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/Borislavv/go-ash-tiers/internal/tier"
	"github.com/Borislavv/go-ash-tiers/internal/tier/model"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"io"
)

var (
	ErrSourceMissing     = errors.New("raw entry not cached")
	ErrSourceLoading     = errors.New("raw entry still loading")
	ErrUnknownEncoding   = errors.New("unknown content encoding")
	ErrDecompressedLimit = errors.New("decompressed body exceeds limit")
)

// Encoding is a Content-Encoding token.
type Encoding string

const (
	Identity Encoding = "identity"
	Gzip     Encoding = "gzip"
	Deflate  Encoding = "deflate"
	Zstd     Encoding = "zstd"
)

type Cache struct {
	raw   *tier.Tier
	dst   *tier.Tier
	limit int64
}

// New decodes entries of raw into dst. limit caps one decoded body; zero disables the cap.
func New(raw, dst *tier.Tier, limit int64) *Cache {
	return &Cache{raw: raw, dst: dst, limit: limit}
}

// Get returns the decoded body of key, locked for the caller, who must unlock it on the
// decompressed tier. A decoded entry built from an older raw payload is rebuilt.
func (c *Cache) Get(ctx context.Context, key string, enc Encoding) (*model.Entry, error) {
	src, ok := c.raw.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("decompress %s: %w", key, ErrSourceMissing)
	}
	if err := c.raw.Lock(src); err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, ErrSourceMissing)
	}
	defer func() { _ = c.raw.Unlock(src) }()

	if src.State() != model.Ready {
		return nil, fmt.Errorf("decompress %s: %w", key, ErrSourceLoading)
	}

	e, err := c.dst.Fetch(ctx, key, c.loader(src, enc))
	if err != nil {
		return nil, err
	}
	if builtFrom(e) == src.Digest() {
		return e, nil
	}

	// built from an older raw payload: rebuild unless another reader still holds it
	_ = c.dst.Unlock(e)
	if err = c.dst.Evict(e); err != nil && !errors.Is(err, tier.ErrEntryDestroyed) {
		return nil, fmt.Errorf("decompress %s: stale body in use: %w", key, err)
	}
	return c.dst.Fetch(ctx, key, c.loader(src, enc))
}

func (c *Cache) loader(src *model.Entry, enc Encoding) tier.Loader {
	return func(_ context.Context, f *tier.Filler) error {
		r, release, err := reader(src.Payload(), enc)
		if err != nil {
			return err
		}
		defer release()

		if c.limit > 0 {
			r = io.LimitReader(r, c.limit+1)
		}
		n, err := io.Copy(f, r)
		if err != nil {
			return fmt.Errorf("decode %s: %w", enc, err)
		}
		if c.limit > 0 && n > c.limit {
			return ErrDecompressedLimit
		}
		return f.Attach(src.Digest())
	}
}

func builtFrom(e *model.Entry) uint64 {
	d, _ := e.Value().(uint64)
	return d
}

func reader(p []byte, enc Encoding) (io.Reader, func(), error) {
	br := bytes.NewReader(p)
	switch enc {
	case Identity, "":
		return br, func() {}, nil
	case Gzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("decode gzip: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case Deflate:
		fr := flate.NewReader(br)
		return fr, func() { _ = fr.Close() }, nil
	case Zstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("decode zstd: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}
