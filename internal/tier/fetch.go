package tier

import (
	"context"
	"errors"
	"fmt"
	"github.com/Borislavv/go-ash-tiers/internal/shared/cachedtime"
	"github.com/Borislavv/go-ash-tiers/internal/tier/model"
	"time"
)

// fetchAttempts bounds retries when a freshly filled entry is reclaimed before the caller pins it.
const fetchAttempts = 3

// Loader streams the value of a missing key into a Loading entry.
type Loader func(ctx context.Context, f *Filler) error

// Filler is the producer side of a Loading entry. It implements io.Writer.
type Filler struct {
	t *Tier
	e *model.Entry
}

func (f *Filler) Entry() *model.Entry { return f.e }

func (f *Filler) Write(p []byte) (int, error) {
	if err := f.t.AppendBytes(f.e, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *Filler) Attach(v any) error          { return f.t.Attach(f.e, v) }
func (f *Filler) Resize(size int64) error     { return f.t.Resize(f.e, size) }
func (f *Filler) ExpireAfter(d time.Duration) { f.e.SetExpiresAt(cachedtime.UnixNano() + d.Nanoseconds()) }

// Fetch returns the entry for key, filling it with load on a miss. Concurrent fetches of one
// key share a single load. The returned entry is locked for the caller, who must Unlock it.
//
// A present entry is returned as is, which may be Loading when another producer owns it.
// The load runs under the ctx of the first caller.
func (t *Tier) Fetch(ctx context.Context, key string, load Loader) (*model.Entry, error) {
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		v, err, _ := t.flights.Do(key, func() (any, error) {
			return t.fill(ctx, key, load)
		})
		if err != nil {
			return nil, err
		}

		e := v.(*model.Entry)
		if err = t.Lock(e); err == nil {
			return e, nil
		} else if !errors.Is(err, ErrEntryDestroyed) {
			return nil, err
		}
		// reclaimed between fill and pin
	}
	return nil, fmt.Errorf("fetch %s/%s: %w", t.name, key, ErrEntryDestroyed)
}

func (t *Tier) fill(ctx context.Context, key string, load Loader) (*model.Entry, error) {
	e, created := t.Claim(key)
	if !created {
		return e, nil
	}

	err := load(ctx, &Filler{t: t, e: e})
	if ctx.Err() != nil {
		// surface the cancellation cause (an abort) next to whatever the loader saw
		if cause := context.Cause(ctx); err == nil || errors.Is(err, cause) {
			err = cause
		} else {
			err = fmt.Errorf("%w: %w", cause, err)
		}
	}
	if err != nil {
		_ = t.Abort(e)
		return nil, fmt.Errorf("load %s/%s: %w", t.name, key, err)
	}
	if err = t.Finalize(e); err != nil {
		return nil, err
	}
	if err = t.Unlock(e); err != nil {
		return nil, err
	}
	return e, nil
}
