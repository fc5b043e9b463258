// Package dnscache resolves hosts through a background tier: concurrent lookups of one host
// share a resolution and the addresses live until their TTL passes.
package dnscache

import (
	"context"
	"errors"
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/shared/cachedtime"
	"github.com/Borislavv/go-ash-tiers/internal/tier"
	"github.com/Borislavv/go-ash-tiers/internal/tier/model"
	"slices"
	"time"
)

var ErrNoAddresses = errors.New("resolver returned no addresses")

// entryOverhead approximates the bookkeeping of one record beside its strings.
const entryOverhead = 64

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type Cache struct {
	t        *tier.Tier
	acc      *accountant.Accountant
	resolver Resolver
	ttl      time.Duration
}

func New(t *tier.Tier, acc *accountant.Accountant, resolver Resolver, ttl time.Duration) *Cache {
	return &Cache{t: t, acc: acc, resolver: resolver, ttl: ttl}
}

// LookupHost returns cached addresses or resolves host. An expired record is resolved again
// unless another caller still pins it, in which case its addresses are served.
func (c *Cache) LookupHost(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := c.acc.Bind(ctx)
	defer cancel()

	e, err := c.fetch(ctx, host)
	if err != nil {
		return nil, err
	}
	if e.IsExpired(cachedtime.UnixNano()) {
		_ = c.t.Unlock(e)
		if err = c.t.Evict(e); err == nil {
			if e, err = c.fetch(ctx, host); err != nil {
				return nil, err
			}
		} else if err = c.t.Lock(e); err != nil {
			// evicted meanwhile by someone else
			if e, err = c.fetch(ctx, host); err != nil {
				return nil, err
			}
		}
	}
	defer func() { _ = c.t.Unlock(e) }()

	addrs, _ := e.Value().([]string)
	return slices.Clone(addrs), nil
}

func (c *Cache) fetch(ctx context.Context, host string) (*model.Entry, error) {
	return c.t.Fetch(ctx, host, func(ctx context.Context, f *tier.Filler) error {
		addrs, err := c.resolver.LookupHost(ctx, host)
		if err != nil {
			return err
		}
		if len(addrs) == 0 {
			return ErrNoAddresses
		}

		size := int64(entryOverhead + len(host))
		for _, a := range addrs {
			size += int64(len(a))
		}
		if err = f.Attach(slices.Clone(addrs)); err != nil {
			return err
		}
		if err = f.Resize(size); err != nil {
			return err
		}
		if c.ttl > 0 {
			f.ExpireAfter(c.ttl)
		}
		return nil
	})
}
