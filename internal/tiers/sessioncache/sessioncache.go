// Package sessioncache keeps TLS client sessions in a tier so that resumption tickets share
// the quota, flush and abort semantics of the other caches.
package sessioncache

import (
	"crypto/tls"
	"github.com/Borislavv/go-ash-tiers/internal/shared/cachedtime"
	"github.com/Borislavv/go-ash-tiers/internal/tier"
	"github.com/Borislavv/go-ash-tiers/internal/tier/model"
	"time"
)

// sessionOverhead is accounted for sessions whose resumption state cannot be sized.
const sessionOverhead = 256

// Cache implements tls.ClientSessionCache.
type Cache struct {
	t   *tier.Tier
	ttl time.Duration
}

var _ tls.ClientSessionCache = (*Cache)(nil)

func New(t *tier.Tier, ttl time.Duration) *Cache {
	return &Cache{t: t, ttl: ttl}
}

// Get returns a Ready, unexpired session for sessionKey.
func (c *Cache) Get(sessionKey string) (*tls.ClientSessionState, bool) {
	e, ok := c.t.Lookup(sessionKey)
	if !ok || e.State() != model.Ready || e.IsExpired(cachedtime.UnixNano()) {
		return nil, false
	}
	cs, ok := e.Value().(*tls.ClientSessionState)
	return cs, ok && cs != nil
}

// Put stores cs under sessionKey, replacing the previous session. A nil cs removes it.
// A session pinned by a handshake in progress is left as is.
func (c *Cache) Put(sessionKey string, cs *tls.ClientSessionState) {
	if cs == nil {
		if e, ok := c.t.Lookup(sessionKey); ok {
			_ = c.t.Evict(e)
		}
		return
	}

	e, err := c.t.Replace(sessionKey)
	if err != nil {
		return
	}
	if err = c.t.Attach(e, cs); err != nil {
		return
	}
	if err = c.t.Resize(e, sizeOf(cs)); err != nil {
		return
	}
	if c.ttl > 0 {
		e.SetExpiresAt(cachedtime.UnixNano() + c.ttl.Nanoseconds())
	}
	_ = c.t.Finalize(e)
}

func sizeOf(cs *tls.ClientSessionState) int64 {
	ticket, state, err := cs.ResumptionState()
	if err != nil || state == nil {
		return sessionOverhead
	}
	b, err := state.Bytes()
	if err != nil {
		return int64(sessionOverhead + len(ticket))
	}
	return int64(len(ticket) + len(b))
}
