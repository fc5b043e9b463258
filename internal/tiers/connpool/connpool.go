// Package connpool keeps idle keep-alive connections in a background tier. A connection in use
// is locked; idle ones are evictable and get closed when reclaimed, expired or aborted.
package connpool

import (
	"context"
	"errors"
	"fmt"
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/shared/cachedtime"
	"github.com/Borislavv/go-ash-tiers/internal/tier"
	"github.com/Borislavv/go-ash-tiers/internal/tier/model"
	"github.com/google/uuid"
	"net"
	"sync"
	"time"
)

var ErrConnReleased = errors.New("connection already released")

// connSize approximates the kernel and user-space buffers held by one open connection.
const connSize = 32 * 1024

// Dialer is satisfied by (*net.Dialer).DialContext.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

type Pool struct {
	t           *tier.Tier
	acc         *accountant.Accountant
	dial        Dialer
	idleTimeout time.Duration

	mu   sync.Mutex
	idle map[string][]string // addr -> entry keys, most recently released last
}

func New(t *tier.Tier, acc *accountant.Accountant, dial Dialer, idleTimeout time.Duration) *Pool {
	return &Pool{
		t:           t,
		acc:         acc,
		dial:        dial,
		idleTimeout: idleTimeout,
		idle:        make(map[string][]string),
	}
}

// CloseOnEvict is the tier OnEvict callback of the connections tier.
func CloseOnEvict(e *model.Entry) {
	if c, ok := e.Value().(net.Conn); ok && c != nil {
		_ = c.Close()
	}
}

// Conn is a pooled connection. Return it with Release, or Discard it when broken.
type Conn struct {
	net.Conn
	ID   uuid.UUID
	Addr string

	p    *Pool
	e    *model.Entry
	once sync.Once
}

// Get reuses an idle connection to addr or dials a new one. The dial is aborted with
// "abort background connections".
func (p *Pool) Get(ctx context.Context, network, addr string) (*Conn, error) {
	if c := p.reuse(addr); c != nil {
		return c, nil
	}

	id := uuid.New()
	key := addr + "#" + id.String()
	e, created := p.t.Claim(key)
	if !created {
		return nil, fmt.Errorf("dial %s: %w", addr, tier.ErrDuplicateKey)
	}

	ctx, cancel := p.acc.Bind(ctx)
	defer cancel()

	conn, err := p.dial(ctx, network, addr)
	if ctx.Err() != nil {
		if conn != nil {
			_ = conn.Close()
		}
		err = context.Cause(ctx)
	}
	if err != nil {
		_ = p.t.Abort(e)
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if err = p.t.Attach(e, conn); err == nil {
		if err = p.t.Resize(e, connSize); err == nil {
			err = p.t.Finalize(e)
		}
	}
	if err != nil {
		// aborted while dialing
		_ = conn.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Conn{Conn: conn, ID: id, Addr: addr, p: p, e: e}, nil
}

// Release returns the connection to the pool as idle.
func (c *Conn) Release() error {
	err := ErrConnReleased
	c.once.Do(func() {
		c.e.SetExpiresAt(c.p.expiry())
		if err = c.p.t.Unlock(c.e); err != nil {
			// destroyed while in use (abort all); the tier closed it
			return
		}
		c.p.pushIdle(c.Addr, c.e.Key())
	})
	return err
}

// Discard closes the connection and removes it from the pool.
func (c *Conn) Discard() error {
	err := ErrConnReleased
	c.once.Do(func() {
		_ = c.p.t.Unlock(c.e)
		if err = c.p.t.Evict(c.e); err != nil {
			err = c.Conn.Close()
		}
	})
	return err
}

// Idle returns the number of pooled idle connections to addr.
func (p *Pool) Idle(addr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneUnlocked(addr)
	return len(p.idle[addr])
}

func (p *Pool) reuse(addr string) *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := cachedtime.UnixNano()
	keys := p.idle[addr]
	for len(keys) > 0 {
		key := keys[len(keys)-1]
		keys = keys[:len(keys)-1]

		e, ok := p.t.Peek(key)
		if !ok || e.State() != model.Ready || e.IsLocked() {
			continue
		}
		if e.IsExpired(now) {
			_ = p.t.Evict(e)
			continue
		}
		if err := p.t.Lock(e); err != nil {
			continue
		}
		conn, _ := e.Value().(net.Conn)
		id, _ := uuid.Parse(key[len(addr)+1:])
		p.idle[addr] = keys
		return &Conn{Conn: conn, ID: id, Addr: addr, p: p, e: e}
	}
	delete(p.idle, addr)
	return nil
}

func (p *Pool) pushIdle(addr, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneUnlocked(addr)
	p.idle[addr] = append(p.idle[addr], key)
}

// pruneUnlocked drops keys of connections that left the tier.
func (p *Pool) pruneUnlocked(addr string) {
	keys := p.idle[addr][:0]
	for _, key := range p.idle[addr] {
		if _, ok := p.t.Peek(key); ok {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		delete(p.idle, addr)
		return
	}
	p.idle[addr] = keys
}

func (p *Pool) expiry() int64 {
	if p.idleTimeout <= 0 {
		return 0
	}
	return cachedtime.UnixNano() + p.idleTimeout.Nanoseconds()
}
