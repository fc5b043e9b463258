package model

import (
	"container/list"
	"github.com/Borislavv/go-ash-tiers/internal/shared/bytes"
	"github.com/Borislavv/go-ash-tiers/internal/shared/cachedtime"
	"sync/atomic"
)

// Entry is a single cached object owned by exactly one tier.
// Mutators are package-internal to the tier (they expect the tier mutex held);
// readers are atomic so reporting never has to take that mutex.
type Entry struct {
	key       string
	size      atomic.Int64 // accounted bytes
	locks     atomic.Int32 // >0 means pinned
	state     atomic.Int32 // State
	touchedAt atomic.Int64 // unix nano, LRU order tiebreak and reporting
	createdAt int64        // unix nano
	expiresAt atomic.Int64 // unix nano, 0 = never
	digest    atomic.Uint64

	payload []byte // guarded by the tier mutex
	value   any    // guarded by the tier mutex

	// Elem is the position in the owning tier's LRU list.
	Elem *list.Element
}

func NewEntry(key string) *Entry {
	now := cachedtime.UnixNano()
	e := &Entry{key: key, createdAt: now}
	e.touchedAt.Store(now)
	e.state.Store(int32(Loading))
	return e
}

func (e *Entry) Key() string       { return e.key }
func (e *Entry) Size() int64       { return e.size.Load() }
func (e *Entry) LockCount() int32  { return e.locks.Load() }
func (e *Entry) IsLocked() bool    { return e.locks.Load() > 0 }
func (e *Entry) State() State      { return State(e.state.Load()) }
func (e *Entry) TouchedAt() int64  { return e.touchedAt.Load() }
func (e *Entry) CreatedAt() int64  { return e.createdAt }
func (e *Entry) ExpiresAt() int64  { return e.expiresAt.Load() }
func (e *Entry) Digest() uint64    { return e.digest.Load() }
func (e *Entry) IsDestroyed() bool { return e.State() == Destroyed }

// Evictable reports whether reclamation may pick this entry: unlocked and Ready.
func (e *Entry) Evictable() bool {
	return e.locks.Load() == 0 && e.State() == Ready
}

// IsExpired reports whether the entry carries an expiry that passed at now.
func (e *Entry) IsExpired(now int64) bool {
	exp := e.expiresAt.Load()
	return exp > 0 && now >= exp
}

/**
 * Tier-side mutators. Callers hold the tier mutex.
 */

func (e *Entry) Touch() { e.touchedAt.Store(cachedtime.UnixNano()) }

func (e *Entry) SetState(s State) { e.state.Store(int32(s)) }

// AddSize changes the accounted size and returns the new value.
func (e *Entry) AddSize(delta int64) int64 { return e.size.Add(delta) }

func (e *Entry) IncLocks() int32 { return e.locks.Add(1) }

// DecLocks decrements the lock count unless it is already zero.
func (e *Entry) DecLocks() (int32, bool) {
	for {
		cur := e.locks.Load()
		if cur <= 0 {
			return cur, false
		}
		if e.locks.CompareAndSwap(cur, cur-1) {
			return cur - 1, true
		}
	}
}

// ResetLocks drops every lock and returns how many were held.
func (e *Entry) ResetLocks() int32 { return e.locks.Swap(0) }

func (e *Entry) SetExpiresAt(unixNano int64) { e.expiresAt.Store(unixNano) }

func (e *Entry) AppendPayload(data []byte) { e.payload = append(e.payload, data...) }

// SealPayload computes the digest of the accumulated payload.
func (e *Entry) SealPayload() { e.digest.Store(bytes.Digest(e.payload)) }

// Payload must only be read while the entry is locked or under the tier mutex.
func (e *Entry) Payload() []byte { return e.payload }

func (e *Entry) Value() any { return e.value }

func (e *Entry) SetValue(v any) { e.value = v }
