// Package cachedtime serves a coarse wall clock refreshed by a single ticker.
// Touch timestamps are read on every lookup, so an atomic load replaces time.Now on hot paths.
package cachedtime

import (
	"context"
	"sync/atomic"
	"time"
)

const refreshEach = 10 * time.Millisecond

var (
	nowUnix atomic.Int64
	running atomic.Bool
)

// RunIfEnabled starts the refresher until ctx is done. When disabled (or not started)
// every read falls back to time.Now.
func RunIfEnabled(ctx context.Context, enabled bool) {
	if !enabled || !running.CompareAndSwap(false, true) {
		return
	}
	nowUnix.Store(time.Now().UnixNano())

	go func() {
		ticker := time.NewTicker(refreshEach)
		defer ticker.Stop()
		defer running.Store(false)

		for {
			select {
			case <-ctx.Done():
				return
			case tt := <-ticker.C:
				nowUnix.Store(tt.UnixNano())
			}
		}
	}()
}

func Now() time.Time {
	if !running.Load() {
		return time.Now()
	}
	return time.Unix(0, nowUnix.Load())
}

func UnixNano() int64 {
	if !running.Load() {
		return time.Now().UnixNano()
	}
	return nowUnix.Load()
}

func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
