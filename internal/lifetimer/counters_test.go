package lifetimer

import (
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

// TestLifetimerCounters_Snapshot verifies that lifetimer counters correctly track metrics.
func TestLifetimerCounters_Snapshot(t *testing.T) {
	c := newLifetimerCounters()

	scans, hits, items, bytes := c.snapshot()
	require.Equal(t, int64(0), scans)
	require.Equal(t, int64(0), hits)
	require.Equal(t, int64(0), items)
	require.Equal(t, int64(0), bytes)

	c.scans.Add(200)
	c.scanHits.Add(150)
	c.expiredItems.Add(100)
	c.expiredBytes.Add(4096)

	scans, hits, items, bytes = c.snapshot()
	require.Equal(t, int64(200), scans)
	require.Equal(t, int64(150), hits)
	require.Equal(t, int64(100), items)
	require.Equal(t, int64(4096), bytes)
}

// TestLifetimerCounters_Concurrent verifies thread-safety.
func TestLifetimerCounters_Concurrent(t *testing.T) {
	c := newLifetimerCounters()

	const numGoroutines = 10
	const opsPerGoroutine = 50

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Go(func() {
			for j := 0; j < opsPerGoroutine; j++ {
				c.scans.Add(1)
				c.expiredItems.Add(1)
			}
		})
	}
	wg.Wait()

	scans, _, items, _ := c.snapshot()
	require.Equal(t, int64(numGoroutines*opsPerGoroutine), scans)
	require.Equal(t, int64(numGoroutines*opsPerGoroutine), items)
}
