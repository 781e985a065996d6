package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backdate(l *Limiter, userID int64, n int, age time.Duration) {
	e := l.entryFor(userID)
	e.mu.Lock()
	t := time.Now().Add(-age)
	for range n {
		e.stamps = append(e.stamps, t)
	}
	e.mu.Unlock()
}

func TestAllowsUpToLimit(t *testing.T) {
	l := New(2, time.Second)
	require.True(t, l.Allow(1))
	require.True(t, l.Allow(1))
	assert.False(t, l.Allow(1), "request beyond limit should be denied")
}

func TestRejectionIsNotRecorded(t *testing.T) {
	l := New(1, time.Minute)
	require.True(t, l.Allow(1))

	// Repeated rejections must not extend the window.
	for range 5 {
		assert.False(t, l.Allow(1))
	}
	e := l.entryFor(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Len(t, e.stamps, 1)
}

func TestIsolatesUsers(t *testing.T) {
	l := New(3, time.Minute)
	for range 3 {
		l.Allow(1)
	}
	assert.False(t, l.Allow(1))
	assert.True(t, l.Allow(2), "different user should not be affected")
}

func TestResetsAfterWindow(t *testing.T) {
	l := New(3, time.Minute)
	backdate(l, 1, 3, time.Minute+time.Second)
	assert.True(t, l.Allow(1), "should allow after old entries expire")
}

func TestSlidingWindowIsNotFixedBucket(t *testing.T) {
	l := New(2, time.Minute)

	// Two admissions near the start of the window, still inside it: a
	// third attempt just before the window closes stays rejected.
	backdate(l, 1, 2, time.Minute-time.Second)
	assert.False(t, l.Allow(1))
}

func TestCompactReleasesEmptyWindows(t *testing.T) {
	l := New(2, time.Minute)
	backdate(l, 1, 2, 2*time.Minute)
	l.Compact()

	l.mu.RLock()
	_, exists := l.entries[1]
	l.mu.RUnlock()
	assert.False(t, exists)

	// Compaction must never produce a false rejection.
	assert.True(t, l.Allow(1))
}

func TestCompactDoesNotExtendAdmissions(t *testing.T) {
	l := New(1, time.Minute)

	// Resolve the entry, then compact while the window is empty: the
	// resolved pointer is now detached from the map. An admission must
	// still land in the live entry, so the limit holds.
	stale := l.entryFor(1)
	l.Compact()

	stale.mu.Lock()
	assert.True(t, stale.dead, "compacted entry should be marked dead")
	stale.mu.Unlock()

	require.True(t, l.Allow(1))
	assert.False(t, l.Allow(1), "second request within the window must be denied")
}

func TestCloseStopsCompaction(t *testing.T) {
	l := New(1, time.Minute)
	l.Close()
	l.Close() // idempotent

	// The limiter stays usable after Close.
	assert.True(t, l.Allow(1))
}

func TestConcurrentAccess(t *testing.T) {
	const max = 5
	l := New(max, time.Minute)
	var wg sync.WaitGroup
	allowed := make([]int, 10)

	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range max + 2 {
				if l.Allow(int64(i)) {
					allowed[i]++
				}
			}
		}()
	}
	wg.Wait()

	for i, count := range allowed {
		assert.Equal(t, max, count, "user %d should have exactly %d allowed requests", i, max)
	}
}
