// Package ratelimit provides per-user sliding-window admission control.
// At most max requests are admitted in any trailing window; rejected
// attempts are not recorded.
package ratelimit

import (
	"sync"
	"time"
)

const compactInterval = 5 * time.Minute

type entry struct {
	mu     sync.Mutex
	stamps []time.Time
	dead   bool
}

type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time
	done   chan struct{}
	once   sync.Once

	mu      sync.RWMutex
	entries map[int64]*entry
}

func New(max int, window time.Duration) *Limiter {
	l := &Limiter{
		max:     max,
		window:  window,
		now:     time.Now,
		done:    make(chan struct{}),
		entries: make(map[int64]*entry),
	}
	go l.compactLoop()
	return l
}

// Close stops the background compaction goroutine. The limiter itself
// remains usable after Close.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) entryFor(userID int64) *entry {
	l.mu.RLock()
	e := l.entries[userID]
	l.mu.RUnlock()
	if e != nil {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e = l.entries[userID]; e == nil {
		e = &entry{}
		l.entries[userID] = e
	}
	return e
}

// Allow reports whether a request from userID is admitted right now.
// Admitted requests are counted against the window; rejections are not.
func (l *Limiter) Allow(userID int64) bool {
	var e *entry
	for {
		e = l.entryFor(userID)
		e.mu.Lock()
		if !e.dead {
			break
		}
		// Compact removed this entry from the map after we resolved it;
		// recording here would be lost. Resolve a live one.
		e.mu.Unlock()
	}
	defer e.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	pruned := e.stamps[:0]
	for _, t := range e.stamps {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= l.max {
		e.stamps = pruned
		return false
	}

	e.stamps = append(pruned, now)
	return true
}

// compactLoop drops identities whose windows have fully emptied so the
// map does not grow without bound.
func (l *Limiter) compactLoop() {
	ticker := time.NewTicker(compactInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Compact()
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) Compact() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.entries {
		e.mu.Lock()
		stale := true
		for _, t := range e.stamps {
			if t.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			e.dead = true
			delete(l.entries, id)
		}
		e.mu.Unlock()
	}
}
