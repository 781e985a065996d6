// Package session keeps ephemeral per-user conversation state with
// time-to-live eviction. Expiry is enforced on access, so a background
// reaper is only a memory optimization, never a correctness requirement.
package session

import (
	"sync"
	"time"
)

const reapInterval = 5 * time.Minute

type session struct {
	mu      sync.Mutex
	data    map[string]any
	touched time.Time
	dead    bool
}

type Store struct {
	ttl  time.Duration
	now  func() time.Time
	done chan struct{}
	once sync.Once

	mu       sync.RWMutex
	sessions map[int64]*session
}

func NewStore(ttl time.Duration) *Store {
	s := &Store{
		ttl:      ttl,
		now:      time.Now,
		done:     make(chan struct{}),
		sessions: make(map[int64]*session),
	}
	go s.reapLoop()
	return s
}

// Close stops the background reaper. The store itself remains usable
// after Close.
func (s *Store) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Store) sessionFor(userID int64) *session {
	s.mu.RLock()
	sess := s.sessions[userID]
	s.mu.RUnlock()
	if sess != nil {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess = s.sessions[userID]; sess == nil {
		sess = &session{data: make(map[string]any), touched: s.now()}
		s.sessions[userID] = sess
	}
	return sess
}

// acquire returns the user's session with its mutex held. A session the
// reaper removed after we resolved it is detached from the map; writes
// to it would be lost, so resolve again until we hold a live one.
func (s *Store) acquire(userID int64) *session {
	for {
		sess := s.sessionFor(userID)
		sess.mu.Lock()
		if !sess.dead {
			return sess
		}
		sess.mu.Unlock()
	}
}

// touch resets an expired session to empty and refreshes its age.
// Callers must hold sess.mu.
func (s *Store) touch(sess *session) {
	now := s.now()
	if now.Sub(sess.touched) > s.ttl {
		sess.data = make(map[string]any)
	}
	sess.touched = now
}

// Snapshot returns a copy of the user's session data. An expired session
// reads as empty, exactly as if it had never been created.
func (s *Store) Snapshot(userID int64) map[string]any {
	sess := s.acquire(userID)
	defer sess.mu.Unlock()
	s.touch(sess)

	out := make(map[string]any, len(sess.data))
	for k, v := range sess.data {
		out[k] = v
	}
	return out
}

// Value returns the stored value for key, or def when the key is absent
// or the session has expired.
func (s *Store) Value(userID int64, key string, def any) any {
	sess := s.acquire(userID)
	defer sess.mu.Unlock()
	s.touch(sess)

	if v, ok := sess.data[key]; ok {
		return v
	}
	return def
}

func (s *Store) SetValue(userID int64, key string, value any) {
	sess := s.acquire(userID)
	defer sess.mu.Unlock()
	s.touch(sess)
	sess.data[key] = value
}

// Clear removes all keys for the user. Idempotent.
func (s *Store) Clear(userID int64) {
	s.mu.RLock()
	sess := s.sessions[userID]
	s.mu.RUnlock()
	if sess == nil {
		return
	}

	sess.mu.Lock()
	sess.data = make(map[string]any)
	sess.touched = s.now()
	sess.mu.Unlock()
}

func (s *Store) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Reap()
		case <-s.done:
			return
		}
	}
}

// Reap drops sessions untouched beyond the TTL to reclaim memory.
func (s *Store) Reap() {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		if sess.touched.Before(cutoff) {
			sess.dead = true
			delete(s.sessions, id)
		}
		sess.mu.Unlock()
	}
}
