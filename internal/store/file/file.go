// Package file implements store.Store as a single JSON document with
// top-level "users" and "stats" sections. In-memory state is the source
// of truth; Save snapshots under lock, then serializes and writes
// outside it, so a crash loses at most the delta since the last flush.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jusunglee/maxbot/internal/store"
)

type userEntry struct {
	mu  sync.Mutex
	rec store.UserRecord
}

type document struct {
	Users map[int64]store.UserRecord `json:"users"`
	Stats map[string]int64           `json:"stats"`
}

type Config struct {
	RetryAttempts int
	RetryDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{RetryAttempts: 3, RetryDelay: 5 * time.Second}
}

type Store struct {
	path   string
	log    *slog.Logger
	config Config
	now    func() time.Time

	mu    sync.RWMutex
	users map[int64]*userEntry

	statsMu sync.Mutex
	stats   map[string]int64

	saveMu sync.Mutex
}

// Open loads the document at path. A missing or unreadable file yields
// an empty store with a warning, never a startup failure.
func Open(path string, log *slog.Logger, config Config) (*Store, error) {
	s := &Store{
		path:   path,
		log:    log,
		config: config,
		now:    time.Now,
		users:  make(map[int64]*userEntry),
		stats:  make(map[string]int64),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info("no existing data file, starting empty", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading data file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn("data file unreadable, starting empty", "path", path, "error", err)
		return s, nil
	}

	for id, rec := range doc.Users {
		s.users[id] = &userEntry{rec: rec}
	}
	if doc.Stats != nil {
		s.stats = doc.Stats
	}
	log.Info("loaded data file", "path", path, "users", len(s.users))
	return s, nil
}

func (s *Store) entryFor(userID int64) *userEntry {
	s.mu.RLock()
	e := s.users[userID]
	s.mu.RUnlock()
	if e != nil {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.users[userID]; e == nil {
		e = &userEntry{rec: store.UserRecord{ID: userID}}
		s.users[userID] = e
	}
	return e
}

func (s *Store) User(ctx context.Context, userID int64) (store.UserRecord, error) {
	s.mu.RLock()
	e := s.users[userID]
	s.mu.RUnlock()
	if e == nil {
		// Fresh record, not persisted until the first mutation.
		return store.UserRecord{ID: userID}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID int64, fn func(*store.UserRecord)) (store.UserRecord, error) {
	e := s.entryFor(userID)

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.rec)
	e.rec.ID = userID
	if e.rec.FirstSeen.IsZero() {
		if e.rec.LastSeen.IsZero() {
			e.rec.LastSeen = s.now()
		}
		e.rec.FirstSeen = e.rec.LastSeen
	}
	if e.rec.LastSeen.Before(e.rec.FirstSeen) {
		e.rec.LastSeen = e.rec.FirstSeen
	}
	return e.rec, nil
}

func (s *Store) Users(ctx context.Context) ([]store.UserRecord, error) {
	s.mu.RLock()
	entries := make([]*userEntry, 0, len(s.users))
	for _, e := range s.users {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]store.UserRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec)
		e.mu.Unlock()
	}
	return out, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *Store) Global(ctx context.Context, name string) (int64, error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats[name], nil
}

func (s *Store) SetGlobal(ctx context.Context, name string, value int64) error {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats[name] = value
	return nil
}

func (s *Store) AddGlobal(ctx context.Context, name string, delta int64) (int64, error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats[name] += delta
	return s.stats[name], nil
}

// snapshot copies the full state. Each record is copied under its own
// lock; no lock is held across serialization or I/O.
func (s *Store) snapshot() document {
	s.mu.RLock()
	entries := make(map[int64]*userEntry, len(s.users))
	for id, e := range s.users {
		entries[id] = e
	}
	s.mu.RUnlock()

	doc := document{
		Users: make(map[int64]store.UserRecord, len(entries)),
		Stats: make(map[string]int64),
	}
	for id, e := range entries {
		e.mu.Lock()
		doc.Users[id] = e.rec
		e.mu.Unlock()
	}

	s.statsMu.Lock()
	for k, v := range s.stats {
		doc.Stats[k] = v
	}
	s.statsMu.Unlock()

	return doc
}

// Save persists the full state, retrying with backoff per Config. The
// final error is returned to the caller; partial writes never become
// visible because the document lands via rename.
func (s *Store) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	doc := s.snapshot()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling data: %w", err)
	}

	attempts := max(s.config.RetryAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = s.writeFile(data); lastErr == nil {
			return nil
		}
		s.log.Warn("save failed", "path", s.path, "attempt", attempt, "error", lastErr)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", store.ErrWrite, context.Cause(ctx))
		case <-time.After(s.config.RetryDelay):
		}
	}
	return fmt.Errorf("%w: %w", store.ErrWrite, lastErr)
}

func (s *Store) writeFile(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Save(ctx)
}
