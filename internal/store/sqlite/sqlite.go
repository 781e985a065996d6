// Package sqlite implements store.Store on SQLite. Every mutation is
// written through immediately, so Save is a no-op kept for interface
// symmetry with the file backend.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jusunglee/maxbot/internal/store"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and on first use initializes) the database at path.
// A sqlite:// prefix is stripped.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	path = strings.TrimPrefix(path, "sqlite://")

	isNew := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		isNew = true
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	// One connection serializes the read-modify-write transactions in
	// UpdateUser; the busy timeout covers writers in other processes.
	db.SetMaxOpenConns(1)

	if isNew {
		if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing schema: %w", err)
		}
		log.Info("created new SQLite database", "path", path)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) User(ctx context.Context, userID int64) (store.UserRecord, error) {
	rec, err := s.getUser(ctx, s.db, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserRecord{ID: userID}, nil
	}
	return rec, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getUser(ctx context.Context, q querier, userID int64) (store.UserRecord, error) {
	var rec store.UserRecord
	err := q.QueryRowContext(ctx, `
		SELECT id, username, first_seen, last_seen, messages_sent, commands_used
		FROM users
		WHERE id = ?
	`, userID).Scan(&rec.ID, &rec.Username, &rec.FirstSeen, &rec.LastSeen, &rec.MessagesSent, &rec.CommandsUsed)
	return rec, err
}

func (s *Store) UpdateUser(ctx context.Context, userID int64, fn func(*store.UserRecord)) (store.UserRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.UserRecord{}, err
	}
	defer tx.Rollback()

	rec, err := s.getUser(ctx, tx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		rec = store.UserRecord{ID: userID}
	} else if err != nil {
		return store.UserRecord{}, err
	}

	fn(&rec)
	rec.ID = userID
	if rec.FirstSeen.IsZero() {
		if rec.LastSeen.IsZero() {
			rec.LastSeen = s.now()
		}
		rec.FirstSeen = rec.LastSeen
	}
	if rec.LastSeen.Before(rec.FirstSeen) {
		rec.LastSeen = rec.FirstSeen
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, username, first_seen, last_seen, messages_sent, commands_used)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			first_seen = excluded.first_seen,
			last_seen = excluded.last_seen,
			messages_sent = excluded.messages_sent,
			commands_used = excluded.commands_used
	`, rec.ID, rec.Username, rec.FirstSeen, rec.LastSeen, rec.MessagesSent, rec.CommandsUsed)
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("%w: %w", store.ErrWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return store.UserRecord{}, fmt.Errorf("%w: %w", store.ErrWrite, err)
	}
	return rec, nil
}

func (s *Store) Users(ctx context.Context) ([]store.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, first_seen, last_seen, messages_sent, commands_used
		FROM users
		ORDER BY first_seen
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.UserRecord
	for rows.Next() {
		var rec store.UserRecord
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.FirstSeen, &rec.LastSeen, &rec.MessagesSent, &rec.CommandsUsed); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func (s *Store) Global(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM globals WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return value, err
}

func (s *Store) SetGlobal(ctx context.Context, name string, value int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO globals (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrWrite, err)
	}
	return nil
}

func (s *Store) AddGlobal(ctx context.Context, name string, delta int64) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO globals (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = globals.value + excluded.value
	`, name, delta)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", store.ErrWrite, err)
	}
	return s.Global(ctx, name)
}

// Save is a no-op: SQLite writes through on every mutation.
func (s *Store) Save(ctx context.Context) error {
	return nil
}
