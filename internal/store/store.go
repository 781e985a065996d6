// Package store defines the durable persistence layer for per-user
// records and global counters. Backends live in subpackages: a JSON
// document file and a SQLite database.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrWrite is wrapped by backends when persisting state fails. Callers
// retry per policy; the error is never swallowed.
var ErrWrite = errors.New("store write failed")

// UserRecord is the durable per-user state. Counters only ever grow and
// FirstSeen never trails LastSeen.
type UserRecord struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MessagesSent int64     `json:"messages_sent"`
	CommandsUsed int64     `json:"commands_used"`
}

// Well-known global counter names.
const (
	GlobalMessagesProcessed = "messages_processed"
	GlobalCommandsExecuted  = "commands_executed"
	GlobalBotStarted        = "bot_started"
)

// Store is the durable key-value persistence contract.
//
// User returns a fresh zero-counter record for an unseen identity
// without persisting it; the record exists durably only after the first
// UpdateUser. Save flushes the full state to stable storage; backends
// that write through on every mutation may make it a no-op.
type Store interface {
	User(ctx context.Context, userID int64) (UserRecord, error)
	UpdateUser(ctx context.Context, userID int64, fn func(*UserRecord)) (UserRecord, error)
	Users(ctx context.Context) ([]UserRecord, error)
	CountUsers(ctx context.Context) (int64, error)

	Global(ctx context.Context, name string) (int64, error)
	SetGlobal(ctx context.Context, name string, value int64) error
	AddGlobal(ctx context.Context, name string, delta int64) (int64, error)

	Save(ctx context.Context) error
	Close() error
}
