package sqlite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jusunglee/maxbot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "bot.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUnseenUserIsFresh(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	rec, err := s.User(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(99), rec.ID)
	assert.Zero(t, rec.MessagesSent)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpdateUserPersists(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.UpdateUser(ctx, 1, func(r *store.UserRecord) {
		r.Username = "alice"
		r.MessagesSent++
		r.LastSeen = time.Now()
	})
	require.NoError(t, err)

	_, err = s.UpdateUser(ctx, 1, func(r *store.UserRecord) {
		r.MessagesSent++
		r.CommandsUsed++
	})
	require.NoError(t, err)

	rec, err := s.User(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, int64(2), rec.MessagesSent)
	assert.Equal(t, int64(1), rec.CommandsUsed)
	assert.False(t, rec.FirstSeen.After(rec.LastSeen))
}

func TestConcurrentUpdatesSameUser(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateUser(ctx, 1, func(r *store.UserRecord) {
				r.MessagesSent++
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.User(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.MessagesSent, "no update may be lost")
}

func TestGlobals(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	n, err := s.Global(ctx, store.GlobalMessagesProcessed)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.AddGlobal(ctx, store.GlobalMessagesProcessed, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.SetGlobal(ctx, store.GlobalBotStarted, 1))
	n, err = s.Global(ctx, store.GlobalBotStarted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
