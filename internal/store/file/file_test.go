package file

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

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot_data.json")
	s, err := Open(path, testLog(), Config{RetryAttempts: 1, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	return s, path
}

func TestUnseenUserIsFreshAndUnpersisted(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	rec, err := s.User(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.ID)
	assert.Zero(t, rec.MessagesSent)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "read alone must not persist the record")
}

func TestUpdateUserCreatesRecord(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	rec, err := s.UpdateUser(ctx, 42, func(r *store.UserRecord) {
		r.Username = "testuser"
		r.MessagesSent++
		r.LastSeen = time.Now()
	})
	require.NoError(t, err)
	assert.Equal(t, "testuser", rec.Username)
	assert.Equal(t, int64(1), rec.MessagesSent)
	assert.False(t, rec.FirstSeen.IsZero())
	assert.False(t, rec.FirstSeen.After(rec.LastSeen))

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()

	want, err := s.UpdateUser(ctx, 7, func(r *store.UserRecord) {
		r.Username = "roundtrip"
		r.MessagesSent = 3
		r.CommandsUsed = 2
		r.LastSeen = time.Now().Truncate(time.Second)
	})
	require.NoError(t, err)
	require.NoError(t, s.SetGlobal(ctx, store.GlobalBotStarted, 1))
	_, err = s.AddGlobal(ctx, store.GlobalMessagesProcessed, 5)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx))

	fresh, err := Open(path, testLog(), DefaultConfig())
	require.NoError(t, err)

	got, err := fresh.User(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, want.Username, got.Username)
	assert.Equal(t, want.MessagesSent, got.MessagesSent)
	assert.Equal(t, want.CommandsUsed, got.CommandsUsed)
	assert.True(t, want.FirstSeen.Equal(got.FirstSeen))
	assert.True(t, want.LastSeen.Equal(got.LastSeen))

	n, err := fresh.Global(ctx, store.GlobalMessagesProcessed)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestCorruptFileYieldsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := Open(path, testLog(), DefaultConfig())
	require.NoError(t, err, "corruption must never be fatal at load")

	count, err := s.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSaveFailureIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "bot_data.json")
	s := &Store{
		path:   path,
		log:    testLog(),
		config: Config{RetryAttempts: 2, RetryDelay: time.Millisecond},
		now:    time.Now,
		users:  map[int64]*userEntry{},
		stats:  map[string]int64{},
	}

	err := s.Save(context.Background())
	assert.ErrorIs(t, err, store.ErrWrite)
}

func TestConcurrentUpdatesSameUser(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	var wg sync.WaitGroup

	for range 100 {
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
	assert.Equal(t, int64(100), rec.MessagesSent, "no update may be lost")
}

func TestSaveDuringConcurrentMutation(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			_, _ = s.UpdateUser(ctx, 2, func(r *store.UserRecord) {
				r.MessagesSent++
			})
		}
	}()
	for range 10 {
		require.NoError(t, s.Save(ctx))
	}
	wg.Wait()
}
