package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jusunglee/maxbot/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// stubSource serves scripted batches, then blocks until ctx is done.
type stubSource struct {
	batches [][]update.Update
	calls   []int64
}

func (s *stubSource) GetUpdates(ctx context.Context, offset int64) ([]update.Update, error) {
	s.calls = append(s.calls, offset)
	if len(s.batches) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func TestPollerAdvancesOffset(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	d, _ := newTestDispatcher(t, sender, DefaultConfig())

	source := &stubSource{batches: [][]update.Update{
		{
			{UpdateID: 10, Chat: update.Chat{ID: 7}, From: update.User{ID: 7}, Text: "/help"},
			{UpdateID: 11, Chat: update.Chat{ID: 7}, From: update.User{ID: 7}, Text: "hi"},
		},
		{
			{UpdateID: 12, Chat: update.Chat{ID: 8}, From: update.User{ID: 8}, Text: "/time"},
		},
	}}

	p := NewPoller(testLogger(), source, d)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Each fetch asks for the id after the last dispatched update.
	assert.GreaterOrEqual(t, len(source.calls), 3)
	assert.Equal(t, int64(0), source.calls[0])
	assert.Equal(t, int64(12), source.calls[1])
	assert.Equal(t, int64(13), source.calls[2])
}

type failingSource struct {
	failures int
	source   stubSource
}

func (f *failingSource) GetUpdates(ctx context.Context, offset int64) ([]update.Update, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient network error")
	}
	return f.source.GetUpdates(ctx, offset)
}

func TestPollerSurvivesFetchErrors(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, int64(7), mock.Anything).Return(nil).Once()

	d, _ := newTestDispatcher(t, sender, DefaultConfig())

	source := &failingSource{
		failures: 1,
		source: stubSource{batches: [][]update.Update{
			{{UpdateID: 1, Chat: update.Chat{ID: 7}, From: update.User{ID: 7}, Text: "/help"}},
		}},
	}

	p := NewPoller(testLogger(), source, d)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = p.Run(ctx)

	sender.AssertExpectations(t)
}
