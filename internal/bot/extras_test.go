package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/jusunglee/maxbot/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCalcCommand(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, int64(7), "🧮 (2+3)*4 = 20").Return(nil).Once()

	d, _ := newTestDispatcher(t, sender, DefaultConfig())
	d.Register("calc", CalcCommand)

	d.Dispatch(context.Background(), "poll", testUpdate(7, "/calc (2+3) * 4"))
	sender.AssertExpectations(t)
}

func TestCalcCommandRejectsBadExpression(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, int64(7), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "Invalid expression")
	})).Return(nil).Once()

	d, _ := newTestDispatcher(t, sender, DefaultConfig())
	d.Register("calc", CalcCommand)

	d.Dispatch(context.Background(), "poll", testUpdate(7, "/calc 2+"))
	sender.AssertExpectations(t)
}

func TestWeatherCommandRemembersCity(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, int64(7), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "Weather in Moscow")
	})).Return(nil).Twice()

	d, _ := newTestDispatcher(t, sender, DefaultConfig())
	d.Register("weather", WeatherCommand)

	d.Dispatch(context.Background(), "poll", testUpdate(7, "/weather Moscow"))
	// No argument: the city comes from the session.
	d.Dispatch(context.Background(), "poll", testUpdate(7, "/weather"))
	sender.AssertExpectations(t)
}

func TestStatsCommandReportsCounters(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, int64(7), mock.Anything).Return(nil)

	d, _ := newTestDispatcher(t, sender, DefaultConfig())
	d.Register("stats", StatsCommand)

	d.Dispatch(context.Background(), "poll", testUpdate(7, "hello bot"))
	d.Dispatch(context.Background(), "poll", testUpdate(7, "/stats"))

	sender.AssertCalled(t, "SendMessage", mock.Anything, int64(7), mock.MatchedBy(func(text string) bool {
		// /stats itself is message number two; the count is read before
		// the command completes.
		return strings.Contains(text, "Messages sent: 2")
	}))
}

func TestGreetingHandler(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, int64(7), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "Hi there")
	})).Return(nil).Once()

	d, _ := newTestDispatcher(t, sender, DefaultConfig())
	d.OnText(GreetingHandler)

	d.Dispatch(context.Background(), "poll", testUpdate(7, "Привет, бот!"))
	sender.AssertExpectations(t)
}

func TestGreetingHandlerIgnoresOtherText(t *testing.T) {
	sender := &mockSender{}
	d, _ := newTestDispatcher(t, sender, DefaultConfig())
	d.OnText(GreetingHandler)

	d.Dispatch(context.Background(), "poll", testUpdate(7, "what time is it"))
	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestURLHandlerCountsLinks(t *testing.T) {
	sender := &mockSender{}
	d, st := newTestDispatcher(t, sender, DefaultConfig())
	d.OnText(URLHandler)

	d.Dispatch(context.Background(), "poll", testUpdate(7, "see https://example.com and http://go.dev"))

	n, err := st.Global(context.Background(), "urls_seen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAttachmentHandler(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, int64(7), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "report.pdf")
	})).Return(nil).Once()

	d, _ := newTestDispatcher(t, sender, DefaultConfig())
	d.OnText(AttachmentHandler)

	upd := update.Update{
		UpdateID: 1,
		Chat:     update.Chat{ID: 7},
		From:     update.User{ID: 7},
		Document: &update.Document{FileID: "f1", FileName: "report.pdf"},
	}
	d.Dispatch(context.Background(), "poll", upd)
	sender.AssertExpectations(t)
}
