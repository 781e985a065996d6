package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jusunglee/maxbot/internal/bot"
	"github.com/jusunglee/maxbot/internal/ratelimit"
	"github.com/jusunglee/maxbot/internal/session"
	"github.com/jusunglee/maxbot/internal/store/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	sent chan string
}

func (c *captureSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	c.sent <- text
	return nil
}

func newTestServer(t *testing.T) (*Server, *Validator, *captureSender) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := file.Open(filepath.Join(t.TempDir(), "bot.json"), log, file.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sender := &captureSender{sent: make(chan string, 16)}
	d := bot.New(log, sender, ratelimit.New(100, time.Minute), session.NewStore(time.Hour), st, bot.DefaultConfig())
	d.MarkReady()

	v := NewValidator("shared-secret")
	return NewServer(log, 0, v, d, nil), v, sender
}

func postWebhook(t *testing.T, srv *Server, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	srv, _, sender := newTestServer(t)
	body := []byte(`{"update_id":1,"chat":{"id":7},"from":{"id":7},"text":"/help"}`)

	rec := postWebhook(t, srv, body, "deadbeef")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postWebhook(t, srv, body, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	select {
	case text := <-sender.sent:
		t.Fatalf("unsigned push must not reach the dispatcher, got send %q", text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhookRejectsMalformedUpdate(t *testing.T) {
	srv, v, _ := newTestServer(t)

	body := []byte(`{not json`)
	rec := postWebhook(t, srv, body, v.Sign(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Well-formed JSON without a chat id is still undeliverable.
	body = []byte(`{"update_id":1,"from":{"id":7},"text":"hi"}`)
	rec = postWebhook(t, srv, body, v.Sign(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookDispatchesSignedUpdate(t *testing.T) {
	srv, v, sender := newTestServer(t)

	body := []byte(`{"update_id":1,"chat":{"id":7},"from":{"id":7,"username":"tester"},"text":"/help"}`)
	rec := postWebhook(t, srv, body, v.Sign(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])

	select {
	case text := <-sender.sent:
		assert.Contains(t, text, "/help")
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never sent the /help reply")
	}
}

type stubRegistrar struct {
	url string
}

func (s *stubRegistrar) SetWebhook(ctx context.Context, url string) error {
	s.url = url
	return nil
}

func TestSetWebhookRequiresSignature(t *testing.T) {
	srv, v, _ := newTestServer(t)
	reg := &stubRegistrar{}
	srv.registrar = reg

	body := []byte(`{"url":"https://bot.example.com/webhook"}`)

	req := httptest.NewRequest(http.MethodPost, "/set_webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, reg.url)

	req = httptest.NewRequest(http.MethodPost, "/set_webhook", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, v.Sign(body))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://bot.example.com/webhook", reg.url)
}

func TestWebhookHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, true, resp["bot_running"])
}
