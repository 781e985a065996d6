// End-to-end smoke test. Runs the full stack against a fake MAX API
// server: polling intake, command dispatch, rate limiting, sessions,
// the durable store, and signed webhook ingress. No real credentials
// needed.
//
// Usage:
//
//	go run ./cmd/e2e
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jusunglee/maxbot/internal/bot"
	"github.com/jusunglee/maxbot/internal/logger"
	"github.com/jusunglee/maxbot/internal/maxapi"
	"github.com/jusunglee/maxbot/internal/ratelimit"
	"github.com/jusunglee/maxbot/internal/session"
	"github.com/jusunglee/maxbot/internal/store"
	"github.com/jusunglee/maxbot/internal/store/file"
	"github.com/jusunglee/maxbot/internal/update"
	"github.com/jusunglee/maxbot/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		slog.Error("E2E FAILED", "error", err)
		os.Exit(1)
	}
	slog.Info("E2E PASSED")
}

// fakeMAX records every sendMessage call and serves canned getUpdates
// batches.
type fakeMAX struct {
	mu      sync.Mutex
	sent    []string
	pending []update.Update
}

func (f *fakeMAX) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.sent = append(f.sent, req.Text)
		f.mu.Unlock()
		fmt.Fprint(w, `{"ok":true}`)
	})
	mux.HandleFunc("GET /getUpdates", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		batch := f.pending
		f.pending = nil
		f.mu.Unlock()
		resp := map[string]any{"ok": true, "result": batch}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func (f *fakeMAX) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeMAX) queue(updates ...update.Update) {
	f.mu.Lock()
	f.pending = append(f.pending, updates...)
	f.mu.Unlock()
}

func run() error {
	log := logger.New()
	ctx := context.Background()

	fake := &fakeMAX{}
	apiServer := httptest.NewServer(fake.handler())
	defer apiServer.Close()

	dir, err := os.MkdirTemp("", "maxbot-e2e")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	st, err := file.Open(filepath.Join(dir, "bot.json"), log, file.DefaultConfig())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	client := maxapi.NewClient("e2e-token", maxapi.WithBaseURL(apiServer.URL))
	dispatcher := bot.New(log, client, ratelimit.New(100, time.Minute), session.NewStore(time.Hour), st, bot.DefaultConfig())
	dispatcher.Register("calc", bot.CalcCommand)
	dispatcher.MarkReady()

	// Step 1: polling intake end to end.
	log.Info("step 1: polling intake")
	fake.queue(update.Update{
		UpdateID: 1,
		Chat:     update.Chat{ID: 42},
		From:     update.User{ID: 42, Username: "e2e"},
		Text:     "/calc (2+3)*4",
	})
	poller := bot.NewPoller(log, client, dispatcher)
	pollCtx, pollCancel := context.WithTimeout(ctx, 3*time.Second)
	_ = poller.Run(pollCtx)
	pollCancel()

	if !anyContains(fake.sentMessages(), "= 20") {
		return fmt.Errorf("expected a calc reply containing \"= 20\", got %v", fake.sentMessages())
	}

	// Step 2: counters persisted.
	log.Info("step 2: durable counters")
	rec, err := st.User(ctx, 42)
	if err != nil {
		return err
	}
	if rec.MessagesSent != 1 || rec.CommandsUsed != 1 {
		return fmt.Errorf("expected 1 message / 1 command for user 42, got %d / %d", rec.MessagesSent, rec.CommandsUsed)
	}
	if n, _ := st.Global(ctx, store.GlobalMessagesProcessed); n != 1 {
		return fmt.Errorf("expected 1 processed message globally, got %d", n)
	}

	// Step 3: signed webhook ingress.
	log.Info("step 3: webhook ingress")
	validator := webhook.NewValidator("e2e-secret")
	hook := webhook.NewServer(log, 0, validator, dispatcher, client)
	hookServer := httptest.NewServer(hook.Handler())
	defer hookServer.Close()

	body := []byte(`{"update_id":2,"chat":{"id":42},"from":{"id":42,"username":"e2e"},"text":"/echo webhook works"}`)
	req, _ := http.NewRequest(http.MethodPost, hookServer.URL+"/webhook", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, validator.Sign(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned %d, want 200", resp.StatusCode)
	}

	if err := waitFor(3*time.Second, func() bool {
		return anyContains(fake.sentMessages(), "webhook works")
	}); err != nil {
		return fmt.Errorf("echo reply never arrived: %w", err)
	}

	// Step 4: forged pushes are rejected.
	log.Info("step 4: signature rejection")
	req, _ = http.NewRequest(http.MethodPost, hookServer.URL+"/webhook", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, "deadbeef")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		return fmt.Errorf("forged webhook returned %d, want 403", resp.StatusCode)
	}

	// Step 5: store survives a reopen.
	log.Info("step 5: persistence across restart")
	if err := st.Save(ctx); err != nil {
		return err
	}
	reopened, err := file.Open(filepath.Join(dir, "bot.json"), log, file.DefaultConfig())
	if err != nil {
		return err
	}
	defer reopened.Close()
	rec, err = reopened.User(ctx, 42)
	if err != nil {
		return err
	}
	if rec.Username != "e2e" || rec.MessagesSent < 2 {
		return fmt.Errorf("reopened store lost user state: %+v", rec)
	}

	return nil
}

func anyContains(msgs []string, substr string) bool {
	for _, m := range msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func waitFor(timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(25 * time.Millisecond)
	}
	return fmt.Errorf("condition not met within %s", timeout)
}
