package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jusunglee/maxbot/internal/bot"
	"github.com/jusunglee/maxbot/internal/metrics"
	"github.com/jusunglee/maxbot/internal/update"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Registrar registers the public webhook URL with the platform. The
// maxapi client satisfies it.
type Registrar interface {
	SetWebhook(ctx context.Context, url string) error
}

// Server receives platform pushes, authenticates them, and hands the
// decoded updates to the dispatcher. It also serves health and metrics.
type Server struct {
	log        *slog.Logger
	httpServer *http.Server
	validator  *Validator
	dispatcher *bot.Dispatcher
	registrar  Registrar
}

func NewServer(log *slog.Logger, port int, validator *Validator, dispatcher *bot.Dispatcher, registrar Registrar) *Server {
	s := &Server{
		log:        log.With("component", "webhook"),
		validator:  validator,
		dispatcher: dispatcher,
		registrar:  registrar,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("POST /set_webhook", s.handleSetWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the underlying mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log := s.log.With("request_id", requestID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		metrics.WebhookRequests.WithLabelValues("read_error").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !s.validator.Validate(r.Header, body) {
		metrics.WebhookRequests.WithLabelValues("rejected").Inc()
		log.Warn("rejected webhook push with bad signature", "remote_addr", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	upd, err := update.Decode(body)
	if err != nil {
		metrics.WebhookRequests.WithLabelValues("malformed").Inc()
		if !errors.Is(err, update.ErrMissingChat) {
			log.Warn("failed to decode webhook payload", "error", err)
		}
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}

	metrics.WebhookRequests.WithLabelValues("accepted").Inc()

	// Acknowledge immediately so the platform does not redeliver while
	// a slow handler runs.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.dispatcher.Dispatch(ctx, "webhook", upd)
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

// handleSetWebhook re-registers the public URL with the platform. The
// request carries the same signature scheme as pushes, so only the
// secret holder can repoint the bot.
func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	if s.registrar == nil {
		http.Error(w, "webhook registration not configured", http.StatusNotImplemented)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !s.validator.Validate(r.Header, body) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	if err := s.registrar.SetWebhook(r.Context(), req.URL); err != nil {
		s.log.Error("webhook registration failed", "url", req.URL, "error", err)
		http.Error(w, "registration failed", http.StatusBadGateway)
		return
	}

	s.log.Info("webhook registered", "url", req.URL)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"bot_running": s.dispatcher.Ready(),
		"timestamp":   time.Now().Unix(),
	})
}

func (s *Server) Start() error {
	s.log.Info("starting webhook server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webhook server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
