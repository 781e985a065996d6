// Package bot contains the update dispatcher: the routing state machine
// that turns an inbound update into a handler invocation and durable
// side effects.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jusunglee/maxbot/internal/format"
	"github.com/jusunglee/maxbot/internal/metrics"
	"github.com/jusunglee/maxbot/internal/ratelimit"
	"github.com/jusunglee/maxbot/internal/session"
	"github.com/jusunglee/maxbot/internal/store"
	"github.com/jusunglee/maxbot/internal/update"
)

const (
	unknownCommandReply = "Command not recognized: /%s\nUse /help to list available commands."
	handlerFailedReply  = "An error occurred while executing the command."
	throttledReply      = "⏳ Too many requests. Please wait a moment and try again."
)

// Sender delivers a single already-chunked message to a chat. The
// maxapi client satisfies it in production.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	// MaxMessageLength caps outbound messages; longer replies are split.
	MaxMessageLength int
	// SilentThrottle drops rate-limited updates instead of replying
	// with a throttling notice.
	SilentThrottle bool
	// AdminIDs are the user identities allowed to run /admin.
	AdminIDs []int64
}

func DefaultConfig() Config {
	return Config{MaxMessageLength: format.MaxMessageLength}
}

// CommandHandler handles one command invocation with its parsed
// arguments. Returned errors are logged and converted into a generic
// failure reply; they never stop the intake loop.
type CommandHandler func(ctx context.Context, env *Env, args []string, upd update.Update) error

// TextHandler handles a non-command update. Every registered handler
// runs in registration order; failures are isolated per handler.
type TextHandler func(ctx context.Context, env *Env, upd update.Update) error

type Dispatcher struct {
	log      *slog.Logger
	sender   Sender
	limiter  *ratelimit.Limiter
	sessions *session.Store
	store    store.Store
	config   Config
	env      *Env
	now      func() time.Time

	mu           sync.RWMutex
	commands     map[string]CommandHandler
	textHandlers []TextHandler

	ready atomic.Bool
}

func New(
	log *slog.Logger,
	sender Sender,
	limiter *ratelimit.Limiter,
	sessions *session.Store,
	st store.Store,
	config Config,
) *Dispatcher {
	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = format.MaxMessageLength
	}
	d := &Dispatcher{
		log:      log,
		sender:   sender,
		limiter:  limiter,
		sessions: sessions,
		store:    st,
		config:   config,
		now:      time.Now,
		commands: make(map[string]CommandHandler),
	}
	d.env = &Env{Log: log, Sessions: sessions, Store: st, d: d}
	d.registerBuiltins()
	return d
}

// Register binds a command token to a handler. The token is matched
// case-insensitively and without its leading slash; registering an
// existing token overwrites the previous handler.
func (d *Dispatcher) Register(name string, h CommandHandler) {
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	d.mu.Lock()
	d.commands[name] = h
	d.mu.Unlock()
	d.log.Info("registered command", "command", "/"+name)
}

// OnText appends a fallback handler for non-command updates.
func (d *Dispatcher) OnText(h TextHandler) {
	d.mu.Lock()
	d.textHandlers = append(d.textHandlers, h)
	d.mu.Unlock()
}

// CommandNames returns the registered command tokens, sorted.
func (d *Dispatcher) CommandNames() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	d.mu.RUnlock()
	sort.Strings(names)
	return names
}

// MarkReady flips the health flag once wiring is complete.
func (d *Dispatcher) MarkReady() {
	d.ready.Store(true)
}

func (d *Dispatcher) Ready() bool {
	return d.ready.Load()
}

// Dispatch routes one validated update. It never returns an error and
// never panics: a single bad handler or user must not take down the
// intake loop. source tags metrics with the ingress path.
func (d *Dispatcher) Dispatch(ctx context.Context, source string, upd update.Update) {
	outcome := d.dispatch(ctx, upd)
	metrics.UpdatesTotal.WithLabelValues(source, outcome).Inc()
}

func (d *Dispatcher) dispatch(ctx context.Context, upd update.Update) (outcome string) {
	log := d.log.With("chat_id", upd.Chat.ID, "user_id", upd.From.ID, "update_id", upd.UpdateID)

	cmd, args, isCommand := parseCommand(upd.Text)

	if upd.From.ID != 0 && !d.limiter.Allow(upd.From.ID) {
		metrics.RateLimitHits.Inc()
		log.Warn("update throttled")
		if !d.config.SilentThrottle {
			d.env.reply(ctx, upd.Chat.ID, throttledReply)
		}
		return "throttled"
	}

	d.recordUpdate(ctx, upd)

	if isCommand {
		return d.dispatchCommand(ctx, log, cmd, args, upd)
	}
	return d.dispatchText(ctx, log, upd)
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, log *slog.Logger, cmd string, args []string, upd update.Update) string {
	d.mu.RLock()
	handler := d.commands[cmd]
	d.mu.RUnlock()

	if handler == nil {
		log.Info("unknown command", "command", cmd)
		d.env.reply(ctx, upd.Chat.ID, fmt.Sprintf(unknownCommandReply, cmd))
		return "completed"
	}

	metrics.CommandsTotal.WithLabelValues(cmd).Inc()

	if err := d.invokeCommand(ctx, handler, args, upd); err != nil {
		metrics.HandlerErrors.WithLabelValues("command").Inc()
		log.Error("command failed", "command", cmd, "error", err)
		d.env.reply(ctx, upd.Chat.ID, handlerFailedReply)
		return "errored"
	}

	d.recordCommandExecuted(ctx, upd)
	return "completed"
}

// invokeCommand runs a handler with panic isolation.
func (d *Dispatcher) invokeCommand(ctx context.Context, handler CommandHandler, args []string, upd update.Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, d.env, args, upd)
}

func (d *Dispatcher) dispatchText(ctx context.Context, log *slog.Logger, upd update.Update) string {
	d.mu.RLock()
	handlers := make([]TextHandler, len(d.textHandlers))
	copy(handlers, d.textHandlers)
	d.mu.RUnlock()

	outcome := "completed"
	for i, h := range handlers {
		if err := d.invokeText(ctx, h, upd); err != nil {
			metrics.HandlerErrors.WithLabelValues("text").Inc()
			log.Error("text handler failed", "handler_index", i, "error", err)
			outcome = "errored"
		}
	}
	return outcome
}

func (d *Dispatcher) invokeText(ctx context.Context, h TextHandler, upd update.Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, d.env, upd)
}

// recordUpdate accumulates the durable per-user and global counters for
// an admitted update.
func (d *Dispatcher) recordUpdate(ctx context.Context, upd update.Update) {
	if _, err := d.store.AddGlobal(ctx, store.GlobalMessagesProcessed, 1); err != nil {
		d.log.Error("updating global counters", "error", err)
	}

	if upd.From.ID == 0 {
		return
	}
	_, err := d.store.UpdateUser(ctx, upd.From.ID, func(r *store.UserRecord) {
		if upd.From.Username != "" {
			r.Username = upd.From.Username
		}
		r.LastSeen = d.now()
		r.MessagesSent++
	})
	if err != nil {
		d.log.Error("updating user record", "user_id", upd.From.ID, "error", err)
	}
}

// recordCommandExecuted runs only after a handler completed without
// error, so the commands counters reflect executed commands.
func (d *Dispatcher) recordCommandExecuted(ctx context.Context, upd update.Update) {
	if _, err := d.store.AddGlobal(ctx, store.GlobalCommandsExecuted, 1); err != nil {
		d.log.Error("updating global counters", "error", err)
	}
	if upd.From.ID == 0 {
		return
	}
	_, err := d.store.UpdateUser(ctx, upd.From.ID, func(r *store.UserRecord) {
		r.CommandsUsed++
	})
	if err != nil {
		d.log.Error("updating user record", "user_id", upd.From.ID, "error", err)
	}
}

func (d *Dispatcher) isAdmin(userID int64) bool {
	for _, id := range d.config.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// parseCommand splits "/cmd arg1 arg2" into a lower-cased token and its
// arguments. An "@botname" suffix on the token is stripped. Text that
// does not start with the prefix is not a command.
func parseCommand(text string) (cmd string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}

	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil, false
	}

	cmd = strings.ToLower(fields[0])
	if at := strings.Index(cmd, "@"); at != -1 {
		cmd = cmd[:at]
	}
	return cmd, fields[1:], true
}

// Env is the capability object handed to handlers: everything a handler
// may touch, injected explicitly instead of reached through globals.
type Env struct {
	Log      *slog.Logger
	Sessions *session.Store
	Store    store.Store

	d *Dispatcher
}

// Reply sends text to a chat, splitting it into platform-sized chunks.
// Chunks are delivered in order; the first send failure aborts the rest.
func (e *Env) Reply(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range format.Split(text, e.d.config.MaxMessageLength) {
		if err := e.d.sender.SendMessage(ctx, chatID, chunk); err != nil {
			return fmt.Errorf("sending reply: %w", err)
		}
	}
	return nil
}

// CommandNames exposes the registry to handlers (used by /help).
func (e *Env) CommandNames() []string {
	return e.d.CommandNames()
}

// IsAdmin reports whether userID is in the configured admin list.
func (e *Env) IsAdmin(userID int64) bool {
	return e.d.isAdmin(userID)
}

// reply is Reply with errors logged instead of returned, for the
// dispatcher's own notices.
func (e *Env) reply(ctx context.Context, chatID int64, text string) {
	if err := e.Reply(ctx, chatID, text); err != nil {
		e.Log.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}
