package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jusunglee/maxbot/internal/store"
	"github.com/jusunglee/maxbot/internal/update"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const adminHelp = `🔧 Admin commands:

/admin stats - Bot statistics
/admin users - List known users
/admin broadcast <message> - Send to all users
/admin shutdown - Stop the bot`

const maxBroadcastConcurrency = 5

// BroadcastOutcome records the delivery result for one recipient.
// Failures are reported per recipient, never silently swallowed.
type BroadcastOutcome struct {
	UserID int64
	Err    error
}

// AdminCommand returns the /admin handler. stop is invoked on
// "/admin shutdown" to end the intake loop gracefully.
func AdminCommand(stop context.CancelCauseFunc) CommandHandler {
	return func(ctx context.Context, env *Env, args []string, upd update.Update) error {
		if !env.IsAdmin(upd.From.ID) {
			return env.Reply(ctx, upd.Chat.ID, "❌ You do not have administrator rights.")
		}

		if len(args) == 0 {
			return env.Reply(ctx, upd.Chat.ID, adminHelp)
		}

		switch strings.ToLower(args[0]) {
		case "stats":
			return adminStats(ctx, env, upd.Chat.ID)
		case "users":
			return adminUsers(ctx, env, upd.Chat.ID)
		case "broadcast":
			if len(args) < 2 {
				return env.Reply(ctx, upd.Chat.ID, "Usage: /admin broadcast <message>")
			}
			return adminBroadcast(ctx, env, upd.Chat.ID, strings.Join(args[1:], " "))
		case "shutdown":
			if err := env.Reply(ctx, upd.Chat.ID, "🔄 Shutting down..."); err != nil {
				env.Log.Error("failed to acknowledge shutdown", "error", err)
			}
			stop(fmt.Errorf("shutdown requested by admin %d", upd.From.ID))
			return nil
		default:
			return env.Reply(ctx, upd.Chat.ID, adminHelp)
		}
	}
}

func adminStats(ctx context.Context, env *Env, chatID int64) error {
	userCount, err := env.Store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	messages, err := env.Store.Global(ctx, store.GlobalMessagesProcessed)
	if err != nil {
		return fmt.Errorf("reading global counters: %w", err)
	}
	commands, err := env.Store.Global(ctx, store.GlobalCommandsExecuted)
	if err != nil {
		return fmt.Errorf("reading global counters: %w", err)
	}

	return env.Reply(ctx, chatID, strings.TrimSpace(fmt.Sprintf(`
📊 Bot statistics:

👥 Total users: %d
💬 Messages processed: %d
⚡ Commands executed: %d`, userCount, messages, commands)))
}

const adminUsersShown = 10

func adminUsers(ctx context.Context, env *Env, chatID int64) error {
	users, err := env.Store.Users(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	if len(users) == 0 {
		return env.Reply(ctx, chatID, "No users yet.")
	}

	shown := users[:min(len(users), adminUsersShown)]
	lines := lo.Map(shown, func(u store.UserRecord, _ int) string {
		name := u.Username
		if name == "" {
			name = "Unknown"
		}
		return fmt.Sprintf("• %s (ID: %d)", name, u.ID)
	})

	text := "👥 Bot users:\n\n" + strings.Join(lines, "\n")
	if len(users) > adminUsersShown {
		text += fmt.Sprintf("\n\n... and %d more", len(users)-adminUsersShown)
	}
	return env.Reply(ctx, chatID, text)
}

// adminBroadcast fans the message out to every known user with bounded
// concurrency and reports a per-recipient outcome summary.
func adminBroadcast(ctx context.Context, env *Env, chatID int64, message string) error {
	users, err := env.Store.Users(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	text := "📢 Announcement:\n\n" + message

	var mu sync.Mutex
	outcomes := make([]BroadcastOutcome, 0, len(users))

	var eg errgroup.Group
	eg.SetLimit(maxBroadcastConcurrency)
	for _, u := range users {
		eg.Go(func() error {
			sendErr := env.Reply(ctx, u.ID, text)
			mu.Lock()
			outcomes = append(outcomes, BroadcastOutcome{UserID: u.ID, Err: sendErr})
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait() // individual failures are carried in outcomes

	failed := lo.Filter(outcomes, func(o BroadcastOutcome, _ int) bool {
		return o.Err != nil
	})
	for _, o := range failed {
		env.Log.Warn("broadcast delivery failed", "user_id", o.UserID, "error", o.Err)
	}

	return env.Reply(ctx, chatID, fmt.Sprintf("✅ Broadcast delivered to %d users, %d failed.",
		len(outcomes)-len(failed), len(failed)))
}
