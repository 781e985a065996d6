package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jusunglee/maxbot/internal/format"
	"github.com/jusunglee/maxbot/internal/update"
)

// registerBuiltins installs the commands every bot instance carries.
func (d *Dispatcher) registerBuiltins() {
	d.Register("start", startCommand)
	d.Register("help", helpCommand)
	d.Register("time", timeCommand)
	d.Register("echo", echoCommand)
	d.Register("info", infoCommand)
}

func startCommand(ctx context.Context, env *Env, args []string, upd update.Update) error {
	return env.Reply(ctx, upd.Chat.ID, strings.TrimSpace(`
🤖 Welcome!

I am a bot for the MAX messenger.
Use /help to see the list of available commands.

Ready to go! 🚀`))
}

func helpCommand(ctx context.Context, env *Env, args []string, upd update.Update) error {
	names := env.CommandNames()
	items := make([]string, len(names))
	for i, name := range names {
		items[i] = "/" + name
	}
	return env.Reply(ctx, upd.Chat.ID, "📋 Available commands:\n\n"+format.List(items, false))
}

func timeCommand(ctx context.Context, env *Env, args []string, upd update.Update) error {
	now := time.Now().Format("2006-01-02 15:04:05")
	return env.Reply(ctx, upd.Chat.ID, "🕐 Current time: "+now)
}

func echoCommand(ctx context.Context, env *Env, args []string, upd update.Update) error {
	if len(args) == 0 {
		return env.Reply(ctx, upd.Chat.ID, "Usage: /echo <your text>")
	}
	return env.Reply(ctx, upd.Chat.ID, "🔊 Echo: "+strings.Join(args, " "))
}

func infoCommand(ctx context.Context, env *Env, args []string, upd update.Update) error {
	return env.Reply(ctx, upd.Chat.ID, strings.TrimSpace(fmt.Sprintf(`
ℹ️ About this bot:

🤖 Name: MAX Chat Bot
📅 Version: 1.0.0
⚡ Status: active

Built for the MAX messenger
Registered commands: %d`, len(env.CommandNames()))))
}
