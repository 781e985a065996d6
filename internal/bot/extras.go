package bot

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/jusunglee/maxbot/internal/calc"
	"github.com/jusunglee/maxbot/internal/update"
)

// Demo commands. These are plain handler functions with no state of
// their own; entrypoints register the ones they want.

func StatsCommand(ctx context.Context, env *Env, args []string, upd update.Update) error {
	rec, err := env.Store.User(ctx, upd.From.ID)
	if err != nil {
		return fmt.Errorf("loading user record: %w", err)
	}

	firstSeen := "unknown"
	if !rec.FirstSeen.IsZero() {
		firstSeen = rec.FirstSeen.Format("2006-01-02 15:04")
	}
	lastSeen := "now"
	if !rec.LastSeen.IsZero() {
		lastSeen = rec.LastSeen.Format("2006-01-02 15:04")
	}

	return env.Reply(ctx, upd.Chat.ID, strings.TrimSpace(fmt.Sprintf(`
📈 Your statistics:

💬 Messages sent: %d
⚡ Commands used: %d
📅 First seen: %s
🕐 Last activity: %s`, rec.MessagesSent, rec.CommandsUsed, firstSeen, lastSeen)))
}

const sessionKeyLastCity = "weather_last_city"

func WeatherCommand(ctx context.Context, env *Env, args []string, upd update.Update) error {
	city := strings.Join(args, " ")
	if city == "" {
		city, _ = env.Sessions.Value(upd.From.ID, sessionKeyLastCity, "").(string)
	}
	if city == "" {
		return env.Reply(ctx, upd.Chat.ID, "Specify a city: /weather Moscow")
	}
	env.Sessions.SetValue(upd.From.ID, sessionKeyLastCity, city)

	return env.Reply(ctx, upd.Chat.ID, strings.TrimSpace(fmt.Sprintf(`
🌤 Weather in %s:

🌡 Temperature: +15°C
💨 Wind: 5 m/s, westerly
💧 Humidity: 65%%
☁ Cloud cover: variable

(Demo data. Wire up a real weather API.)`, city)))
}

const sessionKeyReminder = "reminder"

func ReminderCommand(ctx context.Context, env *Env, args []string, upd update.Update) error {
	if len(args) < 2 {
		return env.Reply(ctx, upd.Chat.ID, "Usage: /reminder 30m Buy milk")
	}

	in, err := time.ParseDuration(args[0])
	if err != nil || in <= 0 {
		return env.Reply(ctx, upd.Chat.ID, fmt.Sprintf("Could not parse %q as a delay. Try 30m or 2h.", args[0]))
	}

	text := strings.Join(args[1:], " ")
	env.Sessions.SetValue(upd.From.ID, sessionKeyReminder, text)
	return env.Reply(ctx, upd.Chat.ID, fmt.Sprintf("⏰ Reminder %q set for %s from now", text, in))
}

func CalcCommand(ctx context.Context, env *Env, args []string, upd update.Update) error {
	if len(args) == 0 {
		return env.Reply(ctx, upd.Chat.ID, "Usage: /calc 2+2 or /calc 10*5")
	}

	expr := strings.Join(args, "")
	result, err := calc.Eval(expr)
	if err != nil {
		env.Log.Info("calc rejected expression", "expr", expr, "error", err)
		return env.Reply(ctx, upd.Chat.ID, "❌ Invalid expression. Check the syntax.")
	}
	return env.Reply(ctx, upd.Chat.ID, fmt.Sprintf("🧮 %s = %g", expr, result))
}

// Text handlers.

var greetings = []string{"привет", "hello", "hi", "здравствуй", "добрый день"}

func GreetingHandler(ctx context.Context, env *Env, upd update.Update) error {
	lower := strings.ToLower(upd.Text)
	for _, g := range greetings {
		if strings.Contains(lower, g) {
			return env.Reply(ctx, upd.Chat.ID, "👋 Hi there! How are you?")
		}
	}
	return nil
}

var (
	questions = []string{"how are you", "как дела", "что делаешь", "what are you doing"}

	questionReplies = []string{
		"All good, ready to help! 😊",
		"Doing great, thanks for asking! 👍",
		"Working away and waiting for your commands! 🤖",
	}
)

func QuestionHandler(ctx context.Context, env *Env, upd update.Update) error {
	lower := strings.ToLower(upd.Text)
	for _, q := range questions {
		if strings.Contains(lower, q) {
			return env.Reply(ctx, upd.Chat.ID, questionReplies[rand.Intn(len(questionReplies))])
		}
	}
	return nil
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// URLHandler records how many links the bot has seen; a placeholder for
// link unfurling.
func URLHandler(ctx context.Context, env *Env, upd update.Update) error {
	urls := urlPattern.FindAllString(upd.Text, -1)
	if len(urls) == 0 {
		return nil
	}
	_, err := env.Store.AddGlobal(ctx, "urls_seen", int64(len(urls)))
	return err
}

// AttachmentHandler acknowledges stickers, documents, and photos.
func AttachmentHandler(ctx context.Context, env *Env, upd update.Update) error {
	switch {
	case upd.Sticker != nil:
		return env.Reply(ctx, upd.Chat.ID, "Nice sticker! "+upd.Sticker.Emoji)
	case upd.Document != nil:
		return env.Reply(ctx, upd.Chat.ID, fmt.Sprintf("📎 Received file: %s", upd.Document.FileName))
	case len(upd.Photo) > 0:
		return env.Reply(ctx, upd.Chat.ID, "📷 Received a photo.")
	}
	return nil
}
