package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jusunglee/maxbot/internal/bot"
	"github.com/jusunglee/maxbot/internal/envsetup"
	"github.com/jusunglee/maxbot/internal/logger"
	"github.com/jusunglee/maxbot/internal/maxapi"
	"github.com/jusunglee/maxbot/internal/ratelimit"
	"github.com/jusunglee/maxbot/internal/session"
	"github.com/jusunglee/maxbot/internal/store"
	"github.com/jusunglee/maxbot/internal/store/file"
	"github.com/jusunglee/maxbot/internal/store/sqlite"
	"github.com/jusunglee/maxbot/internal/webhook"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := mainE(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func mainE() error {
	if envsetup.NeedsSetup() {
		done, err := envsetup.Run()
		if err != nil {
			return fmt.Errorf("running setup wizard: %w", err)
		}
		if !done {
			return errors.New("setup was not completed")
		}
	}
	_ = godotenv.Load()

	fs := ff.NewFlagSet("maxbot-webhook")
	var (
		botToken        = fs.StringLong("max-bot-token", "", "MAX bot API token")
		apiBaseURL      = fs.StringLong("api-base-url", maxapi.DefaultBaseURL, "MAX bot API base URL")
		databaseURL     = fs.StringLong("database-url", "./maxbot.json", "Store path (JSON file, or sqlite://path)")
		port            = fs.IntLong("port", 8080, "Webhook listener port")
		webhookURL      = fs.StringLong("webhook-url", "", "Public HTTPS URL to register with the platform")
		webhookSecret   = fs.StringLong("webhook-secret", "", "Shared secret for signature validation")
		rateLimitMax    = fs.IntLong("rate-limit-max", 5, "Messages allowed per user per window")
		rateLimitWindow = fs.DurationLong("rate-limit-window", time.Minute, "Rate limit window")
		sessionTTL      = fs.DurationLong("session-ttl", 30*time.Minute, "Session idle expiry")
		silentThrottle  = fs.BoolLong("silent-throttle", "Drop throttled updates without a notice")
		adminIDs        = fs.StringLong("admin-ids", "", "Comma-separated admin user IDs")
	)

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVars()); err != nil {
		fmt.Printf("%s\n", ffhelp.Flags(fs))
		return fmt.Errorf("parsing flags: %w", err)
	}

	if *botToken == "" {
		return errors.New("max-bot-token is required")
	}
	if *webhookSecret == "" {
		return errors.New("webhook-secret is required")
	}

	admins, err := parseAdminIDs(*adminIDs)
	if err != nil {
		return fmt.Errorf("parsing admin-ids: %w", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	log := logger.New()

	st, err := openStore(ctx, *databaseURL, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	client := maxapi.NewClient(*botToken, maxapi.WithBaseURL(*apiBaseURL))
	limiter := ratelimit.New(*rateLimitMax, *rateLimitWindow)
	defer limiter.Close()
	sessions := session.NewStore(*sessionTTL)
	defer sessions.Close()

	dispatcher := bot.New(log, client, limiter, sessions, st, bot.Config{
		SilentThrottle: *silentThrottle,
		AdminIDs:       admins,
	})
	registerExtras(dispatcher, cancel)

	if _, err := st.AddGlobal(ctx, store.GlobalBotStarted, 1); err != nil {
		log.Warn("failed to record startup", "error", err)
	}

	validator := webhook.NewValidator(*webhookSecret)
	server := webhook.NewServer(log, *port, validator, dispatcher, client)

	if *webhookURL != "" {
		if err := client.SetWebhook(ctx, *webhookURL); err != nil {
			return fmt.Errorf("registering webhook: %w", err)
		}
		log.InfoContext(ctx, "registered webhook", "url", *webhookURL)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", "signal", sig)
		cancel(errors.New("signal received"))
	}()

	dispatcher.MarkReady()
	log.InfoContext(ctx, "bot starting",
		"mode", "webhook",
		"port", *port,
		"commands", dispatcher.CommandNames())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := bot.RunFlusher(gctx, log, st)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := st.Save(saveCtx); err != nil {
		return fmt.Errorf("final store save: %w", err)
	}
	log.Info("bot stopped")
	return nil
}

func openStore(ctx context.Context, url string, log *slog.Logger) (store.Store, error) {
	if strings.HasPrefix(url, "sqlite://") {
		return sqlite.Open(ctx, url, log)
	}
	return file.Open(url, log, file.DefaultConfig())
}

func registerExtras(d *bot.Dispatcher, cancel context.CancelCauseFunc) {
	d.Register("stats", bot.StatsCommand)
	d.Register("weather", bot.WeatherCommand)
	d.Register("reminder", bot.ReminderCommand)
	d.Register("calc", bot.CalcCommand)
	d.Register("admin", bot.AdminCommand(cancel))

	d.OnText(bot.GreetingHandler)
	d.OnText(bot.QuestionHandler)
	d.OnText(bot.URLHandler)
	d.OnText(bot.AttachmentHandler)
}

func parseAdminIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
