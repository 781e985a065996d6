// Seed script for local development. Populates the store with sample
// users and counters so /stats and /admin have something to show.
//
// Usage:
//
//	go run scripts/seed.go
//	go run scripts/seed.go --database-url ./maxbot.json
//	go run scripts/seed.go --database-url sqlite://maxbot.db
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/jusunglee/maxbot/internal/store"
	"github.com/jusunglee/maxbot/internal/store/file"
	"github.com/jusunglee/maxbot/internal/store/sqlite"
)

type sampleUser struct {
	ID       int64
	Username string
}

var samples = []sampleUser{
	{100001, "alice"},
	{100002, "bob_the_builder"},
	{100003, "charlie"},
	{100004, "дмитрий"},
	{100005, "eve"},
	{100006, "frank_ocean_fan"},
	{100007, "grace"},
	{100008, "привет_мир"},
	{100009, "ivan"},
	{100010, "judy"},
}

func main() {
	dsn := flag.String("database-url", "./maxbot.json", "Store path (JSON file, or sqlite://path)")
	flag.Parse()

	ctx := context.Background()
	log := slog.Default()

	var (
		st  store.Store
		err error
	)
	if strings.HasPrefix(*dsn, "sqlite://") {
		st, err = sqlite.Open(ctx, *dsn, log)
	} else {
		st, err = file.Open(*dsn, log, file.DefaultConfig())
	}
	if err != nil {
		slog.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	slog.Info("seeding users", "count", len(samples))
	var totalMessages, totalCommands int64
	for _, s := range samples {
		messages := int64(rand.IntN(500))
		commands := int64(rand.IntN(50))
		daysAgo := rand.IntN(90)
		firstSeen := time.Now().AddDate(0, 0, -daysAgo)

		_, err := st.UpdateUser(ctx, s.ID, func(r *store.UserRecord) {
			r.Username = s.Username
			r.FirstSeen = firstSeen
			r.LastSeen = firstSeen.Add(time.Duration(rand.IntN(daysAgo*24+1)) * time.Hour)
			r.MessagesSent = messages
			r.CommandsUsed = commands
		})
		if err != nil {
			slog.Warn("seeding user failed", "username", s.Username, "error", err)
			continue
		}
		totalMessages += messages
		totalCommands += commands
		fmt.Printf("  ✓ %s (ID: %d, %d messages)\n", s.Username, s.ID, messages)
	}

	if err := st.SetGlobal(ctx, store.GlobalMessagesProcessed, totalMessages); err != nil {
		slog.Error("writing global counters", "error", err)
		os.Exit(1)
	}
	if err := st.SetGlobal(ctx, store.GlobalCommandsExecuted, totalCommands); err != nil {
		slog.Error("writing global counters", "error", err)
		os.Exit(1)
	}

	if err := st.Save(ctx); err != nil {
		slog.Error("saving store", "error", err)
		os.Exit(1)
	}
	slog.Info("done", "users", len(samples), "messages", totalMessages, "commands", totalCommands)
}
