// Command seed creates conversations in the gateway database so a user can
// connect before the platform backend has provisioned any. Used for local
// development and demo environments.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tutorstack/voice-gateway/internal/telemetry"
)

func main() {
	godotenv.Load()

	dbURL := flag.String("db", envOr("DATABASE_URL", ""), "PostgreSQL connection string")
	userID := flag.String("user", "", "owning user id")
	count := flag.Int("count", 1, "number of conversations to create")
	titles := flag.String("titles", "", "comma-separated titles; overrides --count")
	flag.Parse()

	if *dbURL == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: seed --db postgres://... --user <user-id> [--count N | --titles a,b,c]")
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	store, err := telemetry.Open(*dbURL)
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var names []string
	if *titles != "" {
		for _, t := range strings.Split(*titles, ",") {
			if t = strings.TrimSpace(t); t != "" {
				names = append(names, t)
			}
		}
	} else {
		for i := 0; i < *count; i++ {
			names = append(names, fmt.Sprintf("Practice session %d", i+1))
		}
	}

	for _, title := range names {
		id := uuid.NewString()
		if err := store.CreateConversation(id, *userID, title); err != nil {
			slog.Error("create conversation", "title", title, "error", err)
			os.Exit(1)
		}
		fmt.Println(id)
		slog.Info("conversation created", "id", id, "user_id", *userID, "title", title)
	}
}

func envOr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
