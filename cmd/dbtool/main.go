package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/jacl-coder/EyeSurvival-Server/internal/gateway"
	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
	"github.com/jacl-coder/EyeSurvival-Server/pkg/db"
	"github.com/jacl-coder/EyeSurvival-Server/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	action := flag.String("action", "help", "one of: init, reset, seed, token, help")
	userID := flag.String("user", "demo-player", "user id for -action=token")
	role := flag.String("role", "", "role claim for -action=token")
	flag.Parse()

	if *action == "help" {
		showHelp()
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("dbtool", cfg.Server.LogLevel)

	if *action == "token" {
		token, err := gateway.NewAuthenticator(cfg.JWT).SignToken(*userID, *role, 24*time.Hour)
		if err != nil {
			log.Error("sign token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	conn, err := db.ConnectPostgres(cfg.Database, 10*time.Second)
	if err != nil {
		log.Error("connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx := context.Background()
	switch *action {
	case "init":
		err = db.Migrate(ctx, conn)
	case "reset":
		log.Warn("dropping every table")
		if err = db.Reset(ctx, conn); err == nil {
			err = db.Migrate(ctx, conn)
		}
	case "seed":
		err = seed(ctx, store.NewPostgresRoundStore(conn), store.NewPostgresUserStore(conn))
	default:
		err = fmt.Errorf("unknown action %q", *action)
	}
	if err != nil {
		log.Error("action failed", "action", *action, "error", err)
		os.Exit(1)
	}
	log.Info("done", "action", *action)
}

// seed adds demo players and a round starting in fifteen minutes.
func seed(ctx context.Context, rounds store.RoundStore, users store.UserStore) error {
	now := time.Now().UTC()
	players := []*models.User{
		{ID: "demo-player", Name: "Demo Player", Email: "demo@example.com", Eyes: 20, CreatedAt: now, UpdatedAt: now},
		{ID: "demo-rival", Name: "Demo Rival", Email: "rival@example.com", Eyes: 20, CreatedAt: now, UpdatedAt: now},
	}

	round := &models.Round{
		ID:              uuid.NewString(),
		Title:           "Demo Round",
		StartsAt:        now.Add(15 * time.Minute).Truncate(time.Minute),
		DurationMinutes: 10,
		PrizePool:       10000,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, u := range players {
		if err := users.Save(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		round.Enroll(u.ID)
	}
	if err := rounds.Save(ctx, round); err != nil {
		return fmt.Errorf("seed round: %w", err)
	}
	fmt.Printf("seeded round %s starting %s\n", round.ID, round.StartsAt.Format(time.RFC3339))
	return nil
}

func showHelp() {
	fmt.Println(`EyeSurvival database tool

Usage:
  go run ./cmd/dbtool -action=<action> [-config=<file>]

Actions:
  init   create tables and indexes
  reset  drop every table, then recreate them
  seed   insert demo players and a round
  token  print a 24h bearer token for -user (and -role)
  help   show this message`)
}
