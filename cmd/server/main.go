package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/jacl-coder/EyeSurvival-Server/internal/game"
	"github.com/jacl-coder/EyeSurvival-Server/internal/gateway"
	"github.com/jacl-coder/EyeSurvival-Server/internal/leaderboard"
	"github.com/jacl-coder/EyeSurvival-Server/internal/notify"
	"github.com/jacl-coder/EyeSurvival-Server/internal/payment"
	"github.com/jacl-coder/EyeSurvival-Server/internal/scheduler"
	"github.com/jacl-coder/EyeSurvival-Server/internal/session"
	"github.com/jacl-coder/EyeSurvival-Server/internal/storage"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
	"github.com/jacl-coder/EyeSurvival-Server/pkg/db"
	"github.com/jacl-coder/EyeSurvival-Server/pkg/logger"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("server", cfg.Server.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.ConnectPostgres(cfg.Database, connectTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}

	rounds := store.NewPostgresRoundStore(conn)
	users := store.NewPostgresUserStore(conn)
	wallets := store.NewPostgresWalletStore(conn)

	// Redis backs the leaderboard and the relay; without it the process
	// still serves a single instance.
	var board leaderboard.Board = leaderboard.NewMemoryBoard()
	redisClient, err := db.ConnectRedis(cfg.Redis, connectTimeout)
	if err != nil {
		log.Warn("redis unavailable, using in-memory leaderboard", slog.Any("error", err))
	} else {
		defer redisClient.Close()
		board = leaderboard.NewRedisBoard(redisClient)
	}

	var notifier session.Notifier = notify.Nop{Logger: logger.New("push", cfg.Server.LogLevel)}
	if cfg.Push.Enabled {
		notifier = notify.NewExpoNotifier(cfg.Push, users, nil, logger.New("push", cfg.Server.LogLevel))
	}

	hub := game.NewGameServer(cfg.Session, logger.New("hub", cfg.Server.LogLevel))
	registry := session.NewRegistry(rounds, users, cfg.Session.StoreTimeout, logger.New("registry", cfg.Server.LogLevel))
	engine := session.NewEngine(registry, hub, logger.New("engine", cfg.Server.LogLevel))
	hub.SetHandler(engine)
	settlement := session.NewSettlement(registry, wallets, notifier, logger.New("settlement", cfg.Server.LogLevel))

	var relay *game.Relay
	if cfg.Session.RelayEnabled {
		if redisClient == nil {
			return errors.New("session relay is enabled but redis is unavailable")
		}
		relay = game.NewRelay(redisClient, cfg.Session.RelayChannel, logger.New("relay", cfg.Server.LogLevel))
		hub.SetRelay(relay)
	}

	var uploader storage.FileUploader
	if cfg.Storage.Enabled() {
		uploader, err = storage.NewR2Uploader(ctx, cfg.Storage)
		if err != nil {
			return err
		}
	}

	paystack := payment.NewPaystack(cfg.Payment, nil)
	gw := gateway.NewGateway(cfg, gateway.Deps{
		Rounds:      rounds,
		Catalogue:   rounds,
		Users:       users,
		Wallets:     wallets,
		Registry:    registry,
		Settlement:  settlement,
		Leaderboard: board,
		Payments:    paystack,
		Payouts:     paystack,
		Uploader:    uploader,
		Broadcaster: hub,
		WebSocket:   http.HandlerFunc(hub.ServeWS),
	}, logger.New("gateway", cfg.Server.LogLevel))
	defer gw.Close()

	jobs := scheduler.New(cfg.Scheduler, scheduler.Deps{
		Rounds:    rounds,
		Catalogue: rounds,
		Users:     users,
		Board:     board,
		Notifier:  notifier,
	}, logger.New("scheduler", cfg.Server.LogLevel))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           gw.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		return jobs.Run(gctx)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx, hub)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
