package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/broadcast"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/chat"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/config"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/database"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/hype"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/logging"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/server"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/twitch"
)

func setupConfig() *config.Config {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func runGracefulShutdown(srv *server.Server, decayer *hype.Decayer, hub *broadcast.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		decayer.Stop()
		hub.CloseAll()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	streamerRepo := database.NewStreamerRepo(pool)
	factionRepo := database.NewFactionRepo(pool)
	sessionRepo := database.NewSessionRepo(pool)
	cooldownRepo := database.NewCooldownRepo(pool)
	receiptRepo := database.NewReceiptRepo(pool)
	eventLogRepo := database.NewEventLogRepo(pool)
	configRepo := database.NewConfigRepo(pool)

	engine := hype.NewEngine(factionRepo, sessionRepo, eventLogRepo, clock)
	snapshots := hype.NewSnapshotBuilder(engine, sessionRepo, clock)
	hub := broadcast.NewHub(cfg.MaxSSEClients)

	cooldowns := hype.NewCooldownGuard(cooldownRepo, clock, cfg.DefaultCooldown)
	receipts := hype.NewReceiptGuard(receiptRepo)
	factions := hype.NewFactionService(factionRepo)
	policy := hype.NewPolicyResolver(configRepo, sessionRepo, engine)
	processor := chat.NewProcessor(engine, cooldowns, configRepo, snapshots, hub, cfg.CommandPrefix)

	decayer := hype.NewDecayer(sessionRepo, configRepo, snapshots, hub, clock, cfg.DecayInterval)
	decayer.Start()

	deps := server.Dependencies{
		Streamers: streamerRepo,
		Factions:  factions,
		Engine:    engine,
		Receipts:  receipts,
		Snapshots: snapshots,
		Settings:  configRepo,
		EventLog:  eventLogRepo,
		Hub:       hub,
		OAuth:     server.NewTwitchOAuthClient(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI),
		DB:        pool,
		Clock:     clock,
	}

	// Webhooks are optional: without a callback URL the platform still works
	// through the keyed event API and the dashboard.
	if cfg.WebhookCallbackURL != "" {
		subscriptions, err := twitch.NewSubscriptionManager(
			cfg.TwitchClientID, cfg.TwitchClientSecret,
			cfg.WebhookCallbackURL, cfg.WebhookSecret, cfg.BotUserID,
		)
		if err != nil {
			slog.Error("Failed to create EventSub subscription manager", "error", err)
			os.Exit(1)
		}
		deps.Subscriptions = subscriptions
		deps.Webhook = twitch.NewWebhookHandler(
			cfg.WebhookSecret, streamerRepo, receipts, processor, policy, engine, snapshots, hub,
		)
	}

	srv := server.NewServer(cfg, deps)
	done := runGracefulShutdown(srv, decayer, hub)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
