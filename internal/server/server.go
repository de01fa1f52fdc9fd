package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/broadcast"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/config"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/hype"
)

const (
	sessionName          = "hypemeter_session"
	sessionKeyStreamerID = "streamer_id"
	sessionKeyOAuthState = "oauth_state"
	sessionMaxAgeDays    = 7
)

// WebhookHandler terminates the EventSub callback endpoint. Nil when
// webhooks are not configured.
type WebhookHandler interface {
	HandleEventSub(c echo.Context) error
}

// SubscriptionManager manages EventSub subscriptions for a broadcaster.
// Nil when webhooks are not configured.
type SubscriptionManager interface {
	EnsureChatSubscription(ctx context.Context, broadcasterUserID string) error
	EnsureEventSubscription(ctx context.Context, eventType, broadcasterUserID string) error
	RemoveSubscriptions(ctx context.Context, broadcasterUserID string) error
}

// SettingsStore reads and writes per-streamer runtime configuration.
type SettingsStore interface {
	domain.ConfigProvider
	SaveDecay(ctx context.Context, streamerID uuid.UUID, cfg domain.DecayConfig) error
	SaveWebhookPolicy(ctx context.Context, streamerID uuid.UUID, p domain.WebhookPolicy) error
	UpsertCommand(ctx context.Context, streamerID uuid.UUID, c domain.ChatCommand) error
}

// Pinger is the readiness-check surface of the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies bundles the collaborators the HTTP layer needs.
type Dependencies struct {
	Streamers     domain.StreamerRepository
	Factions      *hype.FactionService
	Engine        *hype.Engine
	Receipts      *hype.ReceiptGuard
	Snapshots     *hype.SnapshotBuilder
	Settings      SettingsStore
	EventLog      domain.EventLogRepository
	Hub           *broadcast.Hub
	Webhook       WebhookHandler
	Subscriptions SubscriptionManager
	OAuth         TwitchOAuthClient
	DB            Pinger
	Clock         clockwork.Clock
}

type Server struct {
	echo         *echo.Echo
	config       *config.Config
	sessionStore *sessions.CookieStore
	deps         Dependencies
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(errorHandlingMiddleware())

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * sessionMaxAgeDays,
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}

	srv := &Server{
		echo:         e,
		config:       cfg,
		sessionStore: sessionStore,
		deps:         deps,
		startTime:    deps.Clock.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for handler tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
