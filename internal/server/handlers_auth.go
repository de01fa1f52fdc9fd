package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	twitchAuthURL  = "https://id.twitch.tv/oauth2/authorize"
	twitchScopeBot = "channel:bot"
	oauthTimeout   = 10 * time.Second
)

func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *Server) handleLogin(c echo.Context) error {
	state, err := generateOAuthState()
	if err != nil {
		slog.Error("oauth state generation failed", "error", err)
		return c.String(500, "Internal error")
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.Warn("failed to get session for oauth state", "error", err)
	}
	session.Values[sessionKeyOAuthState] = state
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.Error("failed to save oauth state session", "error", err)
		return c.String(500, "Internal error")
	}

	authURL := fmt.Sprintf(
		"%s?client_id=%s&redirect_uri=%s&response_type=code&scope=%s&state=%s",
		twitchAuthURL,
		url.QueryEscape(s.config.TwitchClientID),
		url.QueryEscape(s.config.TwitchRedirectURI),
		url.QueryEscape(twitchScopeBot),
		url.QueryEscape(state),
	)
	return c.Redirect(302, authURL)
}

func (s *Server) handleOAuthCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return c.String(400, "Missing code parameter")
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return c.String(400, "Invalid session")
	}
	expectedState, ok := session.Values[sessionKeyOAuthState].(string)
	if !ok || expectedState == "" {
		return c.String(400, "Missing OAuth state")
	}
	if c.QueryParam("state") != expectedState {
		return c.String(400, "Invalid OAuth state")
	}
	delete(session.Values, sessionKeyOAuthState)

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	result, err := s.deps.OAuth.ExchangeCodeForToken(ctx, code)
	if err != nil {
		slog.Error("oauth code exchange failed", "error", err)
		return c.String(500, "Failed to authenticate with Twitch")
	}

	streamer, err := s.deps.Streamers.Upsert(ctx, result.UserID, result.Username)
	if err != nil {
		slog.Error("streamer upsert failed", "error", err)
		return c.String(500, "Failed to save streamer")
	}

	if err := s.deps.Factions.SeedDefaults(ctx, streamer.ID); err != nil {
		slog.Error("faction seeding failed", "streamer_id", streamer.ID.String(), "error", err)
		return c.String(500, "Failed to initialise factions")
	}

	// Best effort: a missing chat subscription only delays ingestion until
	// the next login.
	if s.deps.Subscriptions != nil {
		if err := s.deps.Subscriptions.EnsureChatSubscription(ctx, streamer.TwitchUserID); err != nil {
			slog.Error("chat subscription setup failed",
				"twitch_user_id", streamer.TwitchUserID, "error", err)
		}
		if policy, err := s.deps.Settings.WebhookPolicy(ctx, streamer.ID); err == nil {
			s.syncPolicySubscriptions(ctx, streamer.ID, policy)
		} else {
			slog.Error("webhook policy lookup failed",
				"streamer_id", streamer.ID.String(), "error", err)
		}
	}

	session.Values[sessionKeyStreamerID] = streamer.ID.String()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.Error("failed to save login session", "error", err)
		return c.String(500, "Failed to save session")
	}

	return c.Redirect(302, "/api/me")
}

func (s *Server) handleLogout(c echo.Context) error {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.Warn("failed to get session during logout", "error", err)
		session, err = s.sessionStore.New(c.Request(), sessionName)
		if err != nil {
			slog.Error("failed to create new session during logout", "error", err)
		}
	}
	session.Options.MaxAge = -1

	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.Error("failed to save logout session", "error", err)
		return c.String(500, "Failed to logout due to session error.")
	}

	return c.JSON(200, map[string]string{"status": "logged out"})
}
