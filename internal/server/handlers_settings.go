package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	apperrors "github.com/savagegamesllc-ui/chat-factions-sub000/internal/errors"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/twitch"
)

type decaySettingsRequest struct {
	Enabled          bool    `json:"enabled"`
	PercentPerMinute float64 `json:"percentPerMinute"`
	MinClampAbs      int64   `json:"minClampAbs"`
}

func (s *Server) handleGetDecaySettings(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}

	cfg, err := s.deps.Settings.Decay(c.Request().Context(), streamerID)
	if err != nil {
		return apperrors.InternalError("failed to load decay settings", err)
	}
	return c.JSON(200, decaySettingsRequest{
		Enabled:          cfg.Enabled,
		PercentPerMinute: cfg.PercentPerMinute,
		MinClampAbs:      cfg.MinClampAbs,
	})
}

func (s *Server) handleSaveDecaySettings(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}

	var req decaySettingsRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.PercentPerMinute < 0 || req.PercentPerMinute > 100 {
		return apperrors.ValidationError("percentPerMinute must be between 0 and 100").
			WithContext("percentPerMinute", req.PercentPerMinute)
	}
	if req.MinClampAbs < 0 {
		return apperrors.ValidationError("minClampAbs must not be negative")
	}

	cfg := domain.DecayConfig{
		Enabled:          req.Enabled,
		PercentPerMinute: req.PercentPerMinute,
		MinClampAbs:      req.MinClampAbs,
	}
	if err := s.deps.Settings.SaveDecay(c.Request().Context(), streamerID, cfg); err != nil {
		return apperrors.InternalError("failed to save decay settings", err)
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}

type policySettingsRequest struct {
	Mode              string           `json:"mode"`
	DefaultFactionKey string           `json:"defaultFactionKey"`
	EventDeltas       map[string]int64 `json:"eventDeltas"`
}

func (s *Server) handleGetPolicySettings(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}

	policy, err := s.deps.Settings.WebhookPolicy(c.Request().Context(), streamerID)
	if err != nil {
		return apperrors.InternalError("failed to load webhook policy", err)
	}
	return c.JSON(200, policySettingsRequest{
		Mode:              string(policy.Mode),
		DefaultFactionKey: policy.DefaultFactionKey,
		EventDeltas:       policy.EventDeltas,
	})
}

func (s *Server) handleSavePolicySettings(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}

	var req policySettingsRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	mode := domain.PolicyMode(req.Mode)
	switch mode {
	case domain.PolicyLeader, domain.PolicyDefault:
	default:
		return apperrors.ValidationError("mode must be 'leader' or 'default'").WithContext("mode", req.Mode)
	}
	if mode == domain.PolicyDefault && strings.TrimSpace(req.DefaultFactionKey) == "" {
		return apperrors.ValidationError("defaultFactionKey is required in default mode")
	}

	policy := domain.WebhookPolicy{
		Mode:              mode,
		DefaultFactionKey: strings.ToUpper(strings.TrimSpace(req.DefaultFactionKey)),
		EventDeltas:       req.EventDeltas,
	}
	if err := s.deps.Settings.SaveWebhookPolicy(c.Request().Context(), streamerID, policy); err != nil {
		return apperrors.InternalError("failed to save webhook policy", err)
	}

	// Best effort: a missing subscription only delays delivery until the
	// next save or login.
	s.syncPolicySubscriptions(c.Request().Context(), streamerID, policy)

	return c.JSON(200, map[string]string{"status": "ok"})
}

// syncPolicySubscriptions makes sure every event type the webhook policy
// maps to a delta actually has an EventSub subscription. Chat messages are
// subscribed at login and skipped here.
func (s *Server) syncPolicySubscriptions(ctx context.Context, streamerID uuid.UUID, policy domain.WebhookPolicy) {
	if s.deps.Subscriptions == nil || len(policy.EventDeltas) == 0 {
		return
	}

	streamer, err := s.deps.Streamers.GetByID(ctx, streamerID)
	if err != nil {
		slog.Error("streamer lookup for subscription sync failed",
			"streamer_id", streamerID.String(), "error", err)
		return
	}

	for eventType := range policy.EventDeltas {
		if eventType == twitch.EventTypeChatMessage {
			continue
		}
		if err := s.deps.Subscriptions.EnsureEventSubscription(ctx, eventType, streamer.TwitchUserID); err != nil {
			slog.Error("policy event subscription setup failed",
				"event_type", eventType, "twitch_user_id", streamer.TwitchUserID, "error", err)
		}
	}
}

func (s *Server) handleTwitchDisconnect(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}
	if s.deps.Subscriptions == nil {
		return c.JSON(200, map[string]string{"status": "not configured"})
	}

	streamer, err := s.deps.Streamers.GetByID(c.Request().Context(), streamerID)
	if err != nil {
		return apperrors.InternalError("failed to load streamer", err)
	}
	if err := s.deps.Subscriptions.RemoveSubscriptions(c.Request().Context(), streamer.TwitchUserID); err != nil {
		return apperrors.InternalError("failed to remove subscriptions", err)
	}
	return c.JSON(200, map[string]string{"status": "disconnected"})
}

func (s *Server) handleListCommands(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}

	commands, err := s.deps.Settings.Commands(c.Request().Context(), streamerID)
	if err != nil {
		return apperrors.InternalError("failed to load commands", err)
	}
	return c.JSON(200, map[string]any{"commands": commands})
}

type commandRequest struct {
	Kind            string   `json:"kind"`
	Aliases         []string `json:"aliases"`
	Enabled         bool     `json:"enabled"`
	CooldownSeconds int      `json:"cooldownSeconds"`
	MaxDelta        int64    `json:"maxDelta"`
	DefaultDelta    int64    `json:"defaultDelta"`
}

func (s *Server) handleSaveCommand(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}
	trigger := strings.ToLower(strings.TrimSpace(c.Param("trigger")))
	if trigger == "" {
		return apperrors.ValidationError("trigger is required")
	}

	var req commandRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	kind := domain.CommandKind(req.Kind)
	switch kind {
	case domain.CommandHype, domain.CommandMaxHype, domain.CommandVote:
	default:
		return apperrors.ValidationError("kind must be 'hype', 'maxhype' or 'vote'").WithContext("kind", req.Kind)
	}
	if req.CooldownSeconds < 0 {
		return apperrors.ValidationError("cooldownSeconds must not be negative")
	}
	if req.MaxDelta < 0 {
		return apperrors.ValidationError("maxDelta must not be negative")
	}

	cmd := domain.ChatCommand{
		Kind:            kind,
		Trigger:         trigger,
		Aliases:         req.Aliases,
		Enabled:         req.Enabled,
		CooldownSeconds: req.CooldownSeconds,
		MaxDelta:        req.MaxDelta,
		DefaultDelta:    req.DefaultDelta,
	}
	if err := s.deps.Settings.UpsertCommand(c.Request().Context(), streamerID, cmd); err != nil {
		return apperrors.InternalError("failed to save command", err)
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}
