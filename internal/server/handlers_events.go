package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	apperrors "github.com/savagegamesllc-ui/chat-factions-sub000/internal/errors"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/metrics"
)

const headerAPIKey = "X-Api-Key"

type ingestEventRequest struct {
	EventID     string `json:"event_id"`
	FactionKey  string `json:"faction_key"`
	Delta       int64  `json:"delta"`
	DecayExempt bool   `json:"decay_exempt"`
}

// handleIngestEvent is the generic keyed event API: external tools (bots,
// stream decks, donation bridges) push deltas with the streamer's opaque
// API key. It runs the same guard and engine path as every other source.
func (s *Server) handleIngestEvent(c echo.Context) error {
	apiKey := c.Request().Header.Get(headerAPIKey)
	if apiKey == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing API key")
	}
	ctx := c.Request().Context()

	streamer, err := s.deps.Streamers.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, domain.ErrStreamerNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
		}
		return apperrors.InternalError("failed to resolve API key", err)
	}

	var req ingestEventRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if strings.TrimSpace(req.FactionKey) == "" {
		return apperrors.ValidationError("faction_key is required")
	}
	if req.Delta == 0 {
		return apperrors.ValidationError("delta must not be zero")
	}

	fresh, err := s.deps.Receipts.Reserve(ctx, streamer.ID, req.EventID)
	if err != nil {
		return apperrors.InternalError("idempotency check failed", err)
	}
	if !fresh {
		metrics.EventsDroppedTotal.WithLabelValues("duplicate").Inc()
		return c.JSON(200, map[string]any{"applied": false, "reason": "duplicate"})
	}

	source := domain.SourceAPI
	if req.DecayExempt {
		source = domain.SourceDecayExempt
	}
	meta := map[string]any{"eventId": req.EventID}

	result, err := s.deps.Engine.AddHype(ctx, streamer.ID, req.FactionKey, req.Delta, source, meta)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownFaction) {
			metrics.EventsDroppedTotal.WithLabelValues("unknown_faction").Inc()
			return apperrors.NotFoundError("unknown faction").WithContext("faction_key", req.FactionKey)
		}
		return apperrors.InternalError("failed to apply event", err)
	}

	snapshot, err := s.deps.Snapshots.Build(ctx, streamer.ID)
	if err != nil {
		slog.Error("post-event snapshot failed", "streamer_id", streamer.ID.String(), "error", err)
	} else {
		s.deps.Hub.Broadcast(streamer.ID, "meters", snapshot)
	}

	return c.JSON(200, map[string]any{
		"applied":    true,
		"factionKey": result.FactionKey,
		"meter":      result.Meter,
	})
}
