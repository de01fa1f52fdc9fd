package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/broadcast"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	apperrors "github.com/savagegamesllc-ui/chat-factions-sub000/internal/errors"
)

// handleOverlayStream is the SSE endpoint OBS browser sources connect to.
// The first frame is always a full meters snapshot so a freshly loaded
// overlay renders without waiting for activity.
func (s *Server) handleOverlayStream(c echo.Context) error {
	streamer, err := s.streamerFromOverlayParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	client := broadcast.NewClient(s.deps.Clock)
	if err := s.deps.Hub.Register(streamer.ID, client); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "too many connected overlays")
	}
	defer s.deps.Hub.Unregister(streamer.ID, client)

	snapshot, err := s.deps.Snapshots.Build(ctx, streamer.ID)
	if err != nil {
		slog.Error("initial snapshot failed", "streamer_id", streamer.ID.String(), "error", err)
	} else {
		client.Send("meters", snapshot)
	}

	return client.Serve(c.Response(), c.Request())
}

// handleOverlaySnapshot is the polling fallback, mirroring the SSE payload.
func (s *Server) handleOverlaySnapshot(c echo.Context) error {
	streamer, err := s.streamerFromOverlayParam(c)
	if err != nil {
		return err
	}

	snapshot, err := s.deps.Snapshots.Build(c.Request().Context(), streamer.ID)
	if err != nil {
		return apperrors.InternalError("failed to build snapshot", err)
	}
	return c.JSON(200, snapshot)
}

func (s *Server) streamerFromOverlayParam(c echo.Context) (*domain.Streamer, error) {
	overlayUUID, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		return nil, apperrors.ValidationError("invalid overlay UUID")
	}

	streamer, err := s.deps.Streamers.GetByOverlayUUID(c.Request().Context(), overlayUUID)
	if err != nil {
		if errors.Is(err, domain.ErrStreamerNotFound) {
			return nil, apperrors.NotFoundError("unknown overlay")
		}
		return nil, apperrors.InternalError("failed to resolve overlay", err)
	}
	return streamer, nil
}
