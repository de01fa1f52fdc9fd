package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	apperrors "github.com/savagegamesllc-ui/chat-factions-sub000/internal/errors"
)

func (s *Server) handleMe(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	streamer, err := s.deps.Streamers.GetByID(ctx, streamerID)
	if err != nil {
		if errors.Is(err, domain.ErrStreamerNotFound) {
			return apperrors.NotFoundError("streamer not found")
		}
		return apperrors.InternalError("failed to load streamer", err)
	}

	return c.JSON(200, map[string]any{
		"id":           streamer.ID,
		"twitchUserId": streamer.TwitchUserID,
		"username":     streamer.TwitchUsername,
		"overlayUrl":   fmt.Sprintf("/overlay/%s/events", streamer.OverlayUUID),
		"snapshotUrl":  fmt.Sprintf("/overlay/%s/snapshot", streamer.OverlayUUID),
	})
}

func (s *Server) handleListFactions(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}

	factions, err := s.deps.Factions.List(c.Request().Context(), streamerID)
	if err != nil {
		return apperrors.InternalError("failed to list factions", err)
	}
	return c.JSON(200, map[string]any{"factions": factions})
}

type factionRequest struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	ColorHex  string `json:"colorHex"`
	SortOrder int    `json:"sortOrder"`
}

func (s *Server) handleCreateFaction(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}

	var req factionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	faction, err := s.deps.Factions.Create(c.Request().Context(), streamerID, req.Key, req.Name, req.ColorHex, req.SortOrder)
	if err != nil {
		return err
	}
	return c.JSON(201, faction)
}

// factionUpdateRequest uses pointers so absent fields are left untouched
// while explicit zero values (sortOrder 0, empty color) still apply.
type factionUpdateRequest struct {
	Name      *string `json:"name"`
	ColorHex  *string `json:"colorHex"`
	SortOrder *int    `json:"sortOrder"`
}

func (s *Server) handleUpdateFaction(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}
	key := strings.ToUpper(c.Param("key"))

	var req factionUpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	ctx := c.Request().Context()

	existing, err := s.deps.Factions.Get(ctx, streamerID, key)
	if err != nil {
		return err
	}
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.ColorHex != nil {
		existing.ColorHex = *req.ColorHex
	}
	if req.SortOrder != nil {
		existing.SortOrder = *req.SortOrder
	}

	updated, err := s.deps.Factions.Save(ctx, existing)
	if err != nil {
		return err
	}
	return c.JSON(200, updated)
}

func (s *Server) handleDeleteFaction(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}
	key := c.Param("key")

	if err := s.deps.Factions.Deactivate(c.Request().Context(), streamerID, key); err != nil {
		return err
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (s *Server) handleEventLog(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 1 || limit > 500 {
			return apperrors.ValidationError("limit must be an integer between 1 and 500")
		}
	}

	entries, err := s.deps.EventLog.ListRecent(c.Request().Context(), streamerID, limit)
	if err != nil {
		return apperrors.InternalError("failed to read event log", err)
	}
	return c.JSON(200, map[string]any{"events": entries})
}

func (s *Server) handleRotateOverlayUUID(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}

	newUUID, err := s.deps.Streamers.RotateOverlayUUID(c.Request().Context(), streamerID)
	if err != nil {
		if errors.Is(err, domain.ErrStreamerNotFound) {
			return apperrors.NotFoundError("streamer not found")
		}
		return apperrors.InternalError("failed to rotate overlay UUID", err)
	}

	return c.JSON(200, map[string]any{
		"status":     "ok",
		"overlayUrl": fmt.Sprintf("/overlay/%s/events", newUUID),
	})
}

func (s *Server) handleRotateAPIKey(c echo.Context) error {
	streamerID, err := streamerIDFromContext(c)
	if err != nil {
		return err
	}

	newKey, err := s.deps.Streamers.RotateAPIKey(c.Request().Context(), streamerID)
	if err != nil {
		if errors.Is(err, domain.ErrStreamerNotFound) {
			return apperrors.NotFoundError("streamer not found")
		}
		return apperrors.InternalError("failed to rotate API key", err)
	}

	return c.JSON(200, map[string]any{
		"status": "ok",
		"apiKey": newKey,
	})
}
