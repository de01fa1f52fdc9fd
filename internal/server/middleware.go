package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "github.com/savagegamesllc-ui/chat-factions-sub000/internal/errors"
)

// errorHandlingMiddleware converts structured errors into JSON responses
// with the matching status code. Plain echo errors pass through untouched.
func errorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	if streamerID := c.Get("streamerID"); streamerID != nil {
		attrs = append(attrs, "streamer_id", streamerID)
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.Info("validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.Info("not found", attrs...)
	case apperrors.TypeConflict:
		slog.Warn("conflict", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.Error("internal error", attrs...)
	}
}

// requireAuth resolves the logged-in streamer from the session cookie and
// stores the id in the echo context under "streamerID".
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
		}

		raw, ok := session.Values[sessionKeyStreamerID].(string)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
		}
		streamerID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
		}

		c.Set("streamerID", streamerID)
		return next(c)
	}
}

func streamerIDFromContext(c echo.Context) (uuid.UUID, error) {
	id, ok := c.Get("streamerID").(uuid.UUID)
	if !ok {
		return uuid.Nil, apperrors.InternalError("missing streamer id in context", nil)
	}
	return id, nil
}
