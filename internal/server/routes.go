package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Auth routes
	s.echo.GET("/auth/login", s.handleLogin)
	s.echo.GET("/auth/callback", s.handleOAuthCallback)
	s.echo.POST("/auth/logout", s.handleLogout, s.requireAuth)

	// Dashboard API (authenticated)
	api := s.echo.Group("/api", s.requireAuth)
	api.GET("/me", s.handleMe)
	api.GET("/factions", s.handleListFactions)
	api.POST("/factions", s.handleCreateFaction)
	api.PATCH("/factions/:key", s.handleUpdateFaction)
	api.DELETE("/factions/:key", s.handleDeleteFaction)
	api.GET("/settings/decay", s.handleGetDecaySettings)
	api.PUT("/settings/decay", s.handleSaveDecaySettings)
	api.GET("/settings/policy", s.handleGetPolicySettings)
	api.PUT("/settings/policy", s.handleSavePolicySettings)
	api.GET("/commands", s.handleListCommands)
	api.PUT("/commands/:trigger", s.handleSaveCommand)
	api.GET("/events/log", s.handleEventLog)
	api.POST("/rotate-overlay-uuid", s.handleRotateOverlayUUID)
	api.POST("/rotate-api-key", s.handleRotateAPIKey)
	api.POST("/twitch/disconnect", s.handleTwitchDisconnect)

	// Generic keyed event API (X-Api-Key auth, rate limited - NO cookie auth)
	s.echo.POST("/api/events", s.handleIngestEvent, apiKeyRateLimiter())

	// Webhook route (EventSub notifications from Twitch)
	if s.deps.Webhook != nil {
		s.echo.POST("/webhooks/eventsub", s.deps.Webhook.HandleEventSub)
	}

	// Public overlay routes keyed by unguessable UUID
	s.echo.GET("/overlay/:uuid/events", s.handleOverlayStream)
	s.echo.GET("/overlay/:uuid/snapshot", s.handleOverlaySnapshot)
}
