package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const (
	eventAPIRatePerSecond = 5
	eventAPIBurst         = 10
	rateLimiterExpiry     = 5 * time.Minute
)

// apiKeyRateLimiter throttles the generic event API per API key, falling
// back to the caller IP when the header is absent so unauthenticated probes
// share one bucket per host.
func apiKeyRateLimiter() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(eventAPIRatePerSecond),
			Burst:     eventAPIBurst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if key := c.Request().Header.Get(headerAPIKey); key != "" {
				return key, nil
			}
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
		},
	})
}
