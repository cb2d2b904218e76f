package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/imupulse/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter returns one token bucket per client IP, shared by every
// route the middleware is attached to. Start and stop draw from the same
// bucket, so toggling ingestion counts against a single budget.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := strconv.Itoa(retryAfterSeconds(ratePerSecond))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			denied := apperrors.RateLimitedError("rate limit exceeded").
				WithField("retry_after_seconds", retryAfter)
			return c.JSON(denied.HTTPStatus(), denied.ToResponse())
		},
	})
}

// retryAfterSeconds is the time until one token is refilled, rounded up.
func retryAfterSeconds(ratePerSecond float64) int {
	if ratePerSecond <= 0 {
		return int(rateLimiterExpiry.Seconds())
	}
	return max(1, int(math.Ceil(1/ratePerSecond)))
}
