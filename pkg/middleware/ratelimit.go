package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Ramsey-B/iris/pkg/redis"
)

const rateLimitMessage = "Too many requests. Please try again later."

type RateLimitConfig struct {
	Max    int64
	Window time.Duration
	// Skip bypasses the limiter, e.g. for health probes.
	Skip echomw.Skipper
}

// RateLimit limits each client ip to Max requests per Window using store.
func RateLimit(store echomw.RateLimiterStore, cfg RateLimitConfig) echo.MiddlewareFunc {
	skipper := cfg.Skip
	if skipper == nil {
		skipper = echomw.DefaultSkipper
	}
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: skipper,
		Store:   store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, rateLimitMessage)
		},
	})
}

// NewMemoryRateLimitStore is a per-process token bucket sized to Max requests per Window.
func NewMemoryRateLimitStore(cfg RateLimitConfig) echomw.RateLimiterStore {
	return echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(cfg.Max) / cfg.Window.Seconds()),
		Burst:     int(cfg.Max),
		ExpiresIn: cfg.Window,
	})
}

// RedisRateLimitStore shares a sliding window across every instance.
type RedisRateLimitStore struct {
	limiter *redis.RateLimiter
	max     int64
	window  time.Duration
	logger  ectologger.Logger
}

func NewRedisRateLimitStore(client *redis.Client, cfg RateLimitConfig, logger ectologger.Logger) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		limiter: redis.NewRateLimiter(client, "iris:ratelimit:"),
		max:     cfg.Max,
		window:  cfg.Window,
		logger:  logger,
	}
}

// Allow fails open when redis is unreachable.
func (s *RedisRateLimitStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := s.limiter.Allow(ctx, identifier, s.max, s.window)
	if err != nil {
		s.logger.WithError(err).Warn("rate limit check failed, allowing request")
		return true, nil
	}
	return result.Allowed, nil
}
