package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// Store defaults to an in-process MemoryStore.
	Store LimiterStore
	// Logger receives store failures. Requests are let through when the store
	// errors.
	Logger *zerolog.Logger
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
	}
}

// LimiterStore decides whether key may make another request now.
type LimiterStore interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// MemoryStore keeps one token bucket per key in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewMemoryStore(rps float64, burst int) *MemoryStore {
	if burst < 1 {
		burst = 1
	}
	return &MemoryStore{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

func (s *MemoryStore) limiter(key string) *rate.Limiter {
	s.mu.RLock()
	l, ok := s.limiters[key]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[key]; ok {
		return l
	}
	l = rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = l
	return l
}

func (s *MemoryStore) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l := s.limiter(key)
	now := time.Now()
	if l.AllowN(now, 1) {
		return true, 0, nil
	}
	r := l.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second, nil
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay, nil
}

// redisCounter is the part of *redis.Client used by RedisStore.
type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisStore shares limits across replicas with a fixed one-second window:
// at most limit requests per key per wall-clock second.
type RedisStore struct {
	client redisCounter
	limit  int64
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redisCounter, limit int) *RedisStore {
	if limit < 1 {
		limit = 1
	}
	return &RedisStore{client: client, limit: int64(limit), prefix: "discharge:ratelimit:", now: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := s.now()
	window := fmt.Sprintf("%s%s:%d", s.prefix, key, now.Unix())

	n, err := s.client.Incr(ctx, window).Result()
	if err != nil {
		return true, 0, fmt.Errorf("incr rate limit counter: %w", err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, window, 2*time.Second).Err(); err != nil {
			return true, 0, fmt.Errorf("expire rate limit counter: %w", err)
		}
	}
	if n > s.limit {
		next := now.Truncate(time.Second).Add(time.Second)
		return false, next.Sub(now), nil
	}
	return true, 0, nil
}

// RateLimit limits requests per client IP, or per authenticated user when the
// request carries one.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(cfg.RequestsPerSecond, cfg.BurstSize)
	}
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" && uid != auth.AnonymousUser {
				key = "user:" + uid
			}

			allowed, retryAfter, err := store.Allow(c.Request().Context(), key)
			if err != nil && cfg.Logger != nil {
				cfg.Logger.Warn().Err(err).Msg("rate limit store unavailable, allowing request")
			}

			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)
			if !allowed {
				secs := int(retryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
