package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateResult is the verdict for a single request
type RateResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key
type Limiter interface {
	Allow(ctx context.Context, key string) (RateResult, error)
	Limit() int
}

// MemoryLimiter keeps a fixed window counter per key in process memory, the
// same scheme RedisLimiter runs inside redis. Keys that stay idle for three
// windows are evicted
type MemoryLimiter struct {
	requests int
	window   time.Duration

	mu      sync.Mutex
	buckets *ttlcache.Cache
}

type counter struct {
	hits  int
	start time.Time
}

func NewMemoryLimiter(requests int, window time.Duration) (*MemoryLimiter, error) {
	if requests <= 0 || window <= 0 {
		return nil, fmt.Errorf("invalid rate limit %d per %s", requests, window)
	}

	buckets := ttlcache.NewCache()
	if err := buckets.SetTTL(3 * window); err != nil {
		return nil, fmt.Errorf("failed to set bucket TTL, %w", err)
	}

	return &MemoryLimiter{
		requests: requests,
		window:   window,
		buckets:  buckets,
	}, nil
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (RateResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	c := &counter{start: now}
	v, err := l.buckets.Get(key)
	switch {
	case err == nil:
		c = v.(*counter)
	case !errors.Is(err, ttlcache.ErrNotFound):
		return RateResult{Allowed: true}, fmt.Errorf("failed to load counter, %w", err)
	}

	if now.Sub(c.start) >= l.window {
		c.hits, c.start = 0, now
	}

	// Rejected requests count too, like INCR does in redis
	c.hits++

	if err := l.buckets.Set(key, c); err != nil {
		return RateResult{Allowed: true}, fmt.Errorf("failed to store counter, %w", err)
	}

	if c.hits > l.requests {
		return RateResult{RetryAfter: c.start.Add(l.window).Sub(now)}, nil
	}

	return RateResult{Allowed: true, Remaining: l.requests - c.hits}, nil
}

func (l *MemoryLimiter) Limit() int {
	return l.requests
}

func (l *MemoryLimiter) Close() error {
	return l.buckets.Close()
}

// Fixed window counter. Returns the hit count and the window's remaining ms
var fixedWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return { n, ttl }
`)

// RedisLimiter shares a fixed window counter per key between all instances
type RedisLimiter struct {
	rdb      *redis.Client
	requests int
	window   time.Duration
	prefix   string
}

func NewRedisLimiter(rdb *redis.Client, requests int, window time.Duration) (*RedisLimiter, error) {
	if requests <= 0 || window <= 0 {
		return nil, fmt.Errorf("invalid rate limit %d per %s", requests, window)
	}

	return &RedisLimiter{
		rdb:      rdb,
		requests: requests,
		window:   window,
		prefix:   "rl:",
	}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (RateResult, error) {
	vals, err := fixedWindow.Run(ctx, l.rdb, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return RateResult{Allowed: true}, fmt.Errorf("rate limit script failed, %w", err)
	}

	if len(vals) != 2 {
		return RateResult{Allowed: true}, fmt.Errorf("unexpected rate limit script result %v", vals)
	}

	hits, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	if ttl < 0 {
		ttl = l.window
	}

	if hits > l.requests {
		return RateResult{RetryAfter: ttl}, nil
	}

	return RateResult{Allowed: true, Remaining: l.requests - hits}, nil
}

func (l *RedisLimiter) Limit() int {
	return l.requests
}

// NewRateLimitMiddleware limits requests per client IP. Limiter errors let the
// request through
func NewRateLimitMiddleware(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			zap.L().Error("Rate limiter failed", zap.Error(err), zap.String("requestID", c.GetString("requestID")))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":     "Too many requests, please try again later.",
				"requestID": c.GetString("requestID"),
			})
			return
		}

		c.Next()
	}
}
