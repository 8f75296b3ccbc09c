// Package ratelimit throttles login attempts per client key, independently of
// the per-account lockout.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// DefaultWindow is the fixed window over which a limit is counted.
const DefaultWindow = time.Minute

type Limiter interface {
	// Allow records one attempt for key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
	// RetryAfter estimates how long key must wait before its next attempt is allowed.
	RetryAfter(ctx context.Context, key string) time.Duration
	Window() time.Duration
}

// RedisLimiter counts attempts in fixed windows shared by every instance
// talking to the same Redis.
type RedisLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if prefix == "" {
		prefix = "ratelimit:login"
	}
	return &RedisLimiter{redis: client, limit: limit, window: window, prefix: prefix}
}

// Allow fails open: on a Redis error the attempt is allowed and the error returned.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.key(key)

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	// A key without a TTL (first hit, or an earlier Expire that never landed)
	// gets one now, so a window can never become permanent.
	if ttl.Val() < 0 {
		if err := l.redis.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return true, fmt.Errorf("redis error: %w", err)
		}
	}

	return incr.Val() <= int64(l.limit), nil
}

// RetryAfter is the time left in key's current window.
func (l *RedisLimiter) RetryAfter(ctx context.Context, key string) time.Duration {
	ttl, err := l.redis.TTL(ctx, l.key(key)).Result()
	if err != nil || ttl <= 0 {
		return l.window
	}
	return ttl
}

func (l *RedisLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

func (l *RedisLimiter) Window() time.Duration {
	return l.window
}

// Close releases the underlying Redis client.
func (l *RedisLimiter) Close() error {
	return l.redis.Close()
}

// NewRedisClient connects to redisURL (redis://[:password@]host:port/db) and pings it.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

// LocalLimiter keeps a token bucket per key in process memory. Limits are not
// shared between instances.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	limit    int
	window   time.Duration
	now      func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// maxLocalKeys bounds the map before idle entries are swept.
const maxLocalKeys = 10000

func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLocalKeys {
			l.sweep(now)
		}
		entry = &localEntry{
			limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit),
		}
		l.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1), nil
}

func (l *LocalLimiter) Window() time.Duration {
	return l.window
}

func (l *LocalLimiter) RetryAfter(_ context.Context, key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		return l.window
	}
	now := l.now()
	r := entry.limiter.ReserveN(now, 1)
	if !r.OK() {
		return l.window
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay
}

// sweep drops buckets idle for a full window; they would be full again anyway.
func (l *LocalLimiter) sweep(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.window {
			delete(l.limiters, key)
		}
	}
}
