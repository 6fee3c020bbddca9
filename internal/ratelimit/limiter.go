// Package ratelimit throttles enqueue traffic with a token bucket kept in
// Redis, so every API replica shares one budget per caller.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"media-jobs/internal/telemetry"
)

const keyPrefix = "ratelimit:enqueue:"

// Limiter is a distributed token bucket. Each caller key refills at a fixed
// rate up to a capacity; one token is spent per enqueue.
type Limiter struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

// NewLimiter builds a limiter on the shared Redis client. Bucket state
// expires after ttl of inactivity so abandoned callers don't accumulate keys.
func NewLimiter(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *Limiter {
	return &Limiter{
		client:   client,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
	}
}

// Allow spends one token for the caller if any remain. It returns the
// allowed flag and the tokens left afterward.
func (l *Limiter) Allow(ctx context.Context, caller string) (bool, float64, error) {
	now := time.Now().UnixMilli()
	res, err := takeScript.Run(ctx, l.client, []string{keyPrefix + caller},
		l.capacity, l.refill, now, l.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, nil
	}
	allowed := arr[0].(int64) == 1
	remaining := 0.0
	switch v := arr[1].(type) {
	case int64:
		remaining = float64(v)
	case float64:
		remaining = v
	}
	return allowed, remaining, nil
}

// Middleware rejects requests with 429 once the caller's bucket is empty.
// Callers are keyed by remote IP. Redis trouble fails open: dropping writes
// because the limiter is down would turn a Redis outage into an API outage.
func (l *Limiter) Middleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := callerKey(r)
			allowed, _, err := l.Allow(r.Context(), caller)
			if err != nil {
				logger.Warn("rate limiter unavailable, failing open", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				telemetry.RateLimitRejects.Inc()
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Refill math happens inside Redis so concurrent replicas can't double-spend
// a token between read and write.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'updated_ms')
local tokens = tonumber(state[1])
local updated = tonumber(state[2])
if tokens == nil then tokens = capacity end
if updated == nil then updated = now end

local elapsed = math.max(0, now - updated)
tokens = math.min(capacity, tokens + elapsed / 1000 * refill)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'updated_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)
