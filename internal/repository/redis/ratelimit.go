package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set of hit timestamps. A rejected hit is not
// recorded, so a client hammering the endpoint is let back in as soon as
// its oldest accepted booking leaves the window.
//
//	KEYS[1] = window key
//	ARGV    = now_ms, window_ms, limit, member
//	returns {allowed, hits, retry_ms}
const luaBookingWindow = `
local now, window, limit = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local hits = redis.call('ZCARD', KEYS[1])

if hits >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then retry = tonumber(oldest[2]) + window - now end
  if retry < 1 then retry = 1 end
  return {0, hits, retry}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, hits + 1, 0}
`

// SlidingWindowLimiter allows at most limit hits per scope id in any window.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
	script *redis.Script
}

func NewSlidingWindowLimiter(rdb *redis.Client, scope string, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: window,
		script: redis.NewScript(luaBookingWindow),
	}
}

type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, id string) (Decision, error) {
	const op = "redis.SlidingWindowLimiter.Allow"

	vals, err := l.script.Run(ctx, l.rdb,
		[]string{KeyRateLimit(l.scope, id)},
		time.Now().UnixMilli(), l.window.Milliseconds(), l.limit, hitID(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%s:%w", op, err)
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("%s: unexpected script reply %v", op, vals)
	}

	return Decision{
		Allowed:    vals[0] == 1,
		Count:      vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// hitID keeps two hits in the same millisecond distinct in the set.
func hitID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
