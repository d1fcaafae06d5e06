package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set of hit timestamps. Only admitted hits are
// recorded, so a client that keeps hammering a full window is let back in as
// soon as the oldest admitted hit ages out.
//
//	KEYS[1] window key
//	ARGV    now_ms, window_ms, limit, member
//	returns {allowed, hits_in_window, retry_after_ms}
const luaSlidingWindow = `
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local hits = redis.call('ZCARD', KEYS[1])

if hits >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  if retry < 1 then retry = 1 end
  return {0, hits, retry}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, hits + 1, 0}
`

// SlidingWindowLimiter bounds how often one subject (a buyer polling an
// order) may hit the provider.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	script *redis.Script

	now    func() time.Time
	member func() string
}

func NewSlidingWindowLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *SlidingWindowLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &SlidingWindowLimiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		script: redis.NewScript(luaSlidingWindow),
		now:    time.Now,
		member: uuid.NewString,
	}
}

// Allow records a hit for subject if the window has room.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, subject string) (allowed bool, hits int64, retryAfter time.Duration, err error) {
	const op = "redisrepo.SlidingWindowLimiter.Allow"

	vals, err := l.script.Run(ctx, l.rdb,
		[]string{l.prefix + ":" + subject},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, l.member(),
	).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("%s:%w", op, err)
	}
	if len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("%s: unexpected script reply %v", op, vals)
	}

	return vals[0] == 1, vals[1], time.Duration(vals[2]) * time.Millisecond, nil
}
