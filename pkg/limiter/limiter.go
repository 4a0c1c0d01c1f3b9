// Package limiter provides a Redis sliding-window limiter shared by every
// API instance.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, then admits the call if the
// remaining count is under the limit.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, ttl_ms)
	return 1
end
return 0
`)

// SlidingWindow allows at most limit calls per key in any window
type SlidingWindow struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewSlidingWindow creates a limiter whose keys are namespaced by prefix
func NewSlidingWindow(client redis.Cmdable, prefix string, limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Limit returns the configured calls per window
func (l *SlidingWindow) Limit() int { return l.limit }

// Allow records a call for key and reports whether it is within the limit
func (l *SlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().UnixMilli()
	windowStart := now - l.window.Milliseconds()

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{fmt.Sprintf("%s%s", l.prefix, key)},
		now,
		windowStart,
		l.limit,
		l.window.Milliseconds(),
		uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("sliding window %s: %w", key, err)
	}
	return res == 1, nil
}
