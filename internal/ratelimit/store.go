package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Take is the store's answer for a single gated request.
type Take struct {
	// Allowed is false when the window was already at the limit; the
	// counter is not incremented in that case.
	Allowed bool
	// Count is the counter value after this request was applied.
	Count int64
	// TTL is the remaining lifetime of the window.
	TTL time.Duration
	// WindowStarted is true when this request armed the window expiry.
	WindowStarted bool
}

// CounterStore applies the read/increment/expire step atomically.
type CounterStore interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (Take, error)
}

// takeScript runs GET, INCR and the conditional PEXPIRE as one unit so two
// concurrent first requests cannot both arm the window and no increment is
// lost. A key over the limit with no expiry gets one re-armed so it cannot
// stay throttled forever.
var takeScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= limit then
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], window)
		ttl = window
	end
	return {0, current, ttl, 0}
end
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
local started = 0
if count == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], window)
	ttl = window
	started = 1
end
return {1, count, ttl, started}
`)

// RedisStore keeps counters in Redis.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisStore constructs a RedisStore. Keys are stored as prefix+key.
func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rate_limit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Take implements CounterStore.
func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration) (Take, error) {
	vals, err := takeScript.Run(ctx, s.client, []string{s.prefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Take{}, fmt.Errorf("ratelimit: redis take: %w", err)
	}
	if len(vals) != 4 {
		return Take{}, fmt.Errorf("ratelimit: redis take: unexpected reply length %d", len(vals))
	}
	return Take{
		Allowed:       vals[0] == 1,
		Count:         vals[1],
		TTL:           time.Duration(vals[2]) * time.Millisecond,
		WindowStarted: vals[3] == 1,
	}, nil
}
