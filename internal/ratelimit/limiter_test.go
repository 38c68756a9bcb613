package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := New(NewRedisStore(client, ""), Config{Limit: limit, Window: window, StoreTimeout: time.Second})
	require.NoError(t, err)
	return limiter, mr
}

func TestLimiterFixedWindow(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 5, 60*time.Second)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res := limiter.Check(ctx, "user:alice@example.com")
		require.Equal(t, Allowed, res.Outcome, "request %d", i)
		assert.Equal(t, int64(i), res.Count)
		assert.Equal(t, 5-i, res.Remaining)
	}

	res := limiter.Check(ctx, "user:alice@example.com")
	assert.Equal(t, Throttled, res.Outcome)
	assert.Equal(t, int64(5), res.Count, "throttled requests are not counted")
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	stored, err := mr.Get("rate_limit:user:alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "5", stored)

	mr.FastForward(61 * time.Second)

	res = limiter.Check(ctx, "user:alice@example.com")
	assert.Equal(t, Allowed, res.Outcome)
	assert.Equal(t, int64(1), res.Count)
	assert.True(t, res.WindowStarted)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	assert.Equal(t, Allowed, limiter.Check(ctx, "ip:10.0.0.1").Outcome)
	assert.Equal(t, Throttled, limiter.Check(ctx, "ip:10.0.0.1").Outcome)
	assert.Equal(t, Allowed, limiter.Check(ctx, "ip:10.0.0.2").Outcome)
}

func TestLimiterWindowAnchoredToFirstRequest(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 3, 10*time.Second)
	ctx := context.Background()

	require.True(t, limiter.Check(ctx, "k").WindowStarted)
	mr.FastForward(6 * time.Second)
	res := limiter.Check(ctx, "k")
	assert.False(t, res.WindowStarted)
	assert.LessOrEqual(t, res.RetryAfter, 4*time.Second)

	mr.FastForward(5 * time.Second)
	assert.True(t, limiter.Check(ctx, "k").WindowStarted)
}

func TestLimiterConcurrentFirstWindow(t *testing.T) {
	const n = 50
	limiter, mr := newRedisLimiter(t, 1000, time.Minute)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
		allowed int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res := limiter.Check(ctx, "user:burst@example.com")
			mu.Lock()
			defer mu.Unlock()
			if res.Outcome == Allowed {
				allowed++
			}
			if res.WindowStarted {
				started++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, n, allowed)
	assert.Equal(t, 1, started, "exactly one request arms the window")
	stored, err := mr.Get("rate_limit:user:burst@example.com")
	require.NoError(t, err)
	assert.Equal(t, "50", stored)
	assert.Greater(t, mr.TTL("rate_limit:user:burst@example.com"), time.Duration(0))
}

func TestLimiterRearmsMissingExpiry(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 2, time.Minute)
	require.NoError(t, mr.Set("rate_limit:stuck", "9"))

	res := limiter.Check(context.Background(), "stuck")
	assert.Equal(t, Throttled, res.Outcome)
	assert.Greater(t, mr.TTL("rate_limit:stuck"), time.Duration(0))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, Allowed, limiter.Check(context.Background(), "stuck").Outcome)
}

func TestLimiterUnavailableStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := New(NewRedisStore(client, ""), Config{Limit: 1, Window: time.Minute, StoreTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	mr.Close()

	res := limiter.Check(context.Background(), "ip:10.0.0.1")
	assert.Equal(t, Unavailable, res.Outcome)
	assert.Error(t, res.Err)
}

func TestNewValidatesConfig(t *testing.T) {
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	_, err := New(store, Config{Limit: 0, Window: time.Minute})
	assert.Error(t, err)
	_, err = New(store, Config{Limit: 1})
	assert.Error(t, err)
	_, err = New(nil, Config{Limit: 1, Window: time.Minute})
	assert.Error(t, err)
}
