package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketledger/pocketledger/internal/platform/httpx"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveRateLimit(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func headerKey(r *http.Request) string {
	return "user:" + r.Header.Get("X-Test-User")
}

func TestMiddlewareThrottlesAfterLimit(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 5, 60*time.Second)
	obs := &recordingObserver{}
	handler := Middleware(MiddlewareOptions{Limiter: limiter, KeyFunc: headerKey, Observer: obs})(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/expenses/", nil)
		req.Header.Set("X-Test-User", "alice")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "5", rr.Header().Get("X-RateLimit-Limit"))
	}

	req := httptest.NewRequest(http.MethodGet, "/expenses/", nil)
	req.Header.Set("X-Test-User", "alice")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
	assert.Equal(t, "Too Many Requests! Limit is 5 per 60 seconds.", problem.Detail)

	assert.Equal(t, []string{"allowed", "allowed", "allowed", "allowed", "allowed", "throttled"}, obs.outcomes)

	// another identity is unaffected
	other := httptest.NewRequest(http.MethodGet, "/expenses/", nil)
	other.Header.Set("X-Test-User", "bob")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddlewareFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := New(NewRedisStore(client, ""), Config{Limit: 1, Window: time.Minute, StoreTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	mr.Close()

	obs := &recordingObserver{}
	handler := Middleware(MiddlewareOptions{Limiter: limiter, KeyFunc: headerKey, Observer: obs})(okHandler())

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/expenses/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, []string{"unavailable", "unavailable", "unavailable"}, obs.outcomes)
}

func TestMiddlewareExemptPathsBypassCounter(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 1, time.Minute)
	handler := Middleware(MiddlewareOptions{
		Limiter: limiter,
		KeyFunc: headerKey,
		Exempt:  func(r *http.Request) bool { return r.URL.Path == "/" },
	})(okHandler())

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
	assert.False(t, mr.Exists("rate_limit:user:"))
}
