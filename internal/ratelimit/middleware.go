package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/pocketledger/pocketledger/internal/platform/httpx"
)

// Observer receives one call per gated request.
type Observer interface {
	ObserveRateLimit(outcome string)
}

// MiddlewareOptions wires a Limiter into an HTTP chain.
type MiddlewareOptions struct {
	Limiter *Limiter
	// KeyFunc returns the identity key for the request.
	KeyFunc func(*http.Request) string
	// Exempt requests bypass the limiter entirely.
	Exempt   func(*http.Request) bool
	Logger   *slog.Logger
	Observer Observer
}

// Middleware returns an interceptor that rejects throttled requests with 429
// and lets requests through when the store is unavailable.
func Middleware(opts MiddlewareOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Limiter.Config()
	windowSeconds := int(cfg.Window / time.Second)
	message := fmt.Sprintf("Too Many Requests! Limit is %d per %d seconds.", cfg.Limit, windowSeconds)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Exempt != nil && opts.Exempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			key := opts.KeyFunc(r)
			res := opts.Limiter.Check(r.Context(), key)
			if opts.Observer != nil {
				opts.Observer.ObserveRateLimit(res.Outcome.String())
			}

			switch res.Outcome {
			case Unavailable:
				logger.Warn("rate limit store unavailable, allowing request",
					slog.String("key", key), slog.Any("error", res.Err))
				next.ServeHTTP(w, r)
			case Throttled:
				writeHeaders(w, res)
				w.Header().Set("Retry-After", strconv.Itoa(ceilSeconds(res.RetryAfter)))
				httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", message)
			default:
				writeHeaders(w, res)
				next.ServeHTTP(w, r)
			}
		})
	}
}

func writeHeaders(w http.ResponseWriter, res Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(res.RetryAfter)))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
