package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"

	"github.com/pocketledger/pocketledger/internal/identity"
	"github.com/pocketledger/pocketledger/internal/observability"
	"github.com/pocketledger/pocketledger/internal/ratelimit"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger   *slog.Logger
	Config   *Config
	Resolver *identity.Resolver
	Limiter  *ratelimit.Limiter
	Metrics  *observability.Metrics
}

// MiddlewareStack returns the ordered global chain. The identity is attached
// before the limiter runs so throttling keys on it, and nothing in this chain
// rejects unauthenticated requests.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	var middlewares []func(http.Handler) http.Handler
	if cfg.Config != nil && cfg.Config.TrustForwardedHeaders {
		middlewares = append(middlewares, middleware.RealIP)
	}
	middlewares = append(middlewares,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
	)
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	if cfg.Resolver != nil {
		middlewares = append(middlewares, cfg.Resolver.Middleware)
	}
	if cfg.Limiter != nil {
		opts := ratelimit.MiddlewareOptions{
			Limiter: cfg.Limiter,
			KeyFunc: rateKey,
			Exempt:  rateExempt,
			Logger:  logger,
		}
		if cfg.Metrics != nil {
			opts.Observer = cfg.Metrics
		}
		middlewares = append(middlewares, ratelimit.Middleware(opts))
	}
	return middlewares
}

func rateKey(r *http.Request) string {
	if id, ok := identity.FromContext(r.Context()); ok {
		return id.RateKey()
	}
	return identity.Identity{Kind: identity.Anonymous, ConnKey: identity.ConnKey(r)}.RateKey()
}

// rateExempt lets health checks and metric scrapes bypass the limiter.
func rateExempt(r *http.Request) bool {
	switch r.URL.Path {
	case "/", "/metrics":
		return true
	}
	return false
}
