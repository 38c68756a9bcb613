// Package identity resolves the caller of a request into either a verified
// user subject or an anonymous, connection-keyed identity.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/pocketledger/pocketledger/internal/token"
)

// Kind tags an Identity variant.
type Kind int

const (
	// Anonymous callers are keyed by connection only and never authorised.
	Anonymous Kind = iota
	// Authenticated callers presented a verified token.
	Authenticated
)

func (k Kind) String() string {
	if k == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Identity is the per-request caller. Subject is set only for
// Authenticated; ConnKey is always set.
type Identity struct {
	Kind    Kind
	Subject string
	ConnKey string
}

// IsAuthenticated reports whether the identity came from a verified token.
func (id Identity) IsAuthenticated() bool {
	return id.Kind == Authenticated && id.Subject != ""
}

// RateKey is the key used for rate limiting this identity.
func (id Identity) RateKey() string {
	if id.IsAuthenticated() {
		return "user:" + strings.ToLower(id.Subject)
	}
	return "ip:" + id.ConnKey
}

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(raw string) (token.Claims, error)
}

// Resolver turns requests into identities.
type Resolver struct {
	verifier Verifier
	logger   *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(verifier Verifier, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{verifier: verifier, logger: logger}
}

// Resolve never fails: requests without a valid bearer token resolve to an
// Anonymous identity keyed by the client address.
func (res *Resolver) Resolve(r *http.Request) Identity {
	connKey := ConnKey(r)
	raw, ok := BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return Identity{Kind: Anonymous, ConnKey: connKey}
	}
	claims, err := res.verifier.Verify(raw)
	if err != nil {
		if !errors.Is(err, token.ErrExpiredToken) {
			res.logger.Debug("bearer token rejected", slog.Any("error", err), slog.String("conn", connKey))
		}
		return Identity{Kind: Anonymous, ConnKey: connKey}
	}
	return Identity{Kind: Authenticated, Subject: claims.Subject, ConnKey: connKey}
}

// Middleware attaches the resolved identity to the request context. It never
// rejects; RequireUser does that for protected routes.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := res.Resolve(r)
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, credential, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", false
	}
	return credential, true
}

// ConnKey derives a connection identifier from the request's remote address.
func ConnKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the identity stored in ctx, or false when absent.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
