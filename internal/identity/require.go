package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketledger/pocketledger/internal/platform/httpx"
)

// ErrUnknownPrincipal is returned by lookups when no active user matches.
var ErrUnknownPrincipal = errors.New("unknown principal")

// Principal is the confirmed user record behind an authenticated identity.
// Ownership-scoped operations read the owner id from here and nowhere else.
type Principal struct {
	UserID   int64
	Email    string
	FullName string
}

// PrincipalLookup resolves a verified subject to an active user.
type PrincipalLookup interface {
	LookupPrincipal(ctx context.Context, email string) (Principal, error)
}

// RequireUser rejects anonymous callers and subjects without an active user
// record, and stores the Principal for downstream handlers.
func RequireUser(lookup PrincipalLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok || !id.IsAuthenticated() {
				httpx.Unauthorized(w, "Could not validate credentials")
				return
			}
			principal, err := lookup.LookupPrincipal(r.Context(), id.Subject)
			if err != nil {
				if errors.Is(err, ErrUnknownPrincipal) {
					httpx.Unauthorized(w, "User not found")
					return
				}
				logger.Error("lookup principal", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal set by RequireUser.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok || p.UserID <= 0 {
		return Principal{}, false
	}
	return p, true
}
