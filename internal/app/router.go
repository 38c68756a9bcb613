package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/pocketledger/pocketledger/internal/audit/http"
	"github.com/pocketledger/pocketledger/internal/auth"
	"github.com/pocketledger/pocketledger/internal/categories"
	"github.com/pocketledger/pocketledger/internal/expenses"
	"github.com/pocketledger/pocketledger/internal/identity"
	"github.com/pocketledger/pocketledger/internal/observability"
	"github.com/pocketledger/pocketledger/internal/platform/httpx"
	"github.com/pocketledger/pocketledger/internal/ratelimit"
	"github.com/pocketledger/pocketledger/jobs"
)

// HealthMessage is returned by GET /.
const HealthMessage = "Expense Tracker API is running!"

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Resolver *identity.Resolver
	Limiter  *ratelimit.Limiter
	Metrics  *observability.Metrics

	// RequireUser guards every ownership-scoped route group.
	RequireUser func(http.Handler) http.Handler

	AuthHandler     *auth.Handler
	CategoryHandler *categories.Handler
	ExpenseHandler  *expenses.Handler
	AuditHandler    *audithttp.Handler
	JobHandler      *jobs.Handler

	// AccessLog enables chi's request logger.
	AccessLog bool
}

// NewRouter constructs the chi.Router with PocketLedger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	if params.AccessLog {
		r.Use(chimw.Logger)
	}
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Resolver: params.Resolver,
		Limiter:  params.Limiter,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"message": HealthMessage})
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		if params.RequireUser != nil {
			r.Use(params.RequireUser)
		}
		if params.CategoryHandler != nil {
			r.Route("/categories", params.CategoryHandler.MountRoutes)
		}
		if params.ExpenseHandler != nil {
			r.Route("/expenses", params.ExpenseHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	return r
}
