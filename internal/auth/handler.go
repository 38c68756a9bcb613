package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pocketledger/pocketledger/internal/identity"
	"github.com/pocketledger/pocketledger/internal/platform/httpx"
)

const loginWindow = time.Minute

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *httpx.Validator
	requireUser func(http.Handler) http.Handler
	loginLimit  int
}

// NewHandler constructs a Handler instance. requireUser guards /me; loginLimit
// caps token requests per client address per minute (zero disables it).
func NewHandler(logger *slog.Logger, service *Service, requireUser func(http.Handler) http.Handler, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		validator:   httpx.NewValidator(),
		requireUser: requireUser,
		loginLimit:  loginLimit,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Group(func(gr chi.Router) {
		if h.loginLimit > 0 {
			gr.Use(httprate.Limit(h.loginLimit, loginWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "Too many login attempts, try again later.")
				}),
			))
		}
		gr.Post("/token", h.handleToken)
	})
	r.Group(func(gr chi.Router) {
		if h.requireUser != nil {
			gr.Use(h.requireUser)
		}
		gr.Get("/me", h.handleMe)
	})
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"max=255"`
}

type tokenForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID       int64   `json:"id"`
	Email    string  `json:"email"`
	FullName *string `json:"full_name"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func toUserResponse(id int64, email, fullName string) UserResponse {
	resp := UserResponse{ID: id, Email: email}
	if fullName != "" {
		resp.FullName = &fullName
	}
	return resp
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if fields := h.validator.Struct(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	user, err := h.service.Register(r.Context(), RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httpx.Problem(w, http.StatusBadRequest, "Duplicate", "Email already registered")
			return
		}
		h.logger.Error("register user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(user.ID, user.Email, user.FullName))
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
		return
	}
	form := tokenForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if fields := h.validator.Struct(form); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	tok, err := h.service.Login(r.Context(), form.Username, form.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.Unauthorized(w, "Incorrect username or password")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok.Token,
		TokenType:   "bearer",
		ExpiresIn:   int64(tok.ExpiresIn / time.Second),
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "Could not validate credentials")
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(p.UserID, p.Email, p.FullName))
}
