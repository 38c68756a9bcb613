package categories

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pocketledger/pocketledger/internal/identity"
	"github.com/pocketledger/pocketledger/internal/platform/httpx"
)

// Handler manages category endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *httpx.Validator
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers category routes. Callers mount it behind RequireUser.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req CreateCategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	c, err := h.service.Create(r.Context(), p.UserID, req)
	if err != nil {
		h.writeError(w, "create category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToResponse(c))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	skip, err := httpx.QueryInt(r, "skip", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.List(r.Context(), p.UserID, ListCategoriesRequest{Skip: skip, Limit: limit})
	if err != nil {
		h.writeError(w, "list categories", err)
		return
	}
	out := make([]CategoryResponse, 0, len(items))
	for _, c := range items {
		out = append(out, ToResponse(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), p.UserID, id)
	if err != nil {
		h.writeError(w, "get category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(c))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateCategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validator.Struct(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	c, err := h.service.Update(r.Context(), p.UserID, id, req)
	if err != nil {
		h.writeError(w, "update category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(c))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), p.UserID, id); err != nil {
		h.writeError(w, "delete category", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "Could not validate credentials")
	}
	return p, ok
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Category not found")
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusBadRequest, "Duplicate", "Category already exists")
	case errors.Is(err, ErrInvalidName):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
