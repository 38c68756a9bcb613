package expenses

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pocketledger/pocketledger/internal/identity"
	"github.com/pocketledger/pocketledger/internal/platform/httpx"
)

// Handler manages expense endpoints.
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

// MountRoutes registers expense routes. Callers mount it behind RequireUser.
// Summary routes are registered before /{id} so they are not shadowed.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/summary", h.summary)
	r.Get("/summary/", h.summary)
	r.Get("/summary/monthly", h.summary)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req CreateExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Normalize()
	if fields := h.validator.Struct(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	e, err := h.service.Create(r.Context(), p.UserID, req)
	if err != nil {
		h.writeError(w, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToResponse(e))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.List(r.Context(), p.UserID, filter)
	if err != nil {
		h.writeError(w, "list expenses", err)
		return
	}
	out := make([]ExpenseResponse, 0, len(items))
	for _, e := range items {
		out = append(out, ToResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	var (
		f   ListFilter
		err error
	)
	if f.Skip, err = httpx.QueryInt(r, "skip", 0); err != nil {
		return f, err
	}
	if f.Limit, err = httpx.QueryInt(r, "limit", 0); err != nil {
		return f, err
	}
	if f.CategoryID, err = httpx.QueryInt64Ptr(r, "category_id"); err != nil {
		return f, err
	}
	if f.StartDate, err = httpx.QueryDatePtr(r, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = httpx.QueryDatePtr(r, "end_date"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	fields := make(map[string]string)
	month := periodParam(r, "month", fields)
	year := periodParam(r, "year", fields)
	if len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	totals, err := h.service.MonthlySummary(r.Context(), p.UserID, month, year)
	if err != nil {
		h.writeError(w, "monthly summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

// periodParam reads an integer query parameter, recording a failure for
// that parameter only.
func periodParam(r *http.Request, name string, fields map[string]string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		fields[name] = "is required"
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fields[name] = "must be an integer"
		return 0
	}
	return v
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
	e, err := h.service.Get(r.Context(), p.UserID, id)
	if err != nil {
		h.writeError(w, "get expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(e))
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
	var req UpdateExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Normalize()
	if fields := h.validator.Struct(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	e, err := h.service.Update(r.Context(), p.UserID, id, req)
	if err != nil {
		h.writeError(w, "update expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(e))
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
		h.writeError(w, "delete expense", err)
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
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Expense not found")
	case errors.Is(err, ErrNoData):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "No expenses found for this period")
	case errors.Is(err, ErrCategoryNotOwned):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Category not found")
	case errors.Is(err, ErrInvalidPeriod), errors.Is(err, ErrInvalidRange), errors.Is(err, ErrInvalidExpense):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
