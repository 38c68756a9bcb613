package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pocketledger/pocketledger/internal/audit"
	"github.com/pocketledger/pocketledger/internal/identity"
	"github.com/pocketledger/pocketledger/internal/platform/httpx"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the caller's audit trail.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.writeError(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.writeError(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.writeError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) filters(w http.ResponseWriter, r *http.Request) (audit.TimelineFilters, bool) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "Could not validate credentials")
		return audit.TimelineFilters{}, false
	}
	filters, field := h.parseFilters(r)
	if field != "" {
		httpx.ValidationProblem(w, map[string]string{field: "is invalid"})
		return audit.TimelineFilters{}, false
	}
	filters.OwnerID = p.UserID
	return filters, true
}

// parseFilters returns the name of the first invalid parameter, if any.
func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, string) {
	q := r.URL.Query()
	now := h.now().UTC()
	toTime := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(httpx.DateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, "to"
		}
		toTime = parsed
	}
	fromTime := toTime.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(httpx.DateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, "from"
		}
		fromTime = parsed
	}
	if fromTime.After(toTime) || toTime.Sub(fromTime) > maxDateRange {
		return audit.TimelineFilters{}, "range"
	}
	page, err := httpx.QueryInt(r, "page", 1)
	if err != nil || page <= 0 {
		return audit.TimelineFilters{}, "page"
	}
	pageSize, err := httpx.QueryInt(r, "page_size", 0)
	if err != nil || pageSize < 0 {
		return audit.TimelineFilters{}, "page_size"
	}
	return audit.TimelineFilters{
		From:       fromTime,
		To:         toTime,
		Action:     strings.TrimSpace(q.Get("action")),
		TargetType: strings.TrimSpace(q.Get("target_type")),
		Page:       page,
		PageSize:   pageSize,
	}, ""
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, audit.ErrInvalidFilter) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
