package decisionlog

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/platform/httpx"
)

// Handler exposes the decision timeline for compliance review.
type Handler struct {
	logger  *slog.Logger
	service *TimelineService
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *TimelineService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers decision timeline routes. The capability gate
// is applied by the router when mounting.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
	r.Get("/export", h.export)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("decision timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rows":   result.Rows,
		"paging": result.Paging,
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("decision export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	header, rows := ExportRows(entries)
	if err := httpx.CSV(w, "decisions.csv", header, rows); err != nil {
		h.logger.Error("write decision csv", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (Filters, error) {
	var filters Filters
	query := r.URL.Query()
	if raw := query.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filters{}, err
		}
		filters.From = t
	}
	if raw := query.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filters{}, err
		}
		filters.To = t
	}
	if raw := query.Get("actor"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Filters{}, err
		}
		filters.Actor = id
	}
	filters.Action = query.Get("action")
	filters.ResourceType = query.Get("resource")
	filters.SecurityOnly = query.Get("security") == "true"
	if raw := query.Get("page"); raw != "" {
		filters.Page, _ = strconv.Atoi(raw)
	}
	if raw := query.Get("pageSize"); raw != "" {
		filters.PageSize, _ = strconv.Atoi(raw)
	}
	return filters, nil
}
