package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tallybook/tallybook/internal/platform/httpx"
)

// Handler exposes the audit trail over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.trail)
}

type trailRowView struct {
	ID         int64           `json:"id"`
	ActorID    int64           `json:"actor_id"`
	ActorName  string          `json:"actor_name,omitempty"`
	Action     string          `json:"action"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	SourceAddr string          `json:"source_addr,omitempty"`
	At         time.Time       `json:"at"`
}

type trailResponse struct {
	Rows     []trailRowView `json:"rows"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	HasNext  bool           `json:"has_next"`
}

func (h *Handler) trail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TrailFilters{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	if v := q.Get("actor_id"); v != "" {
		filters.ActorID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.To = t
		}
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	result, err := h.service.Trail(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit trail", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	rows := make([]trailRowView, 0, len(result.Rows))
	for _, rec := range result.Rows {
		rows = append(rows, trailRowView{
			ID:         rec.ID,
			ActorID:    rec.ActorID,
			ActorName:  rec.ActorName,
			Action:     string(rec.Action),
			Entity:     rec.Entity,
			EntityID:   rec.EntityID,
			Before:     json.RawMessage(rec.Before),
			After:      json.RawMessage(rec.After),
			SourceAddr: rec.SourceAddr,
			At:         rec.At,
		})
	}
	httpx.JSON(w, http.StatusOK, trailResponse{
		Rows:     rows,
		Page:     result.Paging.Page,
		PageSize: result.Paging.PageSize,
		HasNext:  result.Paging.HasNext,
	})
}
