package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fiscalia/fiscalia/internal/platform/httpx"
	"github.com/fiscalia/fiscalia/internal/shared"
)

// Handler exposes the read-only audit listing endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler returns a new audit HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type listResponse struct {
	Entries    []Entry           `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

// List serves GET /audit-logs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filters{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
		ActorID:  q.Get("actor_id"),
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date_from")
			return
		}
		f.From = t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date_to")
			return
		}
		// Inclusive upper bound covering the whole day.
		f.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil {
		f.PerPage = v
	}

	entries, total, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list audit logs", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Entries:    entries,
		Pagination: shared.NewPagination(f.Page, f.PerPage, total),
	})
}
