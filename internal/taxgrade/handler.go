package taxgrade

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fiscalia/fiscalia/internal/audit"
	"github.com/fiscalia/fiscalia/internal/platform/httpx"
	"github.com/fiscalia/fiscalia/internal/shared"
)

// Handler exposes the tax grade CRUD endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	auditSvc *audit.Service
	validate *validator.Validate
}

// NewHandler returns a new tax grade HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, auditSvc *audit.Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		auditSvc: auditSvc,
		validate: validator.New(),
	}
}

type listResponse struct {
	TaxGrades  []TaxGrade        `json:"tax_grades"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilters{
		TaxpayerID: q.Get("taxpayer_id"),
		SourceType: q.Get("source_type"),
		Status:     q.Get("status"),
	}
	if v, err := strconv.Atoi(q.Get("year")); err == nil {
		f.FiscalYear = &v
	}
	if v, err := strconv.Atoi(q.Get("year_from")); err == nil {
		f.YearFrom = &v
	}
	if v, err := strconv.Atoi(q.Get("year_to")); err == nil {
		f.YearTo = &v
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date_from")
			return
		}
		f.DateFrom = t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date_to")
			return
		}
		f.DateTo = t.Add(24*time.Hour - time.Nanosecond)
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil {
		f.PerPage = v
	}

	grades, total, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list tax grades", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if grades == nil {
		grades = []TaxGrade{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		TaxGrades:  grades,
		Pagination: shared.NewPagination(f.Page, f.PerPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	grade, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grade)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaxGradeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	grade, err := h.service.Create(r.Context(), req, shared.ActorFromContext(r.Context()), shared.ClientMetaFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grade)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	var req UpdateTaxGradeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	grade, err := h.service.Update(r.Context(), id, req, shared.ActorFromContext(r.Context()), shared.ClientMetaFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grade)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id, shared.ActorFromContext(r.Context()), shared.ClientMetaFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "year parameter is required")
		return
	}
	grades, err := h.service.Export(r.Context(), year, shared.ActorFromContext(r.Context()), shared.ClientMetaFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if grades == nil {
		grades = []TaxGrade{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"year":  year,
		"count": len(grades),
		"data":  grades,
	})
}

// AuditTrail serves the per-record view into the compliance ledger.
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	entries, _, err := h.auditSvc.List(r.Context(), audit.Filters{
		Entity:   entityName,
		EntityID: id.String(),
		PerPage:  100,
	})
	if err != nil {
		h.logger.Error("tax grade audit trail", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if !httpx.Expected(err) {
		h.logger.Error("tax grade request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
