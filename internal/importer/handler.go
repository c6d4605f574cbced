package importer

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fiscalia/fiscalia/internal/platform/httpx"
	"github.com/fiscalia/fiscalia/internal/shared"
)

// Handler exposes the import endpoints.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	maxUploadBytes int64
}

// NewHandler returns a new import HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, maxUploadBytes int64) *Handler {
	return &Handler{logger: logger, service: service, maxUploadBytes: maxUploadBytes}
}

// Upload accepts a multipart file and creates a pending import job.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Upload Too Large", "el archivo excede el tamaño máximo permitido")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "se requiere el campo file")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no se pudo leer el archivo")
		return
	}

	job, err := h.service.CreateFromUpload(r.Context(), header.Filename, content,
		shared.ActorFromContext(r.Context()), shared.ClientMetaFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, JobResponse{Job: *job})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := JobFilters{
		Status:   q.Get("status"),
		FileType: q.Get("file_type"),
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil {
		f.PerPage = v
	}

	jobs, total, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list imports", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	imports := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		imports = append(imports, JobResponse{Job: job})
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Imports:    imports,
		Pagination: shared.NewPagination(f.Page, f.PerPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	job, counts, outcomes, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if outcomes == nil {
		outcomes = []RowOutcome{}
	}
	httpx.JSON(w, http.StatusOK, JobDetailResponse{Job: *job, Counts: counts, Records: outcomes})
}

// Report streams the generated plain-text report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	path, err := h.service.ReportFile(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, path)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if !httpx.Expected(err) {
		h.logger.Error("import request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
