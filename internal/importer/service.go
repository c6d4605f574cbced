package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/fiscalia/fiscalia/internal/audit"
	"github.com/fiscalia/fiscalia/internal/dividend"
	"github.com/fiscalia/fiscalia/internal/platform/httpx"
	"github.com/fiscalia/fiscalia/internal/shared"
	"github.com/fiscalia/fiscalia/internal/taxgrade"
)

// maxErrorLength caps one stored error message. Parser errors can embed
// whole lines of input; the tail is noise.
const maxErrorLength = 500

// Upload rejections wrap an httpx sentinel so the handler can delegate
// status mapping; the client sees the Spanish prefix as the detail.
var (
	ErrUnsupportedFileType = fmt.Errorf("tipo de archivo no soportado: %w", httpx.ErrValidation)
	ErrFileTooLarge        = fmt.Errorf("el archivo excede el tamaño máximo permitido: %w", httpx.ErrTooLarge)
	ErrEmptyFile           = fmt.Errorf("el archivo está vacío: %w", httpx.ErrValidation)
	ErrNoReport            = fmt.Errorf("no hay reporte disponible: %w", httpx.ErrNotFound)
)

// DuplicateError reports that the uploaded bytes were already imported.
type DuplicateError struct {
	Existing *Job
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("este archivo ya fue importado como %s", e.Existing.ID)
}

func (e *DuplicateError) Unwrap() error { return httpx.ErrDuplicate }

// Enqueuer hands a created job off for background processing.
type Enqueuer interface {
	EnqueueImport(ctx context.Context, jobID uuid.UUID, actor shared.Actor, meta shared.ClientMeta) error
}

// ServiceParams wires the import orchestrator.
type ServiceParams struct {
	Logger         *slog.Logger
	Repo           Repository
	TaxGrades      *taxgrade.Service
	Dividends      *dividend.Service
	Enqueuer       Enqueuer
	UploadDir      string
	ReportsDir     string
	MaxUploadBytes int64
	StaleAfter     time.Duration
}

// Service orchestrates imports: it accepts uploads, drives background
// processing through the per-format adapters, and writes the final report.
type Service struct {
	logger         *slog.Logger
	repo           Repository
	taxGrades      *taxgrade.Service
	dividends      *dividend.Service
	enqueuer       Enqueuer
	uploadDir      string
	reportsDir     string
	maxUploadBytes int64
	staleAfter     time.Duration
	now            func() time.Time
}

// NewService returns a new import orchestrator.
func NewService(p ServiceParams) *Service {
	return &Service{
		logger:         p.Logger,
		repo:           p.Repo,
		taxGrades:      p.TaxGrades,
		dividends:      p.Dividends,
		enqueuer:       p.Enqueuer,
		uploadDir:      p.UploadDir,
		reportsDir:     p.ReportsDir,
		maxUploadBytes: p.MaxUploadBytes,
		staleAfter:     p.StaleAfter,
		now:            time.Now,
	}
}

// CreateFromUpload validates an upload, persists the pending job and its
// bytes, and enqueues processing. Validation failures reject the upload
// before any job exists; later failures are reported through the job itself.
func (s *Service) CreateFromUpload(ctx context.Context, fileName string, content []byte, actor shared.Actor, meta shared.ClientMeta) (*Job, error) {
	fileType := FileTypeFromName(fileName)
	if fileType == FileTypeUnknown {
		return nil, ErrUnsupportedFileType
	}
	if len(content) == 0 {
		return nil, ErrEmptyFile
	}
	if s.maxUploadBytes > 0 && int64(len(content)) > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.repo.FindJobByHash(ctx, hash)
	switch {
	case err == nil:
		return nil, &DuplicateError{Existing: existing}
	case !errors.Is(err, ErrJobNotFound):
		return nil, fmt.Errorf("check duplicate upload: %w", err)
	}

	now := s.now()
	job := Job{
		ID:         uuid.New(),
		UploaderID: actor.ID,
		FileName:   filepath.Base(fileName),
		FileHash:   hash,
		FileType:   fileType,
		Status:     StatusPending,
		UploadedAt: now,
		UpdatedAt:  now,
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(s.uploadPath(job), content, 0o644); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}

	if err := s.enqueuer.EnqueueImport(ctx, job.ID, actor, meta); err != nil {
		s.logger.Error("enqueue import", slog.String("job_id", job.ID.String()), slog.Any("error", err))
		failErr := s.repo.Finish(ctx, job.ID, StatusFailed,
			[]string{"No se pudo encolar el procesamiento del archivo"}, "")
		if failErr != nil {
			s.logger.Error("mark enqueue failure", slog.Any("error", failErr))
		}
		return nil, fmt.Errorf("enqueue import job: %w", err)
	}
	return &job, nil
}

// run accumulates the outcome of one processing pass.
type run struct {
	successCount int
	errors       []string
	actor        shared.Actor
	meta         shared.ClientMeta
}

func (r *run) addError(format string, args ...any) {
	r.errors = append(r.errors, truncate(fmt.Sprintf(format, args...), maxErrorLength))
}

// Process executes one pending import job. It never returns an error for
// content-level failures; those end in a failed job with its report. Only
// infrastructure faults propagate so the queue can retry.
func (s *Service) Process(ctx context.Context, jobID uuid.UUID, actor shared.Actor, meta shared.ClientMeta) (err error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load import job: %w", err)
	}
	if job.Status == StatusDone || job.Status == StatusFailed {
		return nil
	}
	if err := s.repo.SetStatus(ctx, job.ID, StatusProcessing); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	job.Status = StatusProcessing

	r := &run{actor: actor, meta: meta}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("import processing panicked",
				slog.String("job_id", job.ID.String()), slog.Any("panic", rec))
			r.addError("Error inesperado durante el procesamiento: %v", rec)
			err = s.finalize(ctx, job, r)
		}
	}()

	content, readErr := os.ReadFile(s.uploadPath(*job))
	if readErr != nil {
		r.addError("No se pudo leer el archivo: %v", readErr)
		return s.finalize(ctx, job, r)
	}

	switch job.FileType {
	case FileTypeCSV:
		s.processDelimited(ctx, job, content, r)
	case FileTypeExcel:
		s.processWorkbook(ctx, job, content, r)
	case FileTypeZip:
		s.processArchive(ctx, job, content, r)
	case FileTypePDF:
		s.processDocument(ctx, job, content, r)
	default:
		r.addError("Tipo de archivo no soportado: %s", job.FileType)
	}
	return s.finalize(ctx, job, r)
}

func (s *Service) finalize(ctx context.Context, job *Job, r *run) error {
	counts, err := s.repo.CountOutcomes(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("count outcomes: %w", err)
	}

	if r.successCount > 0 || len(r.errors) == 0 {
		job.Status = StatusDone
	} else {
		job.Status = StatusFailed
	}
	job.Errors = r.errors

	outcomes, err := s.repo.ListOutcomes(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list outcomes: %w", err)
	}

	reportPath, err := s.writeReport(job, counts, outcomes)
	if err != nil {
		s.logger.Error("write import report", slog.String("job_id", job.ID.String()), slog.Any("error", err))
		reportPath = ""
	}

	if err := s.repo.Finish(ctx, job.ID, job.Status, job.Errors, reportPath); err != nil {
		return fmt.Errorf("finish import job: %w", err)
	}

	auditErr := s.repo.Audit().Record(ctx, audit.Entry{
		ActorID:  r.actor.ID,
		Entity:   "imports",
		EntityID: job.ID.String(),
		Action:   audit.ActionImport,
		After: map[string]any{
			"file_name": job.FileName,
			"file_type": string(job.FileType),
			"status":    string(job.Status),
			"total":     counts.Total,
			"success":   counts.Success,
			"errors":    counts.Errors,
			"warnings":  counts.Warnings,
		},
		IPAddress: r.meta.IPAddress,
		UserAgent: r.meta.UserAgent,
		At:        s.now(),
	})
	if auditErr != nil {
		s.logger.Error("record import audit entry", slog.Any("error", auditErr))
	}

	s.logger.Info("import finished",
		slog.String("job_id", job.ID.String()),
		slog.String("status", string(job.Status)),
		slog.Int("success", counts.Success),
		slog.Int("errors", counts.Errors))
	return nil
}

func (s *Service) processDelimited(ctx context.Context, job *Job, content []byte, r *run) {
	t, err := parseDelimited(DecodeText(content))
	if err != nil {
		r.addError("Error procesando CSV: %v", err)
		return
	}
	s.processTable(ctx, job, t, r)
}

func (s *Service) processWorkbook(ctx context.Context, job *Job, content []byte, r *run) {
	t, err := parseWorkbook(content)
	if err != nil {
		r.addError("Error procesando Excel: %v", err)
		return
	}
	schema := DetectSchema(t.Headers)
	if schema == SchemaUnknown {
		r.addError("No se pudo determinar el tipo de archivo por sus columnas")
		return
	}
	if missing := MissingColumns(schema, t.Headers); len(missing) > 0 {
		r.addError("Columnas faltantes: %s", strings.Join(missing, ", "))
		return
	}
	s.dispatchRows(ctx, job, schema, t, r)
}

func (s *Service) processArchive(ctx context.Context, job *Job, content []byte, r *run) {
	entries, err := readArchive(content)
	if err != nil {
		r.addError("Error procesando ZIP: %v", err)
		return
	}
	for _, entry := range entries {
		switch {
		case isCSVEntry(entry.Name):
			t, err := parseDelimited(DecodeText(entry.Content))
			if err != nil {
				r.addError("Error procesando %s: %v", entry.Name, err)
				continue
			}
			s.processTable(ctx, job, t, r)
		case isPDFEntry(entry.Name):
			r.addError("PDFs dentro de ZIP no se procesan automáticamente: %s", entry.Name)
		}
	}
}

// processDocument handles PDF uploads. There is no extraction yet; each page
// produces a warning so the report shows the document was seen.
func (s *Service) processDocument(ctx context.Context, job *Job, content []byte, r *run) {
	pages, err := countPages(content)
	if err != nil {
		r.addError("Error procesando PDF: %v", err)
		return
	}
	for page := 1; page <= pages; page++ {
		s.recordOutcome(ctx, job, RowOutcome{
			RowNumber:  page,
			Identifier: job.FileName,
			Status:     OutcomeWarning,
			Message:    fmt.Sprintf("PDF procesado - Página %d. Extracción automática no implementada.", page),
		})
	}
	r.addError("Procesamiento de PDF requiere implementación de parser específico")
}

func (s *Service) processTable(ctx context.Context, job *Job, t *table, r *run) {
	schema := DetectSchema(t.Headers)
	if schema == SchemaUnknown {
		r.addError("No se pudo determinar el tipo de archivo por sus columnas")
		return
	}
	s.dispatchRows(ctx, job, schema, t, r)
}

func (s *Service) dispatchRows(ctx context.Context, job *Job, schema Schema, t *table, r *run) {
	switch schema {
	case SchemaTaxGrade:
		s.processTaxGradeRows(ctx, job, t, r)
	case SchemaDividend:
		s.processDividendRows(ctx, job, t, r)
	}
}

func (s *Service) processTaxGradeRows(ctx context.Context, job *Job, t *table, r *run) {
	for _, row := range t.Rows {
		in, err := NormalizeTaxGradeRow(row.Fields)
		if err != nil {
			s.failRow(ctx, job, r, row.Number, strings.TrimSpace(row.Fields["taxpayer_id"]), nil, err)
			continue
		}
		year := in.FiscalYear
		if _, _, err := s.taxGrades.Upsert(ctx, in, r.actor, r.meta); err != nil {
			s.failRow(ctx, job, r, row.Number, in.TaxpayerID, &year, err)
			continue
		}
		s.recordOutcome(ctx, job, RowOutcome{
			RowNumber:  row.Number,
			Identifier: in.TaxpayerID,
			FiscalYear: &year,
			Status:     OutcomeSuccess,
		})
		r.successCount++
	}
}

func (s *Service) processDividendRows(ctx context.Context, job *Job, t *table, r *run) {
	for _, row := range t.Rows {
		in, err := NormalizeDividendRow(row.Fields)
		if err != nil {
			s.failRow(ctx, job, r, row.Number, strings.TrimSpace(row.Fields["instrument"]), nil, err)
			continue
		}
		period := in.CommercialPeriod
		if _, _, err := s.dividends.Upsert(ctx, in, r.actor, r.meta); err != nil {
			s.failRow(ctx, job, r, row.Number, in.Instrument, &period, err)
			continue
		}
		s.recordOutcome(ctx, job, RowOutcome{
			RowNumber:  row.Number,
			Identifier: in.Instrument,
			FiscalYear: &period,
			Status:     OutcomeSuccess,
		})
		r.successCount++
	}
}

func (s *Service) failRow(ctx context.Context, job *Job, r *run, rowNumber int, identifier string, year *int, cause error) {
	message := truncate(cause.Error(), maxErrorLength)
	r.addError("Fila %d: %s", rowNumber, message)
	s.recordOutcome(ctx, job, RowOutcome{
		RowNumber:  rowNumber,
		Identifier: truncate(identifier, 64),
		FiscalYear: year,
		Status:     OutcomeError,
		Message:    message,
	})
}

func (s *Service) recordOutcome(ctx context.Context, job *Job, o RowOutcome) {
	o.ID = uuid.New()
	o.JobID = job.ID
	o.CreatedAt = s.now()
	if err := s.repo.AddOutcome(ctx, o); err != nil {
		s.logger.Error("record row outcome",
			slog.String("job_id", job.ID.String()),
			slog.Int("row", o.RowNumber),
			slog.Any("error", err))
	}
}

// Get returns one job with its derived counts and row outcomes.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Job, Counts, []RowOutcome, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, Counts{}, nil, err
	}
	counts, err := s.repo.CountOutcomes(ctx, id)
	if err != nil {
		return nil, Counts{}, nil, err
	}
	outcomes, err := s.repo.ListOutcomes(ctx, id)
	if err != nil {
		return nil, Counts{}, nil, err
	}
	return job, counts, outcomes, nil
}

// List returns jobs matching the filters.
func (s *Service) List(ctx context.Context, f JobFilters) ([]Job, int, error) {
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return s.repo.ListJobs(ctx, f)
}

// ReportFile returns the path of the job's generated report.
func (s *Service) ReportFile(ctx context.Context, id uuid.UUID) (string, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	if job.ReportPath == "" {
		return "", ErrNoReport
	}
	if _, err := os.Stat(job.ReportPath); err != nil {
		return "", ErrNoReport
	}
	return job.ReportPath, nil
}

// FailStaleJobs sweeps jobs stuck in processing beyond the stale window.
func (s *Service) FailStaleJobs(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.staleAfter)
	n, err := s.repo.MarkStaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stale imports: %w", err)
	}
	if n > 0 {
		s.logger.Warn("failed stale import jobs", slog.Int64("count", n))
	}
	return n, nil
}

func (s *Service) uploadPath(job Job) string {
	return filepath.Join(s.uploadDir, job.ID.String()+"_"+job.FileName)
}

func (s *Service) writeReport(job *Job, counts Counts, outcomes []RowOutcome) (string, error) {
	if err := os.MkdirAll(s.reportsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.reportsDir, "report_"+job.ID.String()+".txt")
	if err := os.WriteFile(path, []byte(BuildReport(job, counts, outcomes)), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
