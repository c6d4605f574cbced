package importer

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileType is the upload format, decided from the file extension.
type FileType string

const (
	FileTypeCSV     FileType = "csv"
	FileTypeZip     FileType = "zip"
	FileTypePDF     FileType = "pdf"
	FileTypeExcel   FileType = "xlsx"
	FileTypeUnknown FileType = "unknown"
)

// FileTypeFromName maps a file name to its import type.
func FileTypeFromName(name string) FileType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return FileTypeCSV
	case strings.HasSuffix(lower, ".zip"):
		return FileTypeZip
	case strings.HasSuffix(lower, ".pdf"):
		return FileTypePDF
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xls"):
		return FileTypeExcel
	}
	return FileTypeUnknown
}

// Display returns the Spanish label used in reports.
func (t FileType) Display() string {
	switch t {
	case FileTypeCSV:
		return "CSV"
	case FileTypeZip:
		return "ZIP"
	case FileTypePDF:
		return "PDF"
	case FileTypeExcel:
		return "Excel"
	}
	return "Desconocido"
}

// Status is the job lifecycle state. Transitions only move forward:
// pending, processing, then done or failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Display returns the Spanish label used in reports.
func (s Status) Display() string {
	switch s {
	case StatusPending:
		return "Pendiente"
	case StatusProcessing:
		return "Procesando"
	case StatusDone:
		return "Completado"
	case StatusFailed:
		return "Fallido"
	}
	return string(s)
}

// Job is one bulk import. The file hash makes uploads idempotent: the same
// bytes are never accepted twice.
type Job struct {
	ID         uuid.UUID `json:"id"`
	UploaderID string    `json:"uploader_id"`
	FileName   string    `json:"file_name"`
	FileHash   string    `json:"file_hash"`
	FileType   FileType  `json:"file_type"`
	Status     Status    `json:"status"`
	Errors     []string  `json:"errors"`
	ReportPath string    `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OutcomeStatus classifies one processed row.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
	OutcomeWarning OutcomeStatus = "warning"
)

// RowOutcome records what happened to a single row of an import. Identifier
// and fiscal year are denormalized here so failures remain traceable even
// when no record was written.
type RowOutcome struct {
	ID         uuid.UUID     `json:"id"`
	JobID      uuid.UUID     `json:"-"`
	RowNumber  int           `json:"row_number"`
	Identifier string        `json:"identifier"`
	FiscalYear *int          `json:"fiscal_year,omitempty"`
	Status     OutcomeStatus `json:"status"`
	Message    string        `json:"message"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Counts aggregates row outcomes for one job.
type Counts struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// JobFilters narrows job listings.
type JobFilters struct {
	Status   string
	FileType string
	Page     int
	PerPage  int
}
