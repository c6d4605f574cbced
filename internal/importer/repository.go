package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiscalia/fiscalia/internal/audit"
	"github.com/fiscalia/fiscalia/internal/platform/httpx"
)

var ErrJobNotFound = fmt.Errorf("import job %w", httpx.ErrNotFound)

// Repository persists import jobs and their row outcomes.
type Repository interface {
	CreateJob(ctx context.Context, j Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	FindJobByHash(ctx context.Context, hash string) (*Job, error)
	ListJobs(ctx context.Context, f JobFilters) ([]Job, int, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	Finish(ctx context.Context, id uuid.UUID, status Status, jobErrors []string, reportPath string) error
	AddOutcome(ctx context.Context, o RowOutcome) error
	ListOutcomes(ctx context.Context, jobID uuid.UUID) ([]RowOutcome, error)
	CountOutcomes(ctx context.Context, jobID uuid.UUID) (Counts, error)
	MarkStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error)
	Audit() audit.Recorder
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Audit() audit.Recorder {
	return audit.NewWriter(r.pool)
}

const jobColumns = `
	id, uploader_id, file_name, file_hash, file_type, status,
	errors, report_path, uploaded_at, updated_at`

func (r *repository) CreateJob(ctx context.Context, j Job) error {
	jobErrors, err := marshalErrors(j.Errors)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO imports (id, uploader_id, file_name, file_hash, file_type, status,
			errors, report_path, uploaded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID, j.UploaderID, j.FileName, j.FileHash, string(j.FileType), string(j.Status),
		jobErrors, j.ReportPath, j.UploadedAt, j.UpdatedAt)
	return err
}

func (r *repository) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM imports WHERE id = $1", jobColumns), id)
	return scanJob(row)
}

func (r *repository) FindJobByHash(ctx context.Context, hash string) (*Job, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM imports WHERE file_hash = $1 ORDER BY uploaded_at LIMIT 1", jobColumns), hash)
	return scanJob(row)
}

func (r *repository) ListJobs(ctx context.Context, f JobFilters) ([]Job, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, val)
		argPos++
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.FileType != "" {
		add("file_type = $%d", f.FileType)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM imports %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM imports %s
		ORDER BY uploaded_at DESC
		LIMIT $%d OFFSET $%d`, jobColumns, whereClause, argPos, argPos+1)
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, total, rows.Err()
}

func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE imports SET status = $2, updated_at = NOW() WHERE id = $1", id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *repository) Finish(ctx context.Context, id uuid.UUID, status Status, jobErrors []string, reportPath string) error {
	encoded, err := marshalErrors(jobErrors)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE imports
		SET status = $2, errors = $3, report_path = $4, updated_at = NOW()
		WHERE id = $1`,
		id, string(status), encoded, reportPath)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *repository) AddOutcome(ctx context.Context, o RowOutcome) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO import_records (id, import_id, row_number, identifier, fiscal_year, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.JobID, o.RowNumber, o.Identifier, yearArg(o.FiscalYear), string(o.Status), o.Message, o.CreatedAt)
	return err
}

func (r *repository) ListOutcomes(ctx context.Context, jobID uuid.UUID) ([]RowOutcome, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, import_id, row_number, identifier, fiscal_year, status, message, created_at
		FROM import_records
		WHERE import_id = $1
		ORDER BY row_number, created_at`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []RowOutcome
	for rows.Next() {
		var o RowOutcome
		var status string
		var year pgtype.Int8
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&o.ID, &o.JobID, &o.RowNumber, &o.Identifier, &year, &status, &o.Message, &createdAt); err != nil {
			return nil, err
		}
		o.Status = OutcomeStatus(status)
		if year.Valid {
			v := int(year.Int64)
			o.FiscalYear = &v
		}
		if createdAt.Valid {
			o.CreatedAt = createdAt.Time
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (r *repository) CountOutcomes(ctx context.Context, jobID uuid.UUID) (Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'error'),
			COUNT(*) FILTER (WHERE status = 'warning')
		FROM import_records
		WHERE import_id = $1`, jobID).Scan(&c.Total, &c.Success, &c.Errors, &c.Warnings)
	return c, err
}

// MarkStaleProcessing fails jobs stuck in processing since before cutoff.
// Jobs only end up here after a worker crash; the sweep makes the loss
// visible instead of leaving the job processing forever.
func (r *repository) MarkStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	encoded, err := marshalErrors([]string{"Procesamiento interrumpido: el trabajo excedió el tiempo máximo"})
	if err != nil {
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE imports
		SET status = $1, errors = $2, updated_at = NOW()
		WHERE status = $3 AND updated_at < $4`,
		string(StatusFailed), encoded, string(StatusProcessing), cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var fileType, status string
	var encoded []byte
	var reportPath pgtype.Text
	var uploadedAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&j.ID, &j.UploaderID, &j.FileName, &j.FileHash, &fileType, &status,
		&encoded, &reportPath, &uploadedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	j.FileType = FileType(fileType)
	j.Status = Status(status)
	if len(encoded) > 0 {
		if err := json.Unmarshal(encoded, &j.Errors); err != nil {
			return nil, fmt.Errorf("importer: unmarshal job errors: %w", err)
		}
	}
	if reportPath.Valid {
		j.ReportPath = reportPath.String
	}
	if uploadedAt.Valid {
		j.UploadedAt = uploadedAt.Time
	}
	if updatedAt.Valid {
		j.UpdatedAt = updatedAt.Time
	}
	return &j, nil
}

func marshalErrors(jobErrors []string) ([]byte, error) {
	if jobErrors == nil {
		jobErrors = []string{}
	}
	data, err := json.Marshal(jobErrors)
	if err != nil {
		return nil, fmt.Errorf("importer: marshal job errors: %w", err)
	}
	return data, nil
}

func yearArg(year *int) any {
	if year == nil {
		return nil
	}
	return *year
}
