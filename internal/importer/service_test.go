package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fiscalia/fiscalia/internal/audit"
	"github.com/fiscalia/fiscalia/internal/dividend"
	"github.com/fiscalia/fiscalia/internal/shared"
	"github.com/fiscalia/fiscalia/internal/taxgrade"
)

type captureRecorder struct {
	entries []audit.Entry
}

func (r *captureRecorder) Record(ctx context.Context, e audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

// memRepo is an in-memory importer.Repository.
type memRepo struct {
	jobs     map[uuid.UUID]*Job
	outcomes []RowOutcome
	recorder *captureRecorder
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: make(map[uuid.UUID]*Job), recorder: &captureRecorder{}}
}

func (m *memRepo) Audit() audit.Recorder { return m.recorder }

func (m *memRepo) CreateJob(ctx context.Context, j Job) error {
	copied := j
	m.jobs[j.ID] = &copied
	return nil
}

func (m *memRepo) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *j
	return &copied, nil
}

func (m *memRepo) FindJobByHash(ctx context.Context, hash string) (*Job, error) {
	for _, j := range m.jobs {
		if j.FileHash == hash {
			copied := *j
			return &copied, nil
		}
	}
	return nil, ErrJobNotFound
}

func (m *memRepo) ListJobs(ctx context.Context, f JobFilters) ([]Job, int, error) {
	var result []Job
	for _, j := range m.jobs {
		if f.Status != "" && string(j.Status) != f.Status {
			continue
		}
		result = append(result, *j)
	}
	return result, len(result), nil
}

func (m *memRepo) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	j, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status = status
	j.UpdatedAt = time.Now()
	return nil
}

func (m *memRepo) Finish(ctx context.Context, id uuid.UUID, status Status, jobErrors []string, reportPath string) error {
	j, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status = status
	j.Errors = jobErrors
	j.ReportPath = reportPath
	j.UpdatedAt = time.Now()
	return nil
}

func (m *memRepo) AddOutcome(ctx context.Context, o RowOutcome) error {
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *memRepo) ListOutcomes(ctx context.Context, jobID uuid.UUID) ([]RowOutcome, error) {
	var result []RowOutcome
	for _, o := range m.outcomes {
		if o.JobID == jobID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *memRepo) CountOutcomes(ctx context.Context, jobID uuid.UUID) (Counts, error) {
	var c Counts
	for _, o := range m.outcomes {
		if o.JobID != jobID {
			continue
		}
		c.Total++
		switch o.Status {
		case OutcomeSuccess:
			c.Success++
		case OutcomeError:
			c.Errors++
		case OutcomeWarning:
			c.Warnings++
		}
	}
	return c, nil
}

func (m *memRepo) MarkStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for _, j := range m.jobs {
		if j.Status == StatusProcessing && j.UpdatedAt.Before(cutoff) {
			j.Status = StatusFailed
			n++
		}
	}
	return n, nil
}

// memTaxRepo is an in-memory taxgrade.Repository keyed by the natural key.
type memTaxRepo struct {
	grades   map[uuid.UUID]*taxgrade.TaxGrade
	recorder *captureRecorder
}

func newMemTaxRepo() *memTaxRepo {
	return &memTaxRepo{grades: make(map[uuid.UUID]*taxgrade.TaxGrade), recorder: &captureRecorder{}}
}

func (m *memTaxRepo) WithTx(ctx context.Context, fn func(context.Context, taxgrade.Repository) error) error {
	return fn(ctx, m)
}

func (m *memTaxRepo) Audit() audit.Recorder { return m.recorder }

func (m *memTaxRepo) Get(ctx context.Context, id uuid.UUID) (*taxgrade.TaxGrade, error) {
	g, ok := m.grades[id]
	if !ok {
		return nil, taxgrade.ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (m *memTaxRepo) GetByKey(ctx context.Context, taxpayerID string, fiscalYear int) (*taxgrade.TaxGrade, error) {
	for _, g := range m.grades {
		if g.TaxpayerID == taxpayerID && g.FiscalYear == fiscalYear {
			copied := *g
			return &copied, nil
		}
	}
	return nil, taxgrade.ErrNotFound
}

func (m *memTaxRepo) List(ctx context.Context, f taxgrade.ListFilters) ([]taxgrade.TaxGrade, int, error) {
	return nil, 0, nil
}

func (m *memTaxRepo) ListByYear(ctx context.Context, year int, status taxgrade.Status) ([]taxgrade.TaxGrade, error) {
	return nil, nil
}

func (m *memTaxRepo) Create(ctx context.Context, g taxgrade.TaxGrade) error {
	copied := g
	m.grades[g.ID] = &copied
	return nil
}

func (m *memTaxRepo) Update(ctx context.Context, g taxgrade.TaxGrade) error {
	copied := g
	m.grades[g.ID] = &copied
	return nil
}

// memDivRepo is an in-memory dividend.Repository.
type memDivRepo struct {
	records  map[uuid.UUID]*dividend.Dividend
	recorder *captureRecorder
}

func newMemDivRepo() *memDivRepo {
	return &memDivRepo{records: make(map[uuid.UUID]*dividend.Dividend), recorder: &captureRecorder{}}
}

func (m *memDivRepo) WithTx(ctx context.Context, fn func(context.Context, dividend.Repository) error) error {
	return fn(ctx, m)
}

func (m *memDivRepo) Audit() audit.Recorder { return m.recorder }

func (m *memDivRepo) Get(ctx context.Context, id uuid.UUID) (*dividend.Dividend, error) {
	d, ok := m.records[id]
	if !ok {
		return nil, dividend.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (m *memDivRepo) GetByKey(ctx context.Context, period int, instrument string, paymentDate time.Time, seq *int) (*dividend.Dividend, error) {
	for _, d := range m.records {
		sameSeq := (d.CapitalEventSeq == nil && seq == nil) ||
			(d.CapitalEventSeq != nil && seq != nil && *d.CapitalEventSeq == *seq)
		if d.CommercialPeriod == period && d.Instrument == instrument && d.PaymentDate.Equal(paymentDate) && sameSeq {
			copied := *d
			return &copied, nil
		}
	}
	return nil, dividend.ErrNotFound
}

func (m *memDivRepo) List(ctx context.Context, f dividend.ListFilters) ([]dividend.Dividend, int, error) {
	return nil, 0, nil
}

func (m *memDivRepo) Create(ctx context.Context, d dividend.Dividend) error {
	copied := d
	m.records[d.ID] = &copied
	return nil
}

func (m *memDivRepo) Update(ctx context.Context, d dividend.Dividend) error {
	copied := d
	m.records[d.ID] = &copied
	return nil
}

func (m *memDivRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.records, id)
	return nil
}

type fakeEnqueuer struct {
	enqueued []uuid.UUID
	err      error
}

func (f *fakeEnqueuer) EnqueueImport(ctx context.Context, jobID uuid.UUID, actor shared.Actor, meta shared.ClientMeta) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, jobID)
	return nil
}

type testEnv struct {
	svc      *Service
	repo     *memRepo
	taxRepo  *memTaxRepo
	divRepo  *memDivRepo
	enqueuer *fakeEnqueuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newMemRepo()
	taxRepo := newMemTaxRepo()
	divRepo := newMemDivRepo()
	enqueuer := &fakeEnqueuer{}

	svc := NewService(ServiceParams{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Repo:           repo,
		TaxGrades:      taxgrade.NewService(taxRepo),
		Dividends:      dividend.NewService(divRepo),
		Enqueuer:       enqueuer,
		UploadDir:      t.TempDir(),
		ReportsDir:     t.TempDir(),
		MaxUploadBytes: 1 << 20,
		StaleAfter:     time.Hour,
	})
	return &testEnv{svc: svc, repo: repo, taxRepo: taxRepo, divRepo: divRepo, enqueuer: enqueuer}
}

var (
	testActor = shared.Actor{ID: "maria"}
	testMeta  = shared.ClientMeta{IPAddress: "10.0.0.1", UserAgent: "go-test"}
)

const mixedTaxGradeCSV = `taxpayer_id,name,year,amount
76111111-1,Empresa Uno,2024,100.50
76222222-2,Empresa Dos,2024,200
,Empresa Tres,2024,300
76444444-4,Empresa Cuatro,abc,400
76555555-5,Empresa Cinco,2023,500
`

func uploadAndProcess(t *testing.T, env *testEnv, name string, content []byte) *Job {
	t.Helper()
	job, err := env.svc.CreateFromUpload(context.Background(), name, content, testActor, testMeta)
	require.NoError(t, err)
	require.NoError(t, env.svc.Process(context.Background(), job.ID, testActor, testMeta))

	processed, err := env.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	return processed
}

func TestCreateFromUploadRejectsUnsupportedExtension(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateFromUpload(context.Background(), "imagen.png", []byte("x"), testActor, testMeta)
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
	assert.Empty(t, env.repo.jobs)
}

func TestCreateFromUploadRejectsEmptyFile(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateFromUpload(context.Background(), "datos.csv", nil, testActor, testMeta)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestCreateFromUploadRejectsOversizedFile(t *testing.T) {
	env := newTestEnv(t)
	big := bytes.Repeat([]byte("a"), (1<<20)+1)
	_, err := env.svc.CreateFromUpload(context.Background(), "datos.csv", big, testActor, testMeta)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestCreateFromUploadRejectsDuplicateBytes(t *testing.T) {
	env := newTestEnv(t)
	content := []byte(mixedTaxGradeCSV)

	first, err := env.svc.CreateFromUpload(context.Background(), "datos.csv", content, testActor, testMeta)
	require.NoError(t, err)

	_, err = env.svc.CreateFromUpload(context.Background(), "renombrado.csv", content, testActor, testMeta)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.Existing.ID)
	assert.Len(t, env.repo.jobs, 1)
}

func TestCreateFromUploadEnqueuesPendingJob(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.svc.CreateFromUpload(context.Background(), "datos.csv", []byte(mixedTaxGradeCSV), testActor, testMeta)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, "maria", job.UploaderID)
	assert.Len(t, job.FileHash, 64)
	require.Len(t, env.enqueuer.enqueued, 1)
	assert.Equal(t, job.ID, env.enqueuer.enqueued[0])
}

func TestCreateFromUploadEnqueueFailureFailsJob(t *testing.T) {
	env := newTestEnv(t)
	env.enqueuer.err = assert.AnError

	_, err := env.svc.CreateFromUpload(context.Background(), "datos.csv", []byte(mixedTaxGradeCSV), testActor, testMeta)
	require.Error(t, err)

	require.Len(t, env.repo.jobs, 1)
	for _, j := range env.repo.jobs {
		assert.Equal(t, StatusFailed, j.Status)
	}
}

func TestProcessMixedTaxGradeCSV(t *testing.T) {
	env := newTestEnv(t)
	job := uploadAndProcess(t, env, "calificaciones.csv", []byte(mixedTaxGradeCSV))

	assert.Equal(t, StatusDone, job.Status)
	assert.Len(t, job.Errors, 2)
	assert.Len(t, env.taxRepo.grades, 3)

	counts, err := env.repo.CountOutcomes(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 5, Success: 3, Errors: 2}, counts)

	report, err := os.ReadFile(job.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), "Total de registros: 5")
	assert.Contains(t, string(report), "Exitosos: 3")
	assert.Contains(t, string(report), "Errores: 2")
	assert.Contains(t, string(report), "Estado: Completado")
	// Data rows are numbered from 1; the header row does not count.
	assert.Contains(t, string(report), "Fila 3: RUT es requerido")
	assert.Contains(t, string(report), "Fila 4: Año inválido: abc")
}

func TestProcessWritesImportAuditEntry(t *testing.T) {
	env := newTestEnv(t)
	job := uploadAndProcess(t, env, "calificaciones.csv", []byte(mixedTaxGradeCSV))

	require.Len(t, env.repo.recorder.entries, 1)
	entry := env.repo.recorder.entries[0]
	assert.Equal(t, audit.ActionImport, entry.Action)
	assert.Equal(t, "imports", entry.Entity)
	assert.Equal(t, job.ID.String(), entry.EntityID)
	assert.Equal(t, "maria", entry.ActorID)
	assert.Equal(t, 5, entry.After["total"])
}

func TestProcessDividendCSV(t *testing.T) {
	env := newTestEnv(t)
	csv := "commercial_period,market_type,instrument,dividend_payment_date,dividend,factor_1\n" +
		"2024,stocks,COPEC,2024-05-15,120.75,0.5\n" +
		"2024,cfi,HABITAT,2024-06-01,80,\n"

	job := uploadAndProcess(t, env, "dividendos.csv", []byte(csv))

	assert.Equal(t, StatusDone, job.Status)
	assert.Empty(t, job.Errors)
	require.Len(t, env.divRepo.records, 2)
	for _, d := range env.divRepo.records {
		if d.Instrument == "COPEC" {
			assert.Equal(t, "Factor-8", d.Factors["factor_1"].Label)
		}
	}
}

func TestProcessUnknownColumnsFailsJob(t *testing.T) {
	env := newTestEnv(t)
	job := uploadAndProcess(t, env, "misterio.csv", []byte("foo,bar\n1,2\n"))

	assert.Equal(t, StatusFailed, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "No se pudo determinar el tipo de archivo")
}

func TestProcessArchiveWithCSVAndPDF(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create("a.csv")
	require.NoError(t, err)
	_, err = entry.Write([]byte("taxpayer_id,name,year\n76111111-1,Empresa Uno,2024\n76222222-2,Empresa Dos,2024\n"))
	require.NoError(t, err)
	pdfEntry, err := zw.Create("notes.pdf")
	require.NoError(t, err)
	_, err = pdfEntry.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	job := uploadAndProcess(t, env, "lote.zip", buf.Bytes())

	assert.Equal(t, StatusDone, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "notes.pdf")
	assert.Len(t, env.taxRepo.grades, 2)
}

func TestProcessWorkbook(t *testing.T) {
	env := newTestEnv(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"taxpayer_id", "name", "year", "amount"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"76111111-1", "Empresa Uno", "2024", "100.50"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	job := uploadAndProcess(t, env, "planilla.xlsx", buf.Bytes())

	assert.Equal(t, StatusDone, job.Status)
	assert.Empty(t, job.Errors)
	assert.Len(t, env.taxRepo.grades, 1)
}

func TestProcessWorkbookMissingColumnsAborts(t *testing.T) {
	env := newTestEnv(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"taxpayer_id", "amount"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"76111111-1", "100"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	job := uploadAndProcess(t, env, "planilla.xlsx", buf.Bytes())

	assert.Equal(t, StatusFailed, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "Columnas faltantes")
	assert.Empty(t, env.taxRepo.grades)
}

func TestProcessIsIdempotentForFinishedJobs(t *testing.T) {
	env := newTestEnv(t)
	job := uploadAndProcess(t, env, "calificaciones.csv", []byte(mixedTaxGradeCSV))

	before := len(env.repo.outcomes)
	require.NoError(t, env.svc.Process(context.Background(), job.ID, testActor, testMeta))
	assert.Equal(t, before, len(env.repo.outcomes))
}

func TestFailStaleJobs(t *testing.T) {
	env := newTestEnv(t)
	stale := Job{ID: uuid.New(), Status: StatusProcessing, UpdatedAt: time.Now().Add(-2 * time.Hour)}
	fresh := Job{ID: uuid.New(), Status: StatusProcessing, UpdatedAt: time.Now()}
	require.NoError(t, env.repo.CreateJob(context.Background(), stale))
	require.NoError(t, env.repo.CreateJob(context.Background(), fresh))

	n, err := env.svc.FailStaleJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, StatusFailed, env.repo.jobs[stale.ID].Status)
	assert.Equal(t, StatusProcessing, env.repo.jobs[fresh.ID].Status)
}
