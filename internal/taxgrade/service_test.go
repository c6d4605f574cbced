package taxgrade

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalia/fiscalia/internal/audit"
	"github.com/fiscalia/fiscalia/internal/shared"
)

type fakeRecorder struct {
	entries []audit.Entry
}

func (r *fakeRecorder) Record(ctx context.Context, e audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

type fakeRepo struct {
	grades      map[uuid.UUID]*TaxGrade
	recorder    *fakeRecorder
	lastFilters ListFilters
	createErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{grades: make(map[uuid.UUID]*TaxGrade), recorder: &fakeRecorder{}}
}

func (m *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *fakeRepo) Audit() audit.Recorder { return m.recorder }

func (m *fakeRepo) Get(ctx context.Context, id uuid.UUID) (*TaxGrade, error) {
	g, ok := m.grades[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (m *fakeRepo) GetByKey(ctx context.Context, taxpayerID string, fiscalYear int) (*TaxGrade, error) {
	for _, g := range m.grades {
		if g.TaxpayerID == taxpayerID && g.FiscalYear == fiscalYear {
			copied := *g
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *fakeRepo) List(ctx context.Context, f ListFilters) ([]TaxGrade, int, error) {
	m.lastFilters = f
	var result []TaxGrade
	for _, g := range m.grades {
		if f.Status != "" && string(g.Status) != f.Status {
			continue
		}
		result = append(result, *g)
	}
	return result, len(result), nil
}

func (m *fakeRepo) ListByYear(ctx context.Context, year int, status Status) ([]TaxGrade, error) {
	var result []TaxGrade
	for _, g := range m.grades {
		if g.FiscalYear == year && g.Status == status {
			result = append(result, *g)
		}
	}
	return result, nil
}

func (m *fakeRepo) Create(ctx context.Context, g TaxGrade) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.grades {
		if existing.TaxpayerID == g.TaxpayerID && existing.FiscalYear == g.FiscalYear {
			return ErrAlreadyExists
		}
	}
	copied := g
	m.grades[g.ID] = &copied
	return nil
}

func (m *fakeRepo) Update(ctx context.Context, g TaxGrade) error {
	if _, ok := m.grades[g.ID]; !ok {
		return ErrNotFound
	}
	copied := g
	m.grades[g.ID] = &copied
	return nil
}

func upsertInput(taxpayerID string, year int, amount string) UpsertInput {
	return UpsertInput{
		TaxpayerID: taxpayerID,
		Name:       "Sociedad de Inversiones",
		FiscalYear: year,
		SourceType: SourceDeclaration,
		Origin:     OriginFile,
		Amount:     decimal.RequireFromString(amount),
		Status:     StatusActive,
	}
}

func TestUpsertCreatesWhenKeyIsNew(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	g, action, err := svc.Upsert(context.Background(), upsertInput("76123456-7", 2024, "1500.50"),
		shared.Actor{ID: "maria"}, shared.ClientMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, audit.ActionCreate, action)
	assert.Equal(t, "maria", g.CreatedBy)
	assert.Equal(t, "maria", g.UpdatedBy)
	assert.Equal(t, OriginFile, g.Origin)

	require.Len(t, repo.recorder.entries, 1)
	entry := repo.recorder.entries[0]
	assert.Equal(t, audit.ActionCreate, entry.Action)
	assert.Equal(t, "tax_grades", entry.Entity)
	assert.Equal(t, g.ID.String(), entry.EntityID)
	assert.Nil(t, entry.Before)
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
}

func TestUpsertUpdatesExistingAndKeepsCreator(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	first, _, err := svc.Upsert(ctx, upsertInput("76123456-7", 2024, "1500.50"),
		shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)

	second, action, err := svc.Upsert(ctx, upsertInput("76123456-7", 2024, "9999.99"),
		shared.Actor{ID: "pedro"}, shared.ClientMeta{})
	require.NoError(t, err)

	assert.Equal(t, audit.ActionUpdate, action)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "maria", second.CreatedBy)
	assert.Equal(t, "pedro", second.UpdatedBy)
	assert.True(t, second.Amount.Equal(decimal.RequireFromString("9999.99")))

	require.Len(t, repo.recorder.entries, 2)
	update := repo.recorder.entries[1]
	assert.Equal(t, audit.ActionUpdate, update.Action)
	assert.Equal(t, "1500.5", update.Before["amount"])
	assert.Equal(t, "9999.99", update.After["amount"])
}

func TestUpsertDifferentYearsCreateSeparateRecords(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a, _, err := svc.Upsert(ctx, upsertInput("76123456-7", 2023, "100"), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)
	b, _, err := svc.Upsert(ctx, upsertInput("76123456-7", 2024, "200"), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, repo.grades, 2)
}

func TestDeactivateKeepsRecordAndWritesDeleteEntry(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	g, _, err := svc.Upsert(ctx, upsertInput("76123456-7", 2024, "100"), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, g.ID, shared.Actor{ID: "pedro"}, shared.ClientMeta{}))

	stored, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, stored.Status)
	assert.Equal(t, "pedro", stored.UpdatedBy)

	require.Len(t, repo.recorder.entries, 2)
	entry := repo.recorder.entries[1]
	assert.Equal(t, audit.ActionDelete, entry.Action)
	assert.Equal(t, map[string]any{"status": "inactive"}, entry.After)
}

func TestListDefaultsToActiveStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	_, _, err := svc.List(context.Background(), ListFilters{})
	require.NoError(t, err)
	assert.Equal(t, "active", repo.lastFilters.Status)
	assert.Equal(t, 20, repo.lastFilters.PerPage)
	assert.Equal(t, 1, repo.lastFilters.Page)
}

func TestListCapsPerPage(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	_, _, err := svc.List(context.Background(), ListFilters{PerPage: 500})
	require.NoError(t, err)
	assert.Equal(t, 100, repo.lastFilters.PerPage)
}

func TestExportRecordsLedgerEntry(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, _, err := svc.Upsert(ctx, upsertInput("76123456-7", 2024, "100"), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)

	grades, err := svc.Export(ctx, 2024, shared.Actor{ID: "ana"}, shared.ClientMeta{})
	require.NoError(t, err)
	require.Len(t, grades, 1)

	entry := repo.recorder.entries[len(repo.recorder.entries)-1]
	assert.Equal(t, audit.ActionExport, entry.Action)
	assert.Equal(t, "2024", entry.EntityID)
	assert.Equal(t, 1, entry.After["count"])
}

func TestUpsertTimestamps(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	g, _, err := svc.Upsert(context.Background(), upsertInput("76123456-7", 2024, "100"),
		shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, fixed, g.CreatedAt)
	assert.Equal(t, fixed, g.UpdatedAt)
}
