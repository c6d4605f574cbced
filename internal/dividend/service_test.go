package dividend

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
	records  map[uuid.UUID]*Dividend
	recorder *fakeRecorder
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[uuid.UUID]*Dividend), recorder: &fakeRecorder{}}
}

func (m *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *fakeRepo) Audit() audit.Recorder { return m.recorder }

func (m *fakeRepo) Get(ctx context.Context, id uuid.UUID) (*Dividend, error) {
	d, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (m *fakeRepo) GetByKey(ctx context.Context, period int, instrument string, paymentDate time.Time, seq *int) (*Dividend, error) {
	for _, d := range m.records {
		if d.CommercialPeriod == period && d.Instrument == instrument && d.PaymentDate.Equal(paymentDate) && seqEqual(d.CapitalEventSeq, seq) {
			copied := *d
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func seqEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *fakeRepo) List(ctx context.Context, f ListFilters) ([]Dividend, int, error) {
	var result []Dividend
	for _, d := range m.records {
		result = append(result, *d)
	}
	return result, len(result), nil
}

func (m *fakeRepo) Create(ctx context.Context, d Dividend) error {
	copied := d
	m.records[d.ID] = &copied
	return nil
}

func (m *fakeRepo) Update(ctx context.Context, d Dividend) error {
	if _, ok := m.records[d.ID]; !ok {
		return ErrNotFound
	}
	copied := d
	m.records[d.ID] = &copied
	return nil
}

func (m *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func upsertInput(period int, instrument string, seq *int) UpsertInput {
	return UpsertInput{
		MarketType:        MarketStocks,
		InformationOrigin: OriginBroker,
		CommercialPeriod:  period,
		Instrument:        instrument,
		PaymentDate:       time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		CapitalEventSeq:   seq,
		TaxTreatment:      TreatmentNone,
		Amount:            decimal.RequireFromString("120.75"),
	}
}

func TestUpsertMatchesCompositeKey(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	first, action, err := svc.Upsert(ctx, upsertInput(2024, "COPEC", nil), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, audit.ActionCreate, action)

	in := upsertInput(2024, "COPEC", nil)
	in.Amount = decimal.RequireFromString("300")
	second, action, err := svc.Upsert(ctx, in, shared.Actor{ID: "pedro"}, shared.ClientMeta{})
	require.NoError(t, err)

	assert.Equal(t, audit.ActionUpdate, action)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "maria", second.CreatedBy)
	assert.Equal(t, "pedro", second.UpdatedBy)
	assert.Len(t, repo.records, 1)
}

func TestUpsertNilSequenceOnlyMatchesNilSequence(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	seq := 10055
	withSeq, _, err := svc.Upsert(ctx, upsertInput(2024, "COPEC", &seq), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)

	withoutSeq, action, err := svc.Upsert(ctx, upsertInput(2024, "COPEC", nil), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)

	assert.Equal(t, audit.ActionCreate, action)
	assert.NotEqual(t, withSeq.ID, withoutSeq.ID)
	assert.Len(t, repo.records, 2)
}

func TestUpsertWritesOneLedgerEntryPerCall(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, _, err := svc.Upsert(ctx, upsertInput(2024, "COPEC", nil), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)
	_, _, err = svc.Upsert(ctx, upsertInput(2024, "COPEC", nil), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)

	require.Len(t, repo.recorder.entries, 2)
	assert.Equal(t, audit.ActionCreate, repo.recorder.entries[0].Action)
	assert.Equal(t, audit.ActionUpdate, repo.recorder.entries[1].Action)
}

func TestDeleteRemovesRecordAndWritesBeforeSnapshot(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	d, _, err := svc.Upsert(ctx, upsertInput(2024, "COPEC", nil), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, d.ID, shared.Actor{ID: "pedro"}, shared.ClientMeta{}))
	assert.Empty(t, repo.records)

	entry := repo.recorder.entries[len(repo.recorder.entries)-1]
	assert.Equal(t, audit.ActionDelete, entry.Action)
	assert.Equal(t, "COPEC", entry.Before["instrument"])
	assert.Nil(t, entry.After)
}

func TestUpdateKeepsNaturalKey(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	d, _, err := svc.Upsert(ctx, upsertInput(2024, "COPEC", nil), shared.Actor{ID: "maria"}, shared.ClientMeta{})
	require.NoError(t, err)

	desc := "reparto definitivo"
	updated, err := svc.Update(ctx, d.ID, UpdateDividendRequest{Description: &desc}, shared.Actor{ID: "pedro"}, shared.ClientMeta{})
	require.NoError(t, err)

	assert.Equal(t, "reparto definitivo", updated.Description)
	assert.Equal(t, d.CommercialPeriod, updated.CommercialPeriod)
	assert.Equal(t, d.Instrument, updated.Instrument)
	assert.True(t, d.PaymentDate.Equal(updated.PaymentDate))
}
