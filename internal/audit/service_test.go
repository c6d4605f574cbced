package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	lastFilters Filters
	entries     []Entry
}

func (f *fakeLedger) List(ctx context.Context, filters Filters) ([]Entry, int, error) {
	f.lastFilters = filters
	return f.entries, len(f.entries), nil
}

func TestListAppliesPaginationDefaults(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewService(ledger)

	_, _, err := svc.List(context.Background(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.lastFilters.Page)
	assert.Equal(t, 20, ledger.lastFilters.PerPage)
}

func TestListCapsPerPage(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewService(ledger)

	_, _, err := svc.List(context.Background(), Filters{PerPage: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, ledger.lastFilters.PerPage)
}

func TestListPassesFiltersThrough(t *testing.T) {
	ledger := &fakeLedger{entries: []Entry{{Entity: "tax_grades"}}}
	svc := NewService(ledger)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries, total, err := svc.List(context.Background(), Filters{Entity: "tax_grades", From: from})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "tax_grades", ledger.lastFilters.Entity)
	assert.Equal(t, from, ledger.lastFilters.From)
}
