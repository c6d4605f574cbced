package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, err error) (int, ProblemDetail) {
	t.Helper()
	rec := httptest.NewRecorder()
	RespondError(rec, err)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return rec.Code, problem
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("tax grade %w", ErrNotFound), 404},
		{fmt.Errorf("record %w", ErrDuplicate), 409},
		{fmt.Errorf("bad input: %w", ErrValidation), 400},
		{fmt.Errorf("upload: %w", ErrTooLarge), 413},
	}
	for _, tt := range tests {
		status, _ := respond(t, tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func TestRespondErrorTrimsSentinelSuffix(t *testing.T) {
	status, problem := respond(t, fmt.Errorf("no hay reporte disponible: %w", ErrNotFound))
	assert.Equal(t, 404, status)
	assert.Equal(t, "no hay reporte disponible", problem.Detail)
}

func TestRespondErrorHidesUnexpectedDetail(t *testing.T) {
	status, problem := respond(t, errors.New("pq: connection refused"))
	assert.Equal(t, 500, status)
	assert.Empty(t, problem.Detail)
}

func TestExpected(t *testing.T) {
	assert.True(t, Expected(fmt.Errorf("x %w", ErrNotFound)))
	assert.True(t, Expected(fmt.Errorf("x: %w", ErrValidation)))
	assert.False(t, Expected(errors.New("disk on fire")))
}
