package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conta-sync-service/internal/contaazul"
)

func newGuardHandler() *SyncHandler {
	return NewSyncHandler(nil, nil, nil, nil, nil, zerolog.Nop())
}

func TestAcquireReleaseGuard(t *testing.T) {
	h := newGuardHandler()

	require.True(t, h.acquire("t1"))
	assert.False(t, h.acquire("t1"), "second acquire for the same tenant must fail")
	assert.True(t, h.acquire("t2"), "other tenants are unaffected")

	h.release("t1")
	assert.True(t, h.acquire("t1"), "released tenant can be acquired again")
}

func TestDateRange(t *testing.T) {
	valid := httptest.NewRequest(http.MethodGet, "/sync/t1/receivables?from=2024-01-01&to=2024-03-31", nil)
	from, to, err := dateRange(valid)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", from)
	assert.Equal(t, "2024-03-31", to)

	empty := httptest.NewRequest(http.MethodGet, "/sync/t1/receivables", nil)
	from, to, err = dateRange(empty)
	require.NoError(t, err)
	assert.Empty(t, from)
	assert.Empty(t, to)

	partial := httptest.NewRequest(http.MethodGet, "/sync/t1/receivables?from=2024-01-01", nil)
	from, to, err = dateRange(partial)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", from)
	assert.Empty(t, to)

	invalid := httptest.NewRequest(http.MethodGet, "/sync/t1/receivables?from=01/01/2024", nil)
	_, _, err = dateRange(invalid)
	require.Error(t, err)
	var badInput *badRequestError
	assert.True(t, errors.As(err, &badInput))
}

func TestRespondSyncErrorMapping(t *testing.T) {
	h := newGuardHandler()

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"bad input", &badRequestError{msg: "Invalid date format. Use YYYY-MM-DD"}, http.StatusBadRequest},
		{"missing credential", contaazul.ErrNoAccessToken, http.StatusUnauthorized},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.respondSyncError(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	healthCheckHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "healthy"}`, rec.Body.String())
}

func TestIsSyncedTable(t *testing.T) {
	assert.True(t, isSyncedTable("categorias"))
	assert.True(t, isSyncedTable("baixas"))
	assert.False(t, isSyncedTable("tenants"))
	assert.False(t, isSyncedTable("categorias; DROP TABLE x"))
}
