package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrail_RecordsSuccessfulCalls(t *testing.T) {
	repo := setupSQLite(t)
	r := chi.NewRouter()
	r.Delete("/users/{userID}", Trail(NewRecorder(repo), EventMemoryWiped, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/users/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	logs, total, err := repo.ListByUser(context.Background(), "42", DefaultListParams())
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, EventMemoryWiped, logs[0].EventType)
}

func TestTrail_SkipsFailedCalls(t *testing.T) {
	repo := setupSQLite(t)
	r := chi.NewRouter()
	r.Post("/users/{userID}/files", Trail(NewRecorder(repo), EventFileIngested, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/42/files", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, total, err := repo.ListByUser(context.Background(), "42", DefaultListParams())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestTrail_NilPublisherIsPassThrough(t *testing.T) {
	called := false
	h := Trail(nil, EventHistoryCleared, func(http.ResponseWriter, *http.Request) { called = true })
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	assert.True(t, called)
}
