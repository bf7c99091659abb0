package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRoutes_ListAndHistory(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	require.NoError(t, s.Register(&countingJob{name: "rebuild_rankings"}, Every(10*time.Minute)))
	require.NoError(t, s.Register(&countingJob{name: "reconcile_students", err: errors.New("db down")}, Every(time.Hour)))
	_, _ = s.RunNow(context.Background(), "reconcile_students")

	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	rec := serve(t, mux, http.MethodGet, "/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []JobStatusDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "rebuild_rankings", jobs[0].Name)
	assert.Nil(t, jobs[0].LastRun)
	assert.Equal(t, "reconcile_students", jobs[1].Name)
	require.NotNil(t, jobs[1].LastResult)
	assert.Equal(t, "db down", jobs[1].LastResult.Error)

	rec = serve(t, mux, http.MethodGet, "/jobs/history?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []JobRunDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Manual)
	assert.False(t, runs[0].Success)

	rec = serve(t, mux, http.MethodGet, "/jobs/history?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutes_ToggleJobs(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	require.NoError(t, s.Register(&countingJob{name: "rebuild_rankings"}, Every(time.Hour)))
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	rec := serve(t, mux, http.MethodPost, "/jobs/rebuild_rankings/disable")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.ListJobs()[0].Enabled)

	rec = serve(t, mux, http.MethodPost, "/jobs/rebuild_rankings/enable")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.ListJobs()[0].Enabled)

	rec = serve(t, mux, http.MethodPost, "/jobs/missing/disable")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
