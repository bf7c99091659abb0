package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/schoolplay/progression/internal/application"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/internal/infrastructure/persistence/memory"
	"github.com/schoolplay/progression/internal/infrastructure/telemetry"
)

const adminKey = "s3cret"

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

type testServer struct {
	t       *testing.T
	store   *memory.Store
	metrics *telemetry.Metrics
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	require.NoError(t, err)

	store := memory.NewStore()
	store.AddStudent("ana", "Ana", now)
	store.AddStudent("ben", "Ben", now)
	store.AddAccount(student.Profile{ID: "profe", DisplayName: "Profe", Role: student.RoleTeacher})

	svc := application.NewService(application.Stores{
		Directory: store.Directory(),
		Ledger:    store.Ledger(),
		Activity:  store.Activity(),
		Levels:    store.Levels(),
		Badges:    store.Badges(),
		Ranking:   store.Ranking(),
		Locker:    store.Locker(),
	}, application.Options{Clock: shared.NewFixedClock(now)})

	m := telemetry.NewMetrics()
	cfg := DefaultConfig()
	cfg.AdminKeyHash = string(hash)
	srv := NewServer(cfg, Dependencies{Service: svc, Metrics: m})

	return &testServer{t: t, store: store, metrics: m, handler: srv.Handler()}
}

func (ts *testServer) do(method, path, body string, admin bool) (int, envelope) {
	ts.t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set(AdminKeyHeader, adminKey)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, _ = ts.do(http.MethodGet, "/ready", "", false)
	assert.Equal(t, http.StatusOK, code)

	code, _ = ts.do(http.MethodGet, "/live", "", false)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthChecker_ReportsFailures(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.AddCheck("db", func(context.Context) error { return nil })
	hc.AddCheck("cache", func(context.Context) error { return errors.New("connection refused") })

	status := hc.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.True(t, status.Checks["db"].Healthy)
	assert.Equal(t, "connection refused", status.Checks["cache"].Message)
	assert.Equal(t, "Some checks failed: cache", status.Message)
}

func TestHealthChecker_ReportsDetails(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.AddDetailedCheck("database", func(context.Context) (map[string]any, error) {
		return map[string]any{"max_conns": 25}, nil
	})
	hc.AddCheck("redis", func(context.Context) error { return nil })

	status := hc.Check(context.Background())

	assert.True(t, status.Healthy)
	assert.Equal(t, 25, status.Checks["database"].Details["max_conns"])
	assert.Nil(t, status.Checks["redis"].Details)
}

func TestAwardThenReadProgression(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(http.MethodPost, "/api/v1/levels", `{"name":"Novato","points_required":20}`, true)
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = ts.do(http.MethodPost, "/api/v1/badges", `{"name":"Primeros","criterion":"puntos:25"}`, true)
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = ts.do(http.MethodPost, "/api/v1/students/ana/points/award", `{"amount":25,"reason":"quiz"}`, true)
	require.Equal(t, http.StatusCreated, code, env.Error)

	change := decodeData[PointsChangeDTO](t, env)
	assert.Equal(t, int64(25), change.NewTotal)
	assert.Equal(t, "award", change.Transaction.Kind)
	assert.True(t, change.Progression.Complete)
	require.Len(t, change.Progression.NewLevels, 1)
	assert.Equal(t, "Novato", change.Progression.NewLevels[0].Name)
	require.Len(t, change.Progression.NewBadges, 1)
	assert.Equal(t, "puntos:25", change.Progression.NewBadges[0].Criterion)

	code, env = ts.do(http.MethodGet, "/api/v1/students/ana/progression", "", false)
	require.Equal(t, http.StatusOK, code)
	var prog struct {
		TotalPoints  int64 `json:"total_points"`
		Position     int   `json:"position"`
		CurrentLevel struct {
			Name string `json:"name"`
		} `json:"current_level"`
		Badges []struct {
			Unlocked bool `json:"unlocked"`
		} `json:"badges"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &prog))
	assert.Equal(t, int64(25), prog.TotalPoints)
	assert.Equal(t, 1, prog.Position)
	assert.Equal(t, "Novato", prog.CurrentLevel.Name)
	require.Len(t, prog.Badges, 1)
	assert.True(t, prog.Badges[0].Unlocked)

	code, env = ts.do(http.MethodGet, "/api/v1/students/ana/transactions?limit=5", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"reason":"quiz"`)
}

func TestPenalize(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/students/ana/points/award", `{"amount":100,"reason":"quiz"}`, true)

	code, env := ts.do(http.MethodPost, "/api/v1/students/ana/points/penalize", `{"amount":30,"reason":"late"}`, true)

	require.Equal(t, http.StatusCreated, code)
	change := decodeData[PointsChangeDTO](t, env)
	assert.Equal(t, int64(70), change.NewTotal)
	assert.Equal(t, int64(70), change.TotalPoints)
	assert.Equal(t, int64(-30), change.Transaction.Amount)
}

func TestPenalizeBelowZeroDisplaysZero(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/students/ana/points/award", `{"amount":10,"reason":"quiz"}`, true)

	code, env := ts.do(http.MethodPost, "/api/v1/students/ana/points/penalize", `{"amount":30,"reason":"late"}`, true)
	require.Equal(t, http.StatusCreated, code, env.Error)
	change := decodeData[PointsChangeDTO](t, env)
	assert.Equal(t, int64(-20), change.NewTotal)
	assert.Equal(t, int64(0), change.TotalPoints)
	assert.Equal(t, int64(0), change.Progression.TotalPoints)

	_, env = ts.do(http.MethodGet, "/api/v1/students/ana/progression", "", false)
	prog := decodeData[struct {
		TotalPoints int64 `json:"total_points"`
		LedgerTotal int64 `json:"ledger_total"`
		Position    int   `json:"position"`
	}](t, env)
	assert.Equal(t, int64(0), prog.TotalPoints)
	assert.Equal(t, int64(-20), prog.LedgerTotal)
	assert.Equal(t, 2, prog.Position, "ben at 0 is ahead of ana at -20")
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(http.MethodPost, "/api/v1/students/ana/points/award", `{"amount":5,"reason":"quiz"}`, false)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/students/ana/resync", nil)
	req.Header.Set(AdminKeyHeader, "wrong")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	srv := NewServer(DefaultConfig(), Dependencies{Service: application.NewService(application.Stores{}, application.Options{})})
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/students/ana/resync", nil)
	req.Header.Set(AdminKeyHeader, adminKey)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "admin routes are disabled without a key hash")
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/badges", `{"name":"Uno","criterion":"points:1"}`, true)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"non positive amount", http.MethodPost, "/api/v1/students/ana/points/award", `{"amount":0,"reason":"quiz"}`, http.StatusBadRequest, "validation_error"},
		{"blank reason", http.MethodPost, "/api/v1/students/ana/points/award", `{"amount":5,"reason":"   "}`, http.StatusBadRequest, "validation_error"},
		{"malformed json", http.MethodPost, "/api/v1/students/ana/points/award", `{"amount":`, http.StatusBadRequest, "invalid_request"},
		{"unknown field", http.MethodPost, "/api/v1/students/ana/points/award", `{"amount":5,"reason":"q","x":1}`, http.StatusBadRequest, "invalid_request"},
		{"unknown student", http.MethodPost, "/api/v1/students/ghost/points/award", `{"amount":5,"reason":"quiz"}`, http.StatusNotFound, "not_found"},
		{"not a student", http.MethodPost, "/api/v1/students/profe/points/award", `{"amount":5,"reason":"quiz"}`, http.StatusUnprocessableEntity, "integrity_error"},
		{"bad criterion", http.MethodPost, "/api/v1/badges", `{"name":"Dos","criterion":"nope:1"}`, http.StatusBadRequest, "validation_error"},
		{"duplicate badge", http.MethodPost, "/api/v1/badges", `{"name":"Uno","criterion":"points:2"}`, http.StatusConflict, "conflict"},
		{"unknown badge", http.MethodPost, "/api/v1/students/ana/badges/nope", `{"reason":"x"}`, http.StatusNotFound, "not_found"},
		{"missing grant reason", http.MethodPost, "/api/v1/students/ana/badges/nope", ``, http.StatusBadRequest, "validation_error"},
		{"bad page", http.MethodGet, "/api/v1/leaderboard?page=abc", ``, http.StatusBadRequest, "validation_error"},
		{"unknown progression", http.MethodGet, "/api/v1/students/ghost/progression", ``, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := ts.do(tt.method, tt.path, tt.body, true)
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestBadgeGrantRevokeAndLevelAssign(t *testing.T) {
	ts := newTestServer(t)

	_, env := ts.do(http.MethodPost, "/api/v1/badges", `{"name":"Feria","criterion":"puntos:9999"}`, true)
	b := decodeData[struct {
		ID string `json:"id"`
	}](t, env)
	_, env = ts.do(http.MethodPost, "/api/v1/levels", `{"name":"Mil","points_required":1000}`, true)
	l := decodeData[struct {
		ID string `json:"id"`
	}](t, env)

	code, _ := ts.do(http.MethodPost, "/api/v1/students/ana/badges/"+b.ID, `{"reason":"science fair"}`, true)
	assert.Equal(t, http.StatusCreated, code)

	code, env = ts.do(http.MethodPost, "/api/v1/students/ana/badges/"+b.ID, `{"reason":"again"}`, true)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = ts.do(http.MethodDelete, "/api/v1/students/ana/badges/"+b.ID, `{"reason":"mistake"}`, true)
	assert.Equal(t, http.StatusOK, code)

	code, _ = ts.do(http.MethodDelete, "/api/v1/students/ana/badges/"+b.ID, `{"reason":"mistake"}`, true)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = ts.do(http.MethodPost, "/api/v1/students/ana/levels/"+l.ID, ``, true)
	assert.Equal(t, http.StatusCreated, code, env.Error)
	assert.Equal(t, "manual", decodeData[MembershipDTO](t, env).Source)
}

func TestUpdateLevelReturnsRecalculation(t *testing.T) {
	ts := newTestServer(t)
	_, env := ts.do(http.MethodPost, "/api/v1/levels", `{"name":"Cien","points_required":100}`, true)
	l := decodeData[struct {
		ID string `json:"id"`
	}](t, env)
	ts.do(http.MethodPost, "/api/v1/students/ana/points/award", `{"amount":60,"reason":"quiz"}`, true)

	code, env := ts.do(http.MethodPut, "/api/v1/levels/"+l.ID, `{"points_required":50}`, true)

	require.Equal(t, http.StatusOK, code, env.Error)
	res := decodeData[struct {
		Recalc *RecalcDTO `json:"recalculation"`
	}](t, env)
	require.NotNil(t, res.Recalc)
	assert.Equal(t, []string{"ana"}, res.Recalc.Granted)
	assert.Empty(t, res.Recalc.Revoked)
}

func TestLeaderboardPagination(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/students/ana/points/award", `{"amount":10,"reason":"quiz"}`, true)
	ts.do(http.MethodPost, "/api/v1/students/ben/points/award", `{"amount":20,"reason":"quiz"}`, true)

	code, env := ts.do(http.MethodGet, "/api/v1/leaderboard?page=1&page_size=1", "", false)

	require.Equal(t, http.StatusOK, code)
	var lb struct {
		Rows []struct {
			StudentID string `json:"student_id"`
			Position  int    `json:"position"`
		} `json:"rows"`
		TotalStudents int  `json:"total_students"`
		HasNext       bool `json:"has_next"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &lb))
	require.Len(t, lb.Rows, 1)
	assert.Equal(t, "ben", lb.Rows[0].StudentID)
	assert.Equal(t, 1, lb.Rows[0].Position)
	assert.Equal(t, 2, lb.TotalStudents)
	assert.True(t, lb.HasNext)
}

func TestMetricsEndpointLabelsRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/api/v1/leaderboard", "", false)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="GET /api/v1/leaderboard"`)
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{Service: application.NewService(application.Stores{}, application.Options{})})
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"request_id":"req-42"`)
}
