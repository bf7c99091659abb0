package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/infrastructure/messaging"
)

func TestMetrics_HandleEvent(t *testing.T) {
	m := NewMetrics()
	now := time.Now()

	require.NoError(t, m.HandleEvent(shared.NewPointsChangedEvent("ana", "tx1", 25, 25, "quiz", now)))
	require.NoError(t, m.HandleEvent(shared.NewPointsChangedEvent("ana", "tx2", -10, 15, "late", now)))
	require.NoError(t, m.HandleEvent(shared.NewLevelEarnedEvent("ana", "l1", "Novato", 20, shared.SourceAuto, now)))
	require.NoError(t, m.HandleEvent(shared.NewLevelRevokedEvent("ana", "l1", "Novato", 20, now)))
	require.NoError(t, m.HandleEvent(shared.NewBadgeGrantedEvent("ana", "b1", "Racha", shared.SourceManual, "event", now)))
	require.NoError(t, m.HandleEvent(shared.NewBadgeRevokedEvent("ana", "b1", "Racha", shared.SourceManual, "mistake", now)))
	require.NoError(t, m.HandleEvent(shared.NewRankingRefreshedEvent("ana", 0, 1, 15, now)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PointEvents.WithLabelValues("award")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PointEvents.WithLabelValues("penalty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LevelsEarned.WithLabelValues("auto")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LevelsRevoked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BadgesGranted.WithLabelValues("manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BadgesRevoked.WithLabelValues("manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankingRefreshes))
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics()

	m.StepFailed("badges")
	m.StepFailed("badges")
	m.RecordJob("rebuild_rankings", nil)
	m.RecordJob("rebuild_rankings", errors.New("db down"))
	m.RecordRecalculation("badge", shared.RecalcReport{
		Processed:        5,
		Granted:          []string{"a", "b"},
		Revoked:          []string{"c"},
		FailedStudentIDs: []string{"x"},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepFailures.WithLabelValues("badges")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("rebuild_rankings", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("rebuild_rankings", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecalcChanges.WithLabelValues("badge", "granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecalcChanges.WithLabelValues("badge", "failed")))
}

func TestMetrics_HandlerExposesCollectors(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTP("GET /api/v1/leaderboard", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "progression_http_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}

func TestMetrics_WatchEventBus(t *testing.T) {
	m := NewMetrics()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()
	m.WatchEventBus(bus.Metrics())

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("cache down") }))
	require.NoError(t, bus.Publish(shared.NewPointsChangedEvent("ana", "tx1", 5, 5, "quiz", time.Now())))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, "progression_eventbus_published_total 1")
	assert.Contains(t, body, "progression_eventbus_handler_runs_total 1")
	assert.Contains(t, body, "progression_eventbus_handler_failures_total 1")
	assert.Contains(t, body, "progression_eventbus_handler_avg_duration_seconds")

	assert.NotPanics(t, func() { NewMetrics().WatchEventBus(nil) })
}
