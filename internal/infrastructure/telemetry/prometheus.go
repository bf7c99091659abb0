// Package telemetry exposes the Prometheus collectors of the progression
// engine.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/infrastructure/messaging"
)

const namespace = "progression"

// Metrics holds the Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	PointEvents      *prometheus.CounterVec
	LevelsEarned     *prometheus.CounterVec
	LevelsRevoked    prometheus.Counter
	BadgesGranted    *prometheus.CounterVec
	BadgesRevoked    *prometheus.CounterVec
	RankingRefreshes prometheus.Counter
	StepFailures     *prometheus.CounterVec
	FlowDuration     prometheus.Histogram
	RecalcChanges    *prometheus.CounterVec
	JobRuns          *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	HTTPInFlight     prometheus.Gauge
}

// NewMetrics creates collectors registered on a fresh registry together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PointEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "point_events_total",
			Help:      "Point transactions recorded, by kind",
		}, []string{"kind"}),
		LevelsEarned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "levels_earned_total",
			Help:      "Level memberships created, by source",
		}, []string{"source"}),
		LevelsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "levels_revoked_total",
			Help:      "Level memberships removed by threshold recalculation",
		}),
		BadgesGranted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_granted_total",
			Help:      "Badge memberships created, by source",
		}, []string{"source"}),
		BadgesRevoked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_revoked_total",
			Help:      "Badge memberships removed, by source",
		}, []string{"source"}),
		RankingRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_refreshes_total",
			Help:      "Ranking entries refreshed",
		}),
		StepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "step_failures_total",
			Help:      "Progression steps that failed after the ledger write, by step",
		}, []string{"step"}),
		FlowDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "run_duration_seconds",
			Help:      "Duration of one progression run",
			Buckets:   prometheus.DefBuckets,
		}),
		RecalcChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalculation_changes_total",
			Help:      "Membership changes made by recalculations, by target and change",
		}, []string{"target", "change"}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs, by job and status",
		}, []string{"job", "status"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route and status",
		}, []string{"route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchEventBus exposes the counters kept by the event bus. It must be called
// at most once per Metrics; a nil bus is ignored.
func (m *Metrics) WatchEventBus(bus *messaging.EventBusMetrics) {
	if bus == nil {
		return
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Subsystem: "eventbus", Name: name, Help: help}
	}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(opts("published_total", "Events published on the bus"), func() float64 {
			return float64(bus.Snapshot().TotalPublished)
		}),
		prometheus.NewCounterFunc(opts("handler_runs_total", "Subscriber invocations"), func() float64 {
			return float64(bus.Snapshot().TotalHandlerExecs)
		}),
		prometheus.NewCounterFunc(opts("handler_failures_total", "Subscriber invocations that returned an error or panicked"), func() float64 {
			return float64(bus.Snapshot().HandlerFailures)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eventbus",
			Name:      "handler_avg_duration_seconds",
			Help:      "Mean subscriber duration since start",
		}, func() float64 {
			return bus.Snapshot().AverageHandlerDuration.Seconds()
		}),
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDERS
// ══════════════════════════════════════════════════════════════════════════════

// ObserveRun records the duration of one progression run.
func (m *Metrics) ObserveRun(d time.Duration) {
	m.FlowDuration.Observe(d.Seconds())
}

// StepFailed counts a failed progression step.
func (m *Metrics) StepFailed(step string) {
	m.StepFailures.WithLabelValues(step).Inc()
}

// RecordRecalculation counts the changes of a recalculation report.
func (m *Metrics) RecordRecalculation(target string, r shared.RecalcReport) {
	m.RecalcChanges.WithLabelValues(target, "granted").Add(float64(len(r.Granted)))
	m.RecalcChanges.WithLabelValues(target, "revoked").Add(float64(len(r.Revoked)))
	m.RecalcChanges.WithLabelValues(target, "failed").Add(float64(len(r.FailedStudentIDs)))
}

// RecordJob counts a scheduled job run.
func (m *Metrics) RecordJob(job string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// HandleEvent counts progression events. It is meant to be subscribed to
// every event of the bus.
func (m *Metrics) HandleEvent(event shared.Event) error {
	switch e := event.(type) {
	case shared.PointsChangedEvent:
		kind := "award"
		if e.Amount < 0 {
			kind = "penalty"
		}
		m.PointEvents.WithLabelValues(kind).Inc()
	case shared.LevelChangedEvent:
		if e.EventType() == shared.EventLevelRevoked {
			m.LevelsRevoked.Inc()
		} else {
			m.LevelsEarned.WithLabelValues(string(e.Source)).Inc()
		}
	case shared.BadgeChangedEvent:
		if e.EventType() == shared.EventBadgeRevoked {
			m.BadgesRevoked.WithLabelValues(string(e.Source)).Inc()
		} else {
			m.BadgesGranted.WithLabelValues(string(e.Source)).Inc()
		}
	case shared.RankingRefreshedEvent:
		m.RankingRefreshes.Inc()
	}
	return nil
}
