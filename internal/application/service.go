// Package application wires the progression engines, the flow and the
// command and query handlers over a set of repositories.
package application

import (
	"github.com/schoolplay/progression/internal/application/command"
	"github.com/schoolplay/progression/internal/application/query"
	"github.com/schoolplay/progression/internal/application/saga"
	"github.com/schoolplay/progression/internal/domain/badge"
	"github.com/schoolplay/progression/internal/domain/ledger"
	"github.com/schoolplay/progression/internal/domain/level"
	"github.com/schoolplay/progression/internal/domain/metrics"
	"github.com/schoolplay/progression/internal/domain/ranking"
	"github.com/schoolplay/progression/internal/domain/shared"
	"github.com/schoolplay/progression/internal/domain/student"
	"github.com/schoolplay/progression/pkg/logger"
)

// Stores are the persistence ports. LeaderboardCache may be nil.
type Stores struct {
	Directory        student.Directory
	Ledger           ledger.Repository
	Activity         metrics.ActivityStore
	Levels           level.Repository
	Badges           badge.Repository
	Ranking          ranking.Repository
	Locker           student.Locker
	LeaderboardCache ranking.Cache
}

// Telemetry receives run, recalculation and step-failure metrics.
type Telemetry interface {
	saga.Observer
	command.RecalcRecorder
}

// Options tune the engines. Zero values use the engine defaults.
type Options struct {
	Clock     shared.Clock
	Logger    *logger.Logger
	Publisher shared.EventPublisher
	Telemetry Telemetry

	ActivityWindowDays     int
	RecalcBatchSize        int
	LeaderboardPageSize    int
	LeaderboardMaxPageSize int
	MaxLevelJumps          int
}

// Service holds every wired component.
type Service struct {
	Ledger  *ledger.Ledger
	Metrics *metrics.Aggregator
	Levels  *level.Engine
	Badges  *badge.Engine
	Ranking *ranking.Index
	Flow    *saga.ProgressionFlow

	ChangePoints *command.ChangePointsHandler
	Resync       *command.ResyncStudentHandler
	LevelAdmin   *command.LevelAdminHandler
	BadgeAdmin   *command.BadgeAdminHandler

	Progression  *query.GetProgressionHandler
	Leaderboard  *query.GetLeaderboardHandler
	Transactions *query.GetTransactionsHandler
	Catalog      *query.CatalogHandler
}

// NewService wires the components.
func NewService(s Stores, o Options) *Service {
	if o.Clock == nil {
		o.Clock = shared.SystemClock{}
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Publisher == nil {
		o.Publisher = shared.NopPublisher{}
	}

	levelCfg := level.DefaultEngineConfig()
	badgeCfg := badge.DefaultEngineConfig()
	if o.RecalcBatchSize > 0 {
		levelCfg.RecalcBatchSize = o.RecalcBatchSize
		badgeCfg.RecalcBatchSize = o.RecalcBatchSize
	}
	indexCfg := ranking.IndexConfig{
		DefaultPageSize: o.LeaderboardPageSize,
		MaxPageSize:     o.LeaderboardMaxPageSize,
	}

	led := ledger.New(s.Ledger, s.Directory, o.Clock)
	levels := level.NewEngine(s.Levels, led, s.Directory, s.Locker, o.Clock, o.Logger, levelCfg)
	agg := metrics.NewAggregator(led, s.Activity, levels, s.Directory, o.Clock, o.ActivityWindowDays)
	badges := badge.NewEngine(s.Badges, agg, s.Directory, s.Locker, o.Clock, o.Logger, badgeCfg)
	index := ranking.NewIndex(s.Ranking, s.LeaderboardCache, led, s.Directory, o.Clock, o.Logger, indexCfg)

	deps := saga.ProgressionFlowDeps{
		Directory: s.Directory,
		Points:    led,
		Metrics:   agg,
		Levels:    levels,
		Badges:    badges,
		Ranking:   index,
		Publisher: o.Publisher,
		Clock:     o.Clock,
		Logger:    o.Logger,
	}
	var recorder command.RecalcRecorder
	if o.Telemetry != nil {
		deps.Observer = o.Telemetry
		recorder = o.Telemetry
	}
	flow := saga.NewProgressionFlow(deps, saga.ProgressionFlowConfig{MaxLevelJumps: o.MaxLevelJumps})

	return &Service{
		Ledger:  led,
		Metrics: agg,
		Levels:  levels,
		Badges:  badges,
		Ranking: index,
		Flow:    flow,

		ChangePoints: command.NewChangePointsHandler(led, s.Locker, flow, o.Logger),
		Resync:       command.NewResyncStudentHandler(s.Locker, flow),
		LevelAdmin:   command.NewLevelAdminHandler(levels, s.Locker, o.Publisher, recorder, o.Clock, o.Logger),
		BadgeAdmin:   command.NewBadgeAdminHandler(badges, s.Locker, o.Publisher, recorder, o.Clock, o.Logger),

		Progression:  query.NewGetProgressionHandler(s.Directory, agg, levels, badges, index),
		Leaderboard:  query.NewGetLeaderboardHandler(index),
		Transactions: query.NewGetTransactionsHandler(s.Directory, led),
		Catalog:      query.NewCatalogHandler(levels, badges),
	}
}
