package svc

import (
	"context"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachepkg "rotor-api/internal/cache"
	"rotor-api/internal/config"
	"rotor-api/internal/repo"
	"rotor-api/pkg/broker"
	"rotor-api/pkg/broker/sim"
	"rotor-api/pkg/engine"
	"rotor-api/pkg/feed"
	"rotor-api/pkg/journal"
	"rotor-api/pkg/ledger"
	"rotor-api/pkg/rotation"
	"rotor-api/pkg/tradingday"
	"rotor-api/pkg/warrant"
	"rotor-api/pkg/warrant/screener"
)

// ExchangeZone anchors trading-day arithmetic for every component.
const ExchangeZone = "Asia/Hong_Kong"

type ServiceContext struct {
	Config config.Config

	DBConn sqlx.SqlConn
	Redis  *redis.Redis
	Repos  *repo.Set
	TTL    cachepkg.TTLSet
	Mirror *cachepkg.Mirror

	Calendar     *tradingday.Calendar
	Registry     *rotation.SeatRegistry
	Suppressions *rotation.SuppressionCache
	Ledger       *ledger.LotLedger
	Pending      *ledger.PendingSellTracker
	Risk         *warrant.StrikeDistance
	Finder       warrant.Finder
	Trader       broker.Trader
	Feed         *feed.Client
	Journal      *journal.Writer
	Engine       *engine.Engine
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config:   c,
		TTL:      cachepkg.NewTTLSet(c.TTL),
		Calendar: tradingday.NewCalendar(ExchangeZone),
		Ledger:   ledger.NewLotLedger(),
		Risk:     warrant.NewStrikeDistance(),
		Journal:  journal.NewWriter(c.JournalDir),
	}
	svc.Pending = ledger.NewPendingSellTracker(svc.Ledger)

	// Redis mirrors day-scoped suppressions across restarts.
	var dayStore rotation.DayStore
	if c.Redis.Host != "" {
		rds, err := redis.NewRedis(c.Redis)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		svc.Redis = rds
		dayStore = cachepkg.NewRedisDayStore(rds)
		svc.Mirror = cachepkg.NewMirror(rds, svc.TTL)
	}
	svc.Suppressions = rotation.NewSuppressionCache(svc.Calendar, dayStore)

	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn
		repos, err := repo.New(repo.Dependencies{
			DBConn:   conn,
			Calendar: svc.Calendar,
		})
		if err != nil {
			log.Fatalf("failed to build repositories: %v", err)
		}
		svc.Repos = repos
	}

	// The engine and machine need both config sections; without them the
	// process can still run inspection commands against storage.
	if c.Engine.Value == nil || c.Rotation.Value == nil {
		logx.Info("svc: engine or rotation section missing, orchestration disabled")
		return svc
	}
	engineCfg := c.Engine.Value

	svc.Registry = rotation.NewSeatRegistry(engineCfg.MonitorSymbol)

	if c.Screener.Value != nil {
		svc.Finder = screener.NewClientFromConfig(c.Screener.Value, engineCfg.MonitorSymbol)
	} else {
		logx.Errorf("svc: no screener configured, candidate searches will always come up empty")
		svc.Finder = emptyFinder{}
	}

	// Live brokerage connectivity is provisioned separately; the paper broker
	// backs every environment this binary ships to.
	svc.Trader = sim.New()
	if !c.IsTestEnv() {
		logx.Infof("svc: env %s running on the paper broker", c.Env)
	}

	var quotes <-chan broker.Quote
	var subscriber engine.Subscriber
	if c.Feed.URL != "" {
		svc.Feed = feed.New(c.Feed.URL)
		quotes = svc.Feed.Quotes()
		subscriber = svc.Feed
	}

	deps := engine.Deps{
		Registry:     svc.Registry,
		Suppressions: svc.Suppressions,
		Ledger:       svc.Ledger,
		Pending:      svc.Pending,
		Trader:       svc.Trader,
		Finder:       svc.Finder,
		Risk:         svc.Risk,
		Calendar:     svc.Calendar,
		Journal:      svc.Journal,
		Subscriber:   subscriber,
		Quotes:       quotes,
	}
	if svc.Repos != nil {
		deps.FillSink = guardedFillSink{next: svc.Repos.Executions, mirror: svc.Mirror}
		deps.Rotations = rotationSink{repos: svc.Repos, mirror: svc.Mirror, registry: svc.Registry}
	}
	eng, err := engine.New(engineCfg, c.Rotation.Value, deps)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	svc.Engine = eng
	return svc
}

// emptyFinder reports a clean miss on every search.
type emptyFinder struct{}

func (emptyFinder) FindBestCandidate(ctx context.Context, direction broker.Direction, th warrant.Thresholds) (*warrant.Candidate, error) {
	return nil, nil
}

// guardedFillSink drops fills whose execution id was already ingested within
// the guard window, then hands the rest to the repository.
type guardedFillSink struct {
	next   engine.FillSink
	mirror *cachepkg.Mirror
}

func (s guardedFillSink) RecordFill(ctx context.Context, fill broker.Fill, direction broker.Direction) error {
	if s.mirror != nil {
		execID := fill.ExecID
		if execID == "" {
			execID = fill.OrderID
		}
		first, err := s.mirror.FirstIngest(ctx, execID)
		if err != nil {
			logx.Errorf("svc: exec ingest guard unavailable, writing through: %v", err)
		} else if !first {
			return nil
		}
	}
	return s.next.RecordFill(ctx, fill, direction)
}

// rotationSink adapts the engine's rotation events to the repository record
// and refreshes the cached seat snapshot for the rotated direction.
type rotationSink struct {
	repos    *repo.Set
	mirror   *cachepkg.Mirror
	registry *rotation.SeatRegistry
}

func (s rotationSink) RecordRotation(ctx context.Context, event engine.RotationEvent) error {
	rec := repo.RotationEventRecord{
		MonitorSymbol:     event.MonitorSymbol,
		Direction:         event.Direction,
		SeatVersion:       event.SeatVersion,
		Trigger:           event.Trigger,
		Stage:             event.Stage,
		SellNotional:      event.SellNotional,
		CancelledOrderIDs: event.CancelledOrderIDs,
		StartedAt:         event.StartedAt,
		EndedAt:           event.EndedAt,
	}
	if event.OldSymbol != "" {
		rec.OldSymbol = &event.OldSymbol
	}
	if event.NextSymbol != "" {
		rec.NextSymbol = &event.NextSymbol
	}
	if event.NextCallPrice > 0 {
		rec.NextCallPrice = &event.NextCallPrice
	}
	if event.FailReason != "" {
		rec.FailReason = &event.FailReason
	}
	if err := s.repos.Rotations.RecordRotation(ctx, rec); err != nil {
		return err
	}
	if s.mirror != nil && s.registry != nil {
		seat := s.registry.Seat(broker.Direction(event.Direction))
		if err := s.mirror.SaveSeat(ctx, seat); err != nil {
			logx.Errorf("svc: seat snapshot not mirrored: %v", err)
		}
	}
	return nil
}
