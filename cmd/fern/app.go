package main

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/internal/repositories/batchrun"
	"github.com/Ramsey-B/fern/internal/repositories/duplicatepair"
	"github.com/Ramsey-B/fern/internal/repositories/participant"
	"github.com/Ramsey-B/fern/internal/repositories/resolution"
	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/checker"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/duplicates"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// app holds the connected infrastructure and the services built on it
type app struct {
	startup *startup.Startup

	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer

	participants *participant.Repository
	engine       *matching.Engine
	comparator   *batch.Comparator
	checker      *checker.Checker
	resolver     *resolver.Resolver
	duplicates   *duplicates.Service
}

// newApp connects every enabled dependency, retrying with backoff, and builds the services
func newApp(ctx context.Context) (*app, error) {
	a := &app{startup: startup.NewStartup(logger, cfg.StartupMaxAttempts)}

	shutdownTracing := func(context.Context) error { return nil }
	a.startup.AddDependency(startup.Func{
		DependencyName: "tracing",
		StartFn: func(ctx context.Context) error {
			shutdown, err := tracing.Setup(ctx, cfg.Tracing())
			if err != nil {
				return err
			}
			shutdownTracing = shutdown
			return nil
		},
		StopFn: func(ctx context.Context) error { return shutdownTracing(ctx) },
	})

	a.startup.AddDependency(startup.Func{
		DependencyName: "database",
		StartFn: func(ctx context.Context) error {
			db, err := database.Open(ctx, cfg.Database(), logger)
			if err != nil {
				return err
			}
			if cfg.DatabaseMigrateOnStart {
				if err := database.NewMigrationService(logger, cfg.Migration()).MigratePostgres(db.SQLX(), cfg.DatabaseName); err != nil {
					_ = db.Close()
					return err
				}
			}
			a.db = db
			return nil
		},
		StopFn: func(context.Context) error { return a.db.Close() },
	})

	required := []string{"tracing", "database"}

	if cfg.RedisEnabled {
		a.startup.AddDependency(startup.Func{
			DependencyName: "redis",
			StartFn: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, cfg.Redis(), logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			StopFn: func(context.Context) error { return a.redis.Close() },
		})
		required = append(required, "redis")
	}

	if cfg.KafkaEnabled {
		a.startup.AddDependency(startup.Func{
			DependencyName: "kafka",
			StartFn: func(context.Context) error {
				a.producer = kafka.NewProducer(cfg.Kafka(), logger)
				return nil
			},
			StopFn: func(context.Context) error { return a.producer.Close() },
		})
		required = append(required, "kafka")
	}

	a.startup.AddDependency(startup.Func{
		DependencyName: "services",
		Requires:       required,
		StartFn:        func(context.Context) error { return a.build() },
	})

	if err := a.startup.Start(ctx); err != nil {
		_ = a.startup.Stop(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) build() error {
	matchingConfig, err := cfg.Matching()
	if err != nil {
		return err
	}
	batchConfig, err := cfg.Batch()
	if err != nil {
		return err
	}
	a.engine, err = matching.NewEngine(matchingConfig)
	if err != nil {
		return err
	}

	a.participants = participant.NewRepository(a.db, logger)
	pairs := duplicatepair.NewRepository(a.db, logger)
	resolutions := resolution.NewRepository(a.db, logger)
	runs := batchrun.NewRepository(a.db, logger)

	var opts []batch.Option
	if a.redis != nil {
		opts = append(opts, batch.WithLocker(redis.NewLocker(a.redis, "")))
	}
	a.comparator, err = batch.NewComparator(logger, a.engine, batch.Stores{
		Participants: a.participants,
		Index:        pairs,
		Resolutions:  resolutions,
		Runs:         runs,
	}, batchConfig, opts...)
	if err != nil {
		return err
	}

	// A nil *kafka.Producer stored in the interface would not read as disabled.
	var publisher events.Publisher
	if a.producer != nil {
		publisher = a.producer
	}

	a.checker = checker.NewChecker(logger, a.engine, a.participants, resolutions, cfg.CheckPageSize)
	a.resolver = resolver.NewResolver(logger, a.db, a.participants, pairs, resolutions, events.NewEmitter(publisher, logger))
	a.duplicates = duplicates.NewService(logger, pairs, a.participants)
	return nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := a.startup.Stop(ctx); err != nil {
		logger.WithError(err).Error("Failed to stop dependencies")
	}
}
