// Package app wires config into the stores, fetchers and services shared by
// the ingester daemon and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"fantasy_ingest/internal/config"
	"fantasy_ingest/internal/domain"
	"fantasy_ingest/internal/metrics"
	"fantasy_ingest/internal/publisher"
	"fantasy_ingest/internal/scheduler"
	"fantasy_ingest/internal/service"
	"fantasy_ingest/internal/source/rss"
	"fantasy_ingest/internal/source/youtube"
	"fantasy_ingest/internal/storage/bolt"
	"fantasy_ingest/internal/storage/postgres"
)

// RunLog is the audit trail as both the scheduler and operators see it.
type RunLog interface {
	Append(ctx context.Context, record *domain.RunRecord) error
	Recent(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

type App struct {
	Config       *config.Config
	DB           *sqlx.DB
	Registry     *service.Registry
	Orchestrator *service.Orchestrator
	Scheduler    *scheduler.Scheduler
	RunLog       RunLog
	Metrics      *metrics.Metrics
	Prometheus   *prometheus.Registry

	closers []func() error
	logger  *slog.Logger
}

// Build connects every backing service. On error everything opened so far is
// closed again.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	logger := a.logger

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	logger.Info("connected to database")

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rabbitMQ.Close)
		pub = rabbitMQ
	}

	sourceStore := postgres.NewSourceStore(db)
	resourceStore := postgres.NewResourceStore(db)
	txManager := postgres.NewTransactionManager(db)

	a.Registry = service.NewRegistry(sourceStore, txManager, logger)
	upserter := service.NewUpserter(resourceStore, pub, logger)

	fetchers := []service.Fetcher{
		rss.New(rss.Config{
			UserAgent:      cfg.RSS.UserAgent,
			Timeout:        cfg.RSS.Timeout,
			MaxAttempts:    cfg.RSS.Retry.MaxAttempts,
			InitialBackoff: cfg.RSS.Retry.InitialBackoff,
			MaxBackoff:     cfg.RSS.Retry.MaxBackoff,
		}, logger),
	}
	if cfg.YouTube.APIKey != "" {
		videos, err := youtube.New(ctx, youtube.Config{
			APIKey:  cfg.YouTube.APIKey,
			BaseURL: cfg.YouTube.BaseURL,
			Timeout: cfg.YouTube.Timeout,
		}, logger)
		if err != nil {
			return err
		}
		fetchers = append(fetchers, videos)
	} else {
		logger.Warn("youtube api key not set, video ingestion disabled")
	}

	a.Prometheus = prometheus.NewRegistry()
	a.Prometheus.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Prometheus)

	a.Orchestrator = service.NewOrchestrator(a.Registry, upserter, fetchers, service.OrchestratorConfig{
		FetchTimeout: cfg.Ingest.FetchTimeout,
		SourceDelay:  cfg.Ingest.SourceDelay,
		Concurrency:  cfg.Ingest.Concurrency,
	}, logger)
	a.Orchestrator.SetObserver(a.Metrics)

	runLog, err := a.openRunLog()
	if err != nil {
		return err
	}
	a.RunLog = runLog

	guard, err := a.openGuard(ctx)
	if err != nil {
		return err
	}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}
	a.Scheduler = scheduler.NewScheduler(a.Orchestrator, runLog, guard, scheduler.SystemClock{}, scheduler.Config{
		TargetHour: cfg.Schedule.Hour(),
		Location:   loc,
		CheckSpec:  cfg.Schedule.CheckSpec,
		RunTimeout: cfg.Schedule.RunTimeout,
	}, logger)
	a.Scheduler.SetObserver(a.Metrics)

	return nil
}

func (a *App) openRunLog() (RunLog, error) {
	switch a.Config.RunLog.Driver {
	case "bbolt":
		store, err := bolt.Open(a.Config.RunLog.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("run log stored in bbolt", "path", a.Config.RunLog.Path)
		return store, nil
	default:
		return postgres.NewRunLogStore(a.DB), nil
	}
}

func (a *App) openGuard(ctx context.Context) (scheduler.Guard, error) {
	if a.Config.Redis.Addr == "" {
		return scheduler.NewLocalGuard(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.logger.Info("using redis run lock", "addr", a.Config.Redis.Addr, "key", a.Config.Redis.LockKey)
	return scheduler.NewRedisGuard(client, a.Config.Redis.LockKey, a.Config.Redis.LockTTL, a.logger), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
