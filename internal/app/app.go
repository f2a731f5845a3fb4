// Package app assembles the engine's components from configuration. Both the
// API server and the scheduler build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/bnpl-engine/internal/config"
	"github.com/segyhp/bnpl-engine/internal/creditscore"
	"github.com/segyhp/bnpl-engine/internal/financing"
	"github.com/segyhp/bnpl-engine/internal/handler"
	"github.com/segyhp/bnpl-engine/internal/observability"
	"github.com/segyhp/bnpl-engine/internal/repository"
	"github.com/segyhp/bnpl-engine/internal/repository/memory"
	"github.com/segyhp/bnpl-engine/internal/resilience"
	"github.com/segyhp/bnpl-engine/internal/risk"
	"github.com/segyhp/bnpl-engine/internal/service"
)

// App is the wired engine.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Repo         repository.ApplicationRepository
	Redis        *redis.Client
	Applications *service.ApplicationService
	Payments     *service.PaymentService
	Sweeper      *service.OverdueSweeper
	Stats        *service.StatsService

	closers []func() error
}

// New connects storage and caches and builds the services.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	repo, err := a.initRepository(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Repo = repo

	scoreCache, err := a.initScoreCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var provider creditscore.Provider
	if cfg.CreditProvider.URL != "" {
		provider = creditscore.NewHTTPProvider(
			&http.Client{Timeout: cfg.CreditProvider.Timeout},
			cfg.CreditProvider.URL,
			resilience.NewCircuitBreaker("credit-provider"),
			resilience.Config{
				MaxRetries:     cfg.CreditProvider.MaxRetries,
				InitialBackoff: cfg.CreditProvider.InitialBackoff,
			},
		)
	} else {
		logger.Warn("no credit provider configured, every decision uses the fallback risk level",
			zap.String("fallback_risk_level", string(cfg.GetFallbackRiskLevel())),
		)
	}

	lookup := creditscore.NewLookup(provider, scoreCache, creditscore.LookupConfig{
		Timeout:  cfg.CreditProvider.Timeout,
		Fallback: cfg.GetFallbackRiskLevel(),
	}, a.Metrics, logger.Named("creditscore"))

	a.Applications = service.NewApplicationService(
		repo,
		financing.NewCalculator(cfg.Business.MaxInstallments, cfg.GetMaxInterestRate()),
		financing.NewScheduleGenerator(cfg.GetScheduleConfig()),
		risk.NewPolicy(cfg.GetRiskLimits()),
		lookup,
		cfg.GetDefaultInterestRate(),
		a.Metrics,
		logger.Named("applications"),
	)
	a.Payments = service.NewPaymentService(repo, a.Metrics, logger.Named("payments"))
	a.Sweeper = service.NewOverdueSweeper(repo, cfg.Business.LateFeeCents, cfg.Scheduler.SweepPageSize, a.Metrics, logger.Named("sweeper"))
	a.Stats = service.NewStatsService(repo, logger.Named("stats"))

	return a, nil
}

// SweepJob wraps the overdue sweep as a cron job. A tick that fires while the
// previous run is still going is skipped.
func (a *App) SweepJob(ctx context.Context) cron.Job {
	return cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		if _, err := a.Sweeper.Run(ctx); err != nil {
			a.Logger.Error("overdue sweep failed", zap.Error(err))
		}
	}))
}

// Router builds the HTTP API on top of the services.
func (a *App) Router() http.Handler {
	bnpl := handler.NewBNPLHandler(a.Applications, a.Payments, a.Sweeper, a.Stats)
	health := handler.NewHealthHandler(a.Repo, a.Redis, a.Config.Health.Timeout)
	return handler.NewRouter(bnpl, health, a.Metrics.Handler(), a.Logger)
}

// Close releases connections in reverse order of acquisition.
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

func (a *App) initRepository(ctx context.Context) (repository.ApplicationRepository, error) {
	cfg := a.Config.Database
	if cfg.Driver == "memory" {
		a.Logger.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	db, err := repository.Connect(cfg.Driver, cfg.DSN(), repository.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	a.Logger.Info("database connected", zap.String("driver", cfg.Driver))
	return repository.NewApplicationRepository(db), nil
}

func (a *App) initScoreCache(ctx context.Context) (creditscore.ScoreCache, error) {
	ttl := a.Config.Cache.CreditScoreTTL
	if a.Config.Cache.Driver != "redis" {
		c := creditscore.NewMemoryCache(ttl)
		a.closers = append(a.closers, func() error {
			c.Close()
			return nil
		})
		return c, nil
	}

	r := a.Config.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     r.Host + ":" + r.Port,
		Password: r.Password,
		DB:       r.DB,
	})
	a.closers = append(a.closers, client.Close)

	// An unreachable redis only degrades caching; lookups treat errors as misses.
	if err := client.Ping(ctx).Err(); err != nil {
		a.Logger.Warn("redis unreachable at startup", zap.String("addr", client.Options().Addr), zap.Error(err))
	}
	a.Redis = client
	return creditscore.NewRedisCache(client, ttl), nil
}
