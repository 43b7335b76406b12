package server

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/blockgate/engine/admission"
	"github.com/compozy/blockgate/engine/block/builtin"
	"github.com/compozy/blockgate/engine/execution"
	"github.com/compozy/blockgate/engine/infra/cache"
	"github.com/compozy/blockgate/engine/infra/monitoring"
	"github.com/compozy/blockgate/engine/infra/postgres"
	"github.com/compozy/blockgate/engine/infra/server/appstate"
	"github.com/compozy/blockgate/engine/ratelimit"
	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/compozy/blockgate/engine/userlink"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const seedWorkers = 4

func (s *Server) setupDependencies(ctx context.Context) (*appstate.State, error) {
	s.setupMonitoring(ctx)
	store, err := s.setupStore(ctx)
	if err != nil {
		return nil, err
	}
	rds, err := s.setupRedis(ctx)
	if err != nil {
		return nil, err
	}
	state, err := appstate.NewState(appstate.Infra{Store: store, Redis: rds}, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create app state: %w", err)
	}
	if err := s.setupGateway(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Server) setupMonitoring(ctx context.Context) {
	log := logger.FromContext(ctx)
	svc := monitoring.NewMonitoringServiceWithFallback(ctx, monitoring.FromAppConfig(&s.cfg.Monitoring))
	svc.SetAsGlobal()
	s.monitoring = svc
	meter := svc.Meter()
	if err := ratelimit.InitMetrics(meter); err != nil {
		log.Error("Failed to initialize rate limit metrics", "error", err)
	}
	if err := execution.InitMetrics(meter); err != nil {
		log.Error("Failed to initialize execution metrics", "error", err)
	}
	s.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), monitoringShutdownBudget)
		defer cancel()
		if err := svc.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown monitoring service", "error", err)
		}
	})
}

func (s *Server) setupStore(ctx context.Context) (*postgres.Store, error) {
	log := logger.FromContext(ctx)
	pgCfg := postgres.ConfigFromApp(&s.cfg.Database)
	if s.cfg.Database.AutoMigrate {
		start := time.Now()
		if err := postgres.ApplyMigrationsWithLock(ctx, pgCfg.DSN()); err != nil {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		log.Info("Database migrations applied", "duration", time.Since(start))
	}
	store, err := postgres.NewStore(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	s.addCleanup(func() { store.Close(context.WithoutCancel(ctx)) })
	return store, nil
}

// setupRedis returns nil when redis is not configured.
func (s *Server) setupRedis(ctx context.Context) (*cache.Redis, error) {
	rc := cache.FromAppConfig(&s.cfg.Redis)
	if rc == nil {
		logger.FromContext(ctx).Info("Redis not configured; rate limit buckets are kept in memory")
		return nil, nil
	}
	rds, err := cache.NewRedis(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.addCleanup(func() { _ = rds.Close() })
	return rds, nil
}

func (s *Server) setupGateway(ctx context.Context, state *appstate.State) error {
	cfg := s.cfg
	pool := state.Store.Pool()
	var client redis.UniversalClient
	if state.Redis != nil {
		client = state.Redis.Client()
	}
	limiterStore, err := ratelimit.NewStore(client, cfg.RateLimit.Prefix, cfg.RateLimit.MaxRetry)
	if err != nil {
		return err
	}
	checker, err := ratelimit.NewChecker(limiterStore, &cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("failed to create rate limit checker: %w", err)
	}
	auth := servicekey.NewAuthenticator(
		postgres.NewServiceKeyRepo(pool),
		cfg.Gateway.CallerService,
		cfg.Gateway.KeyPrefix,
		cfg.Gateway.LastUsedWorkers,
	)
	state.Admission = admission.New(auth, reqctx.NewBuilder(cfg.Gateway.IPAllowlist), checker)

	catalog, registry, err := builtin.Load(builtin.Deps{Config: cfg.Blocks})
	if err != nil {
		return fmt.Errorf("failed to load block catalog: %w", err)
	}
	state.Catalog = catalog

	credits, err := decimal.NewFromString(cfg.Provisioning.DefaultCredits)
	if err != nil {
		return fmt.Errorf("invalid provisioning.default_credits %q: %w", cfg.Provisioning.DefaultCredits, err)
	}
	users := postgres.NewUserLinkRepo(pool)
	state.Users = users
	state.Seeder = userlink.NewSeeder(users, cfg.Provisioning.SeedTimeout, seedWorkers)
	state.Settings = userlink.Settings{Credits: credits, WorkflowName: cfg.Provisioning.StarterWorkflowName}

	records := postgres.NewExecutionRepo(pool)
	state.Executions = execution.NewService(catalog, registry, records, users, cfg.Gateway.CallerService, &cfg.Execution)
	s.addCleanup(func() {
		auth.Wait()
		state.Seeder.Wait()
		state.Executions.Wait()
	})
	return s.setupReaper(ctx, records)
}

func (s *Server) setupReaper(ctx context.Context, records execution.Repository) error {
	rc := s.cfg.Execution.Reaper
	if !rc.Enabled {
		return nil
	}
	reaper, err := execution.NewReaper(records, &rc)
	if err != nil {
		return fmt.Errorf("failed to create execution reaper: %w", err)
	}
	reaper.Start(ctx)
	s.addCleanup(reaper.Stop)
	return nil
}
