// Package app assembles the engine's services from configuration and runs
// the HTTP server with its background workers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"dailyalchemy/internal/config"
	"dailyalchemy/internal/database"
	"dailyalchemy/internal/handlers"
	"dailyalchemy/internal/lease"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/oracle"
	"dailyalchemy/internal/planner"
	"dailyalchemy/internal/repository"
	"dailyalchemy/internal/security"
	"dailyalchemy/internal/service"
)

const (
	shutdownTimeout        = 15 * time.Second
	rateLimitCleanupPeriod = time.Minute
)

// App owns every long-lived dependency of the engine.
type App struct {
	Config *config.Config
	Log    *logger.Logger
	DB     *database.DB

	Oracle   *oracle.Adapter
	Combine  *service.CombineService
	Paths    *service.PathService
	Puzzles  *service.PuzzleService
	Sessions *service.SessionService
	Catalog  *service.CatalogService
	Backup   *service.CatalogBackupService

	// Tokens is nil when no JWT secret is configured.
	Tokens  *security.TokenIssuer
	Limiter *security.RateLimiter

	leases          lease.Store
	closeLeases     func() error
	shutdownTracing func(context.Context) error
}

// New opens the database, applies migrations and builds all services.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		Config:          cfg,
		Log:             log,
		closeLeases:     func() error { return nil },
		shutdownTracing: func(context.Context) error { return nil },
	}

	db, err := database.InitializeWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	log.Info("Database connection established", "type", cfg.DatabaseType)

	if err := db.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("Migrations completed successfully")

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, log := a.Config, a.Log

	shutdown, err := setupTracing(cfg.TraceExporter, log)
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown

	if cfg.RedisAddr != "" {
		store, err := lease.NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.leases = store
		a.closeLeases = store.Close
		log.Info("Using redis lease store", "addr", cfg.RedisAddr)
	} else {
		a.leases = lease.NewMemoryStore(nil)
		log.Warn("REDIS_ADDR not set, using in-process leases (single instance only)")
	}

	var provider oracle.Provider
	if cfg.Oracle.APIKey != "" {
		p, err := oracle.NewOpenAIProvider(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.Model)
		if err != nil {
			return fmt.Errorf("failed to create oracle provider: %w", err)
		}
		provider = p
	} else {
		log.Warn("ORACLE_API_KEY not set, new combinations will fail with OracleUnavailable")
	}
	policy := oracle.DefaultPolicy()
	policy.Timeout = cfg.Oracle.Timeout
	policy.MaxRetries = cfg.Oracle.MaxRetries
	policy.RPS = cfg.Oracle.RPS
	a.Oracle = oracle.NewAdapter(provider, policy, log)

	terms, err := repository.NewBlockedTermRepository(a.DB).List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load blocked terms: %w", err)
	}
	a.Oracle.SetBlockedTerms(terms)

	catalog := repository.NewCombinationRepository(a.DB)
	a.Combine = service.NewCombineService(catalog, a.leases, a.Oracle, service.CombineConfig{
		LeaseTTL:     cfg.LeaseTTL,
		LeaseMaxWait: cfg.LeaseMaxWait,
		LeaseBackoff: cfg.LeaseBackoff,
		ContextSize:  cfg.Oracle.ContextSize,
	}, log)
	a.Paths = service.NewPathService(a.DB, planner.New(a.Oracle, log), log)

	fingerprintSecret := cfg.FingerprintSecret
	if fingerprintSecret == "" {
		fingerprintSecret = cfg.JWTSecret
	}
	a.Puzzles = service.NewPuzzleService(
		repository.NewPuzzleRepository(a.DB),
		catalog,
		security.NewFingerprinter(fingerprintSecret),
		service.PuzzleConfig{
			Epoch:           cfg.PuzzleEpoch,
			Location:        cfg.PuzzleLocation,
			ArchiveFreeDays: cfg.ArchiveFreeDays,
		},
		log,
	)
	a.Sessions = service.NewSessionService(
		repository.NewSessionRepository(a.DB),
		repository.NewStatsRepository(a.DB),
		a.Puzzles,
		a.Combine,
		service.SessionConfig{DailyTimeLimit: cfg.DailyTimeLimit},
		log,
	)

	notifier, err := service.NewAuditNotifier(ctx, cfg.AWSRegion, cfg.AuditFromEmail, cfg.AuditToEmail, log)
	if err != nil {
		return fmt.Errorf("failed to create audit notifier: %w", err)
	}
	a.Catalog = service.NewCatalogService(a.DB, notifier, log)
	a.Backup = service.NewCatalogBackupService(a.DB, log)

	if cfg.JWTSecret != "" {
		if a.Tokens, err = security.NewTokenIssuer(cfg.JWTSecret); err != nil {
			return err
		}
	}
	if cfg.RateLimitRPS > 0 {
		a.Limiter = security.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return nil
}

// Handler builds the HTTP router over the app's services.
func (a *App) Handler() http.Handler {
	return handlers.NewRouter(handlers.Handlers{
		Combine: handlers.NewCombineHandler(a.Combine, a.Log),
		Paths:   handlers.NewPathHandler(a.Paths, a.Log),
		Puzzles: handlers.NewPuzzleHandler(a.Puzzles, a.Log),
		Session: handlers.NewSessionHandler(a.Sessions, a.Log),
		Catalog: handlers.NewCatalogHandler(a.Catalog, a.Backup, a.Log),
		Health:  handlers.NewHealthHandler(a.DB, a.Log),
	}, handlers.NewMiddleware(a.Tokens, a.Limiter, a.Log))
}

// Run serves HTTP and runs the session sweeper until ctx is cancelled, then
// shuts everything down gracefully.
func (a *App) Run(ctx context.Context) error {
	if a.Tokens == nil {
		return errors.New("JWT_SECRET is required to serve")
	}

	server := &http.Server{
		Addr:         ":" + a.Config.ServerPort,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.Config.Oracle.Timeout + a.Config.LeaseMaxWait + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Log.Info("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.Sessions.RunSweeper(gctx, a.Config.SweepInterval)
	})
	if a.Limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(rateLimitCleanupPeriod)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					a.Limiter.Cleanup()
				}
			}
		})
	}

	err := g.Wait()
	// Let background use-count updates land before the pool closes.
	a.Combine.Wait()
	return err
}

// Close releases the database, lease store and tracer provider.
func (a *App) Close() error {
	var errs []error
	if a.Combine != nil {
		a.Combine.Wait()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, a.shutdownTracing(ctx), a.closeLeases())
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
