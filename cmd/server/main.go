// Package main is the entry point of the result engine API.
//
// The service proxies the examination portal's captcha and login, resolves
// subject credits through a cached catalog and turns raw result rows into a
// processed academic record. Result rows are never stored.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ipu-results/result-engine/config"

	// Domain
	"github.com/ipu-results/result-engine/internal/domain/credit"

	// Application layer
	"github.com/ipu-results/result-engine/internal/application/command"
	"github.com/ipu-results/result-engine/internal/application/query"

	// Infrastructure layer
	"github.com/ipu-results/result-engine/internal/infrastructure/external/portal"
	"github.com/ipu-results/result-engine/internal/infrastructure/metrics"
	"github.com/ipu-results/result-engine/internal/infrastructure/persistence/postgres"
	"github.com/ipu-results/result-engine/internal/infrastructure/persistence/redis"
	"github.com/ipu-results/result-engine/internal/infrastructure/service"

	// Interface layer
	httpserver "github.com/ipu-results/result-engine/internal/interface/http"
	"github.com/ipu-results/result-engine/internal/interface/http/handlers"

	// Packages
	"github.com/ipu-results/result-engine/pkg/circuitbreaker"
	"github.com/ipu-results/result-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// Configuration
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting result engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)
	for _, f := range cfg.Features.GetAllFeatures() {
		log.Info("feature flag",
			logger.String("name", f.Name),
			logger.Bool("enabled", f.Enabled),
			logger.Int("rollout", f.RolloutPercent),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL catalog
	// ─────────────────────────────────────────────────────────────────────────
	var (
		dbConn     *postgres.Connection
		creditRepo *postgres.CreditRepository
	)
	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		dbConn, err = postgres.NewConnection(ctx, postgresConfig(cfg.Database))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if cfg.Database.AutoMigrate {
			applied, err := postgres.NewMigrator(dbConn).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations completed", logger.Count("applied", applied))
		}

		creditRepo = postgres.NewCreditRepository(dbConn, breakerObserver(log))
		log.Info("database connection established")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis credit cache (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache  *redis.Cache
		creditCache *redis.CreditCache
	)
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err = redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, credit caching disabled", logger.Err(err))
		} else {
			defer func() {
				log.Info("closing Redis connection...")
				_ = redisCache.Close()
			}()
			creditCache = redis.NewCreditCache(redisCache, cfg.Credits.CacheHitTTL, cfg.Credits.CacheMissTTL)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Examination portal
	// ─────────────────────────────────────────────────────────────────────────
	portalClient := portal.NewClient(portalConfig(cfg.Portal, log))

	// ─────────────────────────────────────────────────────────────────────────
	// Credit catalog
	// ─────────────────────────────────────────────────────────────────────────
	var sources []service.NamedSource
	for _, name := range cfg.Credits.Sources {
		switch name {
		case config.SourcePostgres:
			if creditRepo != nil {
				sources = append(sources, service.NamedSource{Name: name, Source: creditRepo})
			}
		case config.SourcePortal:
			if cfg.Features.IsEnabled(config.FeatureRemoteCredits, nil) {
				sources = append(sources, service.NamedSource{Name: name, Source: portalClient})
			}
		}
	}
	if len(sources) == 0 {
		return errors.New("no credit source is available")
	}

	var cache service.CreditCache
	if creditCache != nil {
		cache = creditCache
	}
	catalog := service.NewCreditCatalog(cache, log, sources...)
	log.Info("credit catalog ready", logger.Any("sources", catalog.Sources()))

	policy := creditPolicy(cfg)

	// ─────────────────────────────────────────────────────────────────────────
	// Application layer
	// ─────────────────────────────────────────────────────────────────────────
	buildRecord := query.NewBuildRecordHandler(catalog, policy, log)
	lookupCredits := query.NewLookupCreditsHandler(catalog, log)
	calculateCGPA := query.NewCalculateCGPAHandler()
	fetchCaptcha := command.NewFetchCaptchaHandler(portalClient, log)
	login := command.NewLoginHandler(portalClient, buildRecord, log)

	var catalogAdmin httpserver.CatalogWriter
	if creditRepo != nil && cfg.Features.IsEnabled(config.FeatureCatalogAdmin, nil) {
		var invalidator service.CacheInvalidator
		if creditCache != nil {
			invalidator = creditCache
		}
		catalogAdmin = service.NewCatalogAdmin(creditRepo, invalidator, log)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Health checks
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if dbConn != nil {
		health.AddCheck("postgres", handlers.NewPingCheck(dbConn))
	}
	if redisCache != nil {
		health.AddCheck("redis", handlers.NewPingCheck(redisCache))
	}
	health.AddOptionalCheck("portal", handlers.NewPingCheck(portalClient))

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	httpServer := httpserver.NewServer(serverConfig(cfg), httpserver.Dependencies{
		FetchCaptcha:  fetchCaptcha,
		Login:         login,
		BuildRecord:   buildRecord,
		LookupCredits: lookupCredits,
		CalculateCGPA: calculateCGPA,
		Catalog:       catalogAdmin,
		Logger:        log,
		HealthChecker: health,
	})

	errCh := httpServer.StartAsync()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("service error", logger.Err(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *slog.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}
	if cfg.Observability.LogFormat == "text" {
		opts.Format = logger.FormatText
	}

	log := logger.New(opts).With(logger.String("service", cfg.App.Name))
	slog.SetDefault(log)
	return log
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig(c.URL)
	pc.MaxConns = int32(c.MaxConns)
	pc.MinConns = int32(c.MinConns)
	pc.MaxConnLifetime = c.ConnMaxLifetime
	pc.MaxConnIdleTime = c.ConnMaxIdleTime
	pc.ConnectTimeout = c.ConnectTimeout
	return pc
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig(c.URL)
	rc.KeyPrefix = c.KeyPrefix
	rc.PoolSize = c.PoolSize
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

func portalConfig(c config.PortalConfig, log *slog.Logger) portal.ClientConfig {
	pc := portal.DefaultClientConfig(c.BaseURL)
	pc.LoginPagePath = c.LoginPagePath
	pc.CaptchaPath = c.CaptchaPath
	pc.LoginPath = c.LoginPath
	pc.CreditsPath = c.CreditsPath
	pc.Timeout = c.Timeout
	pc.UserAgent = c.UserAgent
	pc.RateLimiterConfig = portal.RateLimiterConfig{
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		MaxWait:           c.MaxWait,
	}
	pc.BreakerThreshold = c.BreakerThreshold
	pc.BreakerCoolDown = c.BreakerCoolDown
	pc.Logger = log
	return pc
}

func serverConfig(cfg *config.Config) httpserver.Config {
	sc := httpserver.DefaultConfig()
	sc.Host = cfg.HTTP.Host
	sc.Port = cfg.HTTP.Port
	sc.ReadTimeout = cfg.HTTP.ReadTimeout
	sc.WriteTimeout = cfg.HTTP.WriteTimeout
	sc.IdleTimeout = cfg.HTTP.IdleTimeout
	sc.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	sc.AllowedOrigins = cfg.HTTP.AllowedOrigins
	sc.EnableMetrics = cfg.Observability.MetricsEnabled
	sc.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	sc.SecureCookies = cfg.HTTP.SecureCookies
	sc.SessionMaxAge = cfg.HTTP.SessionMaxAge
	sc.RecordOnLogin = cfg.Features.IsEnabled(config.FeatureRecordOnLogin, nil)
	sc.APIKeyHeader = cfg.HTTP.APIKeyHeader
	sc.AdminKeyHash = cfg.HTTP.AdminKeyHash
	sc.Version = cfg.App.Version
	return sc
}

// creditPolicy decides which programmes get the uniform fallback credit.
func creditPolicy(cfg *config.Config) credit.Policy {
	if !cfg.Features.IsEnabled(config.FeatureFallbackCredits, nil) {
		return credit.DisabledPolicy()
	}
	extra := make([]credit.Branch, 0, len(cfg.Credits.ExtraBranches))
	for _, b := range cfg.Credits.ExtraBranches {
		extra = append(extra, credit.Branch(b))
	}
	return credit.DefaultPolicy().WithBranches(extra...)
}

// breakerObserver publishes catalog store breaker transitions.
func breakerObserver(log *slog.Logger) func(name string, from, to circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		metrics.SetCircuitState(name, int(to))
		log.Warn("circuit state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
}
