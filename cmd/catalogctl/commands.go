package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipu-results/result-engine/config"
	"github.com/ipu-results/result-engine/internal/infrastructure/persistence/postgres"
	"github.com/ipu-results/result-engine/internal/infrastructure/persistence/redis"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROOT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	envFile     string
	databaseURL string
	redisURL    string
	timeout     time.Duration
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Manage the subject credit catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file to load before reading the environment")
	flags.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	flags.StringVar(&opts.redisURL, "redis-url", "", "Redis URL for cache invalidation (overrides REDIS_URL)")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline for the command")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newMigrateCmd(opts),
		newImportCmd(opts),
		newListCmd(opts),
		newProcessCmd(opts),
	)
	return root
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED PLUMBING
// ══════════════════════════════════════════════════════════════════════════════

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, o.timeout)
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return logger.New(logger.Options{Output: w, Level: level, Format: logger.FormatText})
}

// endpoints resolves the database and Redis URLs. An explicit --database-url
// skips the environment entirely; Redis is then used only with --redis-url.
func (o *rootOptions) endpoints() (dbURL, redisURL string, err error) {
	if o.databaseURL != "" {
		return o.databaseURL, o.redisURL, nil
	}

	var files []string
	if o.envFile != "" {
		files = append(files, o.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return "", "", err
	}
	if cfg.Database.URL == "" {
		return "", "", errors.New("no database configured: set DATABASE_URL or pass --database-url")
	}

	redisURL = o.redisURL
	if redisURL == "" && !cfg.Redis.Disabled {
		redisURL = cfg.Redis.URL
	}
	return cfg.Database.URL, redisURL, nil
}

// openStore connects to the catalog database. The caller closes the connection.
func (o *rootOptions) openStore(ctx context.Context) (*postgres.Connection, string, error) {
	dbURL, redisURL, err := o.endpoints()
	if err != nil {
		return nil, "", err
	}
	conn, err := postgres.NewConnection(ctx, postgres.DefaultConfig(dbURL))
	if err != nil {
		return nil, "", fmt.Errorf("connect to database: %w", err)
	}
	return conn, redisURL, nil
}

// openCreditCache connects to Redis for invalidation. A missing URL or an
// unreachable server yields nil; the cached entries then expire on their own.
func openCreditCache(ctx context.Context, url string, log *slog.Logger) (*redis.CreditCache, func()) {
	if url == "" {
		return nil, func() {}
	}
	cache, err := redis.NewCache(ctx, redis.DefaultConfig(url))
	if err != nil {
		log.Warn("redis unavailable, cached credits will expire on their own", logger.Err(err))
		return nil, func() {}
	}
	return redis.NewCreditCache(cache, redis.TTLCreditHit, redis.TTLCreditMiss), func() { _ = cache.Close() }
}
