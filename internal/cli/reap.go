package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizhub-service/internal/app"
	"quizhub-service/internal/config"
	"quizhub-service/internal/infra/memory"
	"quizhub-service/internal/infra/postgres"
	infraredis "quizhub-service/internal/infra/redis"
)

// NewReapCmd runs a single expiry sweep and exits, for cron-style deployments
// that prefer an external scheduler over the in-process reaper.
func NewReapCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Close expired in-progress attempts once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReap(cmd.Context(), *configPath)
		},
	}
}

func runReap(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var store app.Store
	var statsReader app.StatsReader
	if cfg.Postgres.URL != "" {
		db := postgres.NewDB(cfg.Postgres.URL)
		defer db.Close()
		store = postgres.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		statsReader = postgres.NewStatsReader(pool)
	} else {
		memStore := memory.NewStore()
		store = memStore
		statsReader = memStore
	}

	// The sweep invalidates stats caches as it closes attempts, so it needs
	// the shared cache when one is configured.
	var cache app.Cache = memory.NewCache()
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = infraredis.NewCache(client)
	}
	statsTTL := config.TTLDuration(cfg.Cache.StatsTTL, time.Minute)
	stats := app.NewStatsService(statsReader, cache, app.NewStatsFeed(), statsTTL, log)
	memberships := app.NewMembershipService(store, log)
	attempts := app.NewAttemptService(store, cache, stats, memberships, time.Minute, log)

	reaper := app.NewReaper(attempts, time.Minute, cfg.Reaper.Batch, log)
	closed := reaper.Sweep(ctx)
	log.Info("sweep finished", zap.Int("closed", closed))
	return nil
}
