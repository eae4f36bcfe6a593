package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
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
	transport "quizhub-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	// Without postgres the server runs on the in-memory store; without redis
	// the cache is in-process. Both are demo fallbacks, not production modes.
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
		log.Warn("postgres not configured, using in-memory store")
	}

	var cache app.Cache
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = infraredis.NewCache(client)
	} else {
		cache = memory.NewCache()
		log.Warn("redis not configured, using in-memory cache")
	}

	questionTTL := config.TTLDuration(cfg.Cache.QuestionTTL, 10*time.Minute)
	statsTTL := config.TTLDuration(cfg.Cache.StatsTTL, time.Minute)

	feed := app.NewStatsFeed()
	stats := app.NewStatsService(statsReader, cache, feed, statsTTL, log)
	memberships := app.NewMembershipService(store, log)
	catalog := app.NewCatalogService(store, cache, memberships, log)
	attempts := app.NewAttemptService(store, cache, stats, memberships, questionTTL, log)

	reaper := app.NewReaper(attempts, config.TTLDuration(cfg.Reaper.Interval, time.Minute), cfg.Reaper.Batch, log)
	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go reaper.Run(reaperCtx)

	handler := transport.NewHandler(memberships, catalog, attempts, stats, cfg.Auth.JWTSecret, log)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
