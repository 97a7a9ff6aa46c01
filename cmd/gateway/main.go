package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"docchat/gateway/internal/cache"
	"docchat/gateway/internal/config"
	"docchat/gateway/internal/database"
	"docchat/gateway/internal/handlers"
	"docchat/gateway/internal/jobs"
	"docchat/gateway/internal/log"
	"docchat/gateway/internal/middleware"
	"docchat/gateway/internal/queue"
	"docchat/gateway/internal/repository"
	"docchat/gateway/internal/server"
	"docchat/gateway/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	backend := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	deps := handlers.Dependencies{Upstream: backend}

	var dbPool *pgxpool.Pool
	var pruner jobs.Pruner
	if cfg.Postgres.DSN != "" {
		dbPool, err = database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect postgres")
		}
		if err := database.Migrate(ctx, dbPool); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate audit schema")
		}
		deps.Database = dbPool
		events := repository.NewEventRepository(dbPool)
		deps.Events = events
		pruner = events
	} else {
		logger.Info().Msg("postgres dsn empty, audit trail disabled")
	}

	var producer *queue.Producer
	redisClient := connectRedis(ctx, cfg.Redis, logger)
	if redisClient != nil {
		producer = queue.NewProducer(redisClient, cfg.Queue.Stream, cfg.Queue.MaxLen)
		deps.Cache = redisClient
		deps.Retry = producer
		deps.Limiter = middleware.NewRedisCounter(redisClient)
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, deps)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	var trimmer jobs.Trimmer
	if producer != nil {
		trimmer = producer
	}
	scheduler := jobs.NewScheduler(cfg.Jobs, backend, trimmer, pruner, redisClient, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

// connectRedis returns nil when Redis is disabled or unreachable. The relay
// runs without logout retries, rate limiting and the health cache then.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) *redis.Client {
	if !cfg.Enabled {
		logger.Info().Msg("redis disabled, logout retries and rate limiting off")
		return nil
	}

	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable, logout retries and rate limiting off")
		return nil
	}
	return client
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduled jobs still running at exit")
	}

	if db != nil {
		db.Close()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
