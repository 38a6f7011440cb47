package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/decorluxe/backend-blinds/internal/config"
	"github.com/decorluxe/backend-blinds/internal/obs"
	"github.com/decorluxe/backend-blinds/internal/redemption"
	"github.com/decorluxe/backend-blinds/internal/repo"
)

const (
	taskReservationSweep = "redemption:sweep"
	taskUsageDriftScan   = "redemption:usage_drift_scan"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	promotions := repo.PromotionsRepo{Q: pool}
	ledger := redemption.Ledger{
		R:           redisClient,
		Store:       promotions,
		KeyPrefix:   cfg.RedemptionKeyPrefix,
		TTL:         cfg.ReservationTTL,
		MaxRetries:  cfg.RedemptionMaxRetries,
		RetryBase:   cfg.RetryBase,
		RetryJitter: cfg.RetryJitterPercent,
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri for task queue")
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskReservationSweep, func(taskCtx context.Context, _ *asynq.Task) error {
		sourceIDs, err := promotions.ActiveCouponIDs(taskCtx)
		if err != nil {
			logger.Error().Err(err).Msg("list active coupon sources")
			return err
		}
		removed, err := ledger.Sweep(taskCtx, sourceIDs)
		if err != nil {
			logger.Error().Err(err).Msg("sweep expired reservations")
			return err
		}
		if removed > 0 {
			logger.Info().Int64("removed", removed).Int("sources", len(sourceIDs)).Msg("swept expired reservations")
		}
		return nil
	})
	// The redis committed mirror is synced upward from the durable counter on
	// every reservation; a mirror running ahead means a settlement bumped
	// redis but the usage row write was lost.
	mux.HandleFunc(taskUsageDriftScan, func(taskCtx context.Context, _ *asynq.Task) error {
		sourceIDs, err := promotions.ActiveCouponIDs(taskCtx)
		if err != nil {
			return err
		}
		for _, id := range sourceIDs {
			mirrored, err := ledger.CommittedCount(taskCtx, id)
			if err != nil {
				logger.Error().Err(err).Stringer("source_id", id).Msg("read committed mirror")
				continue
			}
			if mirrored == 0 {
				continue
			}
			durable, err := promotions.UsageCount(taskCtx, id)
			if err != nil {
				logger.Error().Err(err).Stringer("source_id", id).Msg("read usage count")
				continue
			}
			if mirrored != int64(durable) {
				logger.Warn().Stringer("source_id", id).
					Int64("mirrored", mirrored).Int32("durable", durable).
					Msg("committed mirror drifted from persisted usage")
			}
		}
		return nil
	})

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Logger:      asynqLogger{logger},
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: asynqLogger{logger}})
	if _, err := scheduler.Register(fmt.Sprintf("@every %s", cfg.SweepInterval), asynq.NewTask(taskReservationSweep, nil)); err != nil {
		logger.Fatal().Err(err).Msg("register sweep schedule")
	}
	if _, err := scheduler.Register(fmt.Sprintf("@every %s", cfg.SettleRetryInterval), asynq.NewTask(taskUsageDriftScan, nil)); err != nil {
		logger.Fatal().Err(err).Msg("register usage drift schedule")
	}

	errs := make(chan error, 2)
	go func() {
		errs <- srv.Run(mux)
	}()
	go func() {
		errs <- scheduler.Run()
	}()

	logger.Info().Dur("sweep_interval", cfg.SweepInterval).Msg("worker starting")
	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil {
			logger.Error().Err(err).Msg("worker stopped with error")
		}
	}
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
