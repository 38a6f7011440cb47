package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/decorluxe/backend-blinds/internal/app"
	"github.com/decorluxe/backend-blinds/internal/catalog"
	"github.com/decorluxe/backend-blinds/internal/checkout"
	"github.com/decorluxe/backend-blinds/internal/commission"
	"github.com/decorluxe/backend-blinds/internal/common"
	"github.com/decorluxe/backend-blinds/internal/config"
	"github.com/decorluxe/backend-blinds/internal/discount"
	"github.com/decorluxe/backend-blinds/internal/engine"
	"github.com/decorluxe/backend-blinds/internal/events"
	"github.com/decorluxe/backend-blinds/internal/health"
	"github.com/decorluxe/backend-blinds/internal/lock"
	"github.com/decorluxe/backend-blinds/internal/obs"
	"github.com/decorluxe/backend-blinds/internal/redemption"
	"github.com/decorluxe/backend-blinds/internal/repo"
	"github.com/decorluxe/backend-blinds/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "blinds")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "blinds-pricing-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.RunMigrations {
		m, err := migrate.New(cfg.MigrationsPath, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise migrations")
		}
		if err := app.RunMigrations(m); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "blinds-pricing-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	promotionsRepo := repo.PromotionsRepo{Q: pool}
	catalogService := &catalog.Service{
		Store:       repo.CatalogRepo{Q: pool},
		Cache:       catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		ReadTimeout: cfg.CatalogReadTimeout,
	}

	promoBreaker := resilience.NewBreaker(cfg.CircuitPromoMinReq, cfg.CircuitPromoFailRate, cfg.CircuitPromoOpenFor).
		WithTarget("promotions-store").
		WithLogger(logger)

	bus := &events.Bus{Store: repo.EventsRepo{Q: pool}}

	pricingEngine := &engine.Engine{
		Catalog: catalogService,
		Reader: discount.CatalogReader{
			Store:   promotionsRepo,
			Timeout: cfg.PromoReadTimeout,
			Breaker: promoBreaker,
		},
		Policy: discount.Policy{VendorDiscountCouponStackable: cfg.VendorStackingDefault},
		Redemption: redemption.Ledger{
			R:           redisClient,
			Store:       promotionsRepo,
			KeyPrefix:   cfg.RedemptionKeyPrefix,
			TTL:         cfg.ReservationTTL,
			MaxRetries:  cfg.RedemptionMaxRetries,
			RetryBase:   cfg.RetryBase,
			RetryJitter: cfg.RetryJitterPercent,
		},
		Calculator: commission.Calculator{Profiles: repo.VendorProfilesRepo{Q: pool}},
		Records:    repo.CommissionLedgerRepo{Q: pool},
		Locker:     lock.Locker{R: redisClient, RetryBackoff: cfg.RetryBase, MaxAttempts: cfg.RetryMaxAttempts},
		Bus:        bus,
	}

	checkoutHandler := &checkout.Handler{Engine: pricingEngine, Validate: validator.New(), Currency: cfg.CurrencyCode}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	limiterStore, err := app.NewLimiterStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise limiter store")
	}
	settleLimiter := limiterstdlib.NewMiddleware(limiter.New(limiterStore, limiter.Rate{
		Period: time.Minute,
		Limit:  cfg.SettleRatePerMinute,
	}))

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      health.Pinger{DB: pool, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/v1/checkout", func(v chi.Router) {
		v.Post("/quote", checkoutHandler.Quote)
		v.Group(func(g chi.Router) {
			g.Use(settleLimiter.Handler)
			g.Use(idem.Middleware)
			g.Post("/settle", checkoutHandler.Settle)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-rootCtx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
