package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/catalogue-search/internal/config"
	"github.com/utafrali/catalogue-search/internal/engine"
	"github.com/utafrali/catalogue-search/internal/event"
	handler "github.com/utafrali/catalogue-search/internal/handler/http"
	"github.com/utafrali/catalogue-search/internal/lock"
	"github.com/utafrali/catalogue-search/internal/repository"
	memrepo "github.com/utafrali/catalogue-search/internal/repository/memory"
	"github.com/utafrali/catalogue-search/internal/repository/postgres"
	"github.com/utafrali/catalogue-search/internal/repository/postgres/migrations"
	"github.com/utafrali/catalogue-search/internal/service"
	"github.com/utafrali/catalogue-search/internal/source"
	"github.com/utafrali/catalogue-search/pkg/database"
	"github.com/utafrali/catalogue-search/pkg/health"
	"github.com/utafrali/catalogue-search/pkg/httpclient"
	pkgkafka "github.com/utafrali/catalogue-search/pkg/kafka"
	"github.com/utafrali/catalogue-search/pkg/middleware"
	"github.com/utafrali/catalogue-search/pkg/tracing"
)

// ServiceName identifies this service in logs, metrics and traces.
const ServiceName = "catalogue-search"

// idempotencyTTL bounds how long consumed event ids are remembered.
const idempotencyTTL = 24 * time.Hour

// App wires together all dependencies and runs the catalogue search service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	engine   engine.IndexEngine
	indexer  *service.Indexer
	search   *service.SearchService
	runs     repository.RunRepository
	health   *health.Handler
	pool     *pgxpool.Pool
	redis    *redis.Client
	producer *pkgkafka.Producer
	dlq      *pkgkafka.DLQProducer
	consumer *pkgkafka.Consumer

	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// Optional backends (Redis, Postgres, Kafka) fall back to in-process
// implementations when disabled.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger, health: health.NewHandler()}
	if err := a.init(ctx); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TracingSampleRate,
		Insecure:       !cfg.IsProduction(),
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Index engine.
	a.engine, err = newEngine(cfg, logger)
	if err != nil {
		return err
	}
	a.health.Register("engine", a.engine.Ping)

	// Reindex lock.
	var locker lock.Locker = lock.NewLocal()
	var idempotency pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
	if cfg.RedisEnabled {
		a.redis, err = database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		locker = lock.NewRedis(a.redis, logger)
		idempotency = pkgkafka.NewRedisIdempotencyStore(a.redis, idempotencyTTL)
		a.health.RegisterNonCritical("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
		logger.Info("connected to Redis", slog.String("addr", fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)))
	}

	// Run history.
	a.runs = memrepo.NewRunRepository()
	if cfg.PostgresEnabled {
		if err := a.initPostgres(ctx); err != nil {
			return err
		}
		a.runs = postgres.NewRunRepository(a.pool)
	}

	// Run events.
	var publisher service.RunPublisher
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		a.health.RegisterNonCritical("kafka", a.producer.Ping)
	}

	// Upstream catalogue.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.CatalogueFetchTimeout
	httpCfg.MaxRetries = 0
	if cfg.CatalogueAPIToken != "" {
		httpCfg.Headers = map[string]string{"Authorization": "Bearer " + cfg.CatalogueAPIToken}
	}
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("catalogue-api"),
		logger,
	)
	src := source.NewCrystallizeSource(client, source.Config{
		BaseURL:   cfg.CatalogueAPIURL,
		TreeDepth: cfg.CatalogueTreeDepth,
	}, logger)

	// Build the service layer.
	var cache *service.ResultCache
	if cfg.SearchCacheSize > 0 {
		cache = service.NewResultCache(cfg.SearchCacheSize)
	}
	a.indexer = service.NewIndexer(src, a.engine, locker, a.runs, publisher, service.IndexerConfig{
		Index:           cfg.Index,
		BatchSize:       cfg.ReindexBatchSize,
		LockTTL:         cfg.ReindexLockTTL,
		DefaultLanguage: cfg.DefaultLanguage,
	}, logger)
	a.indexer.WithCache(cache)
	a.search = service.NewSearchService(a.engine, cfg.Index, logger).WithCache(cache)

	// Kafka consumer for catalogue publications.
	if cfg.KafkaEnabled {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		eventConsumer := event.NewConsumer(a.indexer, logger)
		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    event.TopicCataloguePublished,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
			DLQ:      a.dlq,
		}, pkgkafka.IdempotentHandler(idempotency, eventConsumer.Handle, logger), logger)
		logger.Info("kafka consumer initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", event.TopicCataloguePublished),
		)
	}

	// HTTP router.
	routerCfg := handler.RouterConfig{
		ServiceName:    ServiceName,
		RequestTimeout: cfg.RequestTimeout,
		CORS:           corsConfig(cfg),
	}
	if cfg.PprofEnabled {
		routerCfg.PprofCIDRs = cfg.PprofAllowedCIDRs
	}
	router := handler.NewRouter(a.search, a.indexer, a.runs, a.health, routerCfg, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (a *App) initPostgres(ctx context.Context) error {
	cfg := a.cfg
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL
	pgCfg.MaxConns = cfg.DBMaxConns
	pgCfg.MinConns = cfg.DBMinConns

	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, a.logger)
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	a.health.RegisterNonCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	return nil
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	c.AllowedOrigins = cfg.CORSAllowedOrigins
	c.Environment = cfg.Environment
	return c
}

// Indexer returns the reindex pipeline, for one-shot runs.
func (a *App) Indexer() *service.Indexer {
	return a.indexer
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and the Kafka consumer, blocking until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("engine", a.cfg.SearchEngine),
			slog.String("index", a.cfg.Index),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components:
// 1. HTTP server
// 2. Kafka consumer, DLQ and producer
// 3. tracer
// 4. Redis, PostgreSQL and the index engine
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.close(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// Close releases every backend without touching the HTTP server.
func (a *App) Close() error {
	return a.close()
}

func (a *App) close() error {
	var errs []error
	closeErr := func(name string, err error) {
		if err != nil {
			a.logger.Error(name+" close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		closeErr("kafka consumer", a.consumer.Close())
	}
	if a.dlq != nil {
		closeErr("kafka dlq producer", a.dlq.Close())
	}
	if a.producer != nil {
		closeErr("kafka producer", a.producer.Close())
	}

	if a.tracerShutdown != nil {
		tracerCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		closeErr("tracer", a.tracerShutdown(tracerCtx))
		cancel()
	}

	if a.redis != nil {
		closeErr("redis", a.redis.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if c, ok := a.engine.(interface{ Close() error }); ok {
		closeErr("index engine", c.Close())
	}
	return errors.Join(errs...)
}
