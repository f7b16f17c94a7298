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

	"github.com/cswank/store/internal/checkout"
	"github.com/cswank/store/internal/config"
	"github.com/cswank/store/internal/event"
	"github.com/cswank/store/internal/fragment"
	handler "github.com/cswank/store/internal/handler/http"
	"github.com/cswank/store/internal/provider"
	"github.com/cswank/store/internal/repository"
	"github.com/cswank/store/internal/repository/memory"
	"github.com/cswank/store/internal/repository/postgres"
	redisrepo "github.com/cswank/store/internal/repository/redis"
	"github.com/cswank/store/internal/service"
	"github.com/cswank/store/migrations"
	"github.com/cswank/store/pkg/database"
	"github.com/cswank/store/pkg/health"
	"github.com/cswank/store/pkg/httpclient"
	pkgkafka "github.com/cswank/store/pkg/kafka"
	"github.com/cswank/store/pkg/tracing"
)

const serviceName = "storefront"

// App wires together all dependencies and runs the storefront cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	cartService    *service.CartService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.closeClients()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler(2 * time.Second)

	// Cart store.
	var store repository.CartStore
	switch cfg.StoreBackend {
	case config.BackendRedis:
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPass
		redisCfg.DB = cfg.RedisDB

		rdb, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		store = redisrepo.NewCartRepository(rdb, cfg.CartTTLDuration(), logger)
		healthHandler.Register("redis", database.RedisChecker(rdb))
	default:
		logger.Warn("using in-memory cart store; carts are lost on restart")
		store = memory.NewCartRepository(logger)
	}

	// Line-item catalog.
	var catalog repository.CatalogRepository
	switch cfg.CatalogBackend {
	case config.BackendPostgres:
		pgCfg := database.PostgresConfig{
			Host:            cfg.PostgresHost,
			Port:            cfg.PostgresPort,
			User:            cfg.PostgresUser,
			Password:        cfg.PostgresPass,
			DBName:          cfg.PostgresDB,
			SSLMode:         cfg.PostgresSSL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		}
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := prometheus.Register(database.NewPoolStatsCollector(pool, serviceName)); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
		}
		catalog = postgres.NewCatalogRepository(pool)
		healthHandler.Register("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	default:
		catalog = memory.NewCatalogRepository(memory.SampleCatalog()...)
	}

	// Kafka producer. Without brokers cart events are dropped.
	var events event.Publisher = event.Discard{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
		a.producer = pkgkafka.NewProducer(kafkaCfg, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		events = event.NewProducer(a.producer, logger)
		healthHandler.Register("kafka", a.producer.Ping)
	} else {
		logger.Warn("KAFKA_BROKERS not set; cart events are disabled")
	}

	// Upstream clients, one breaker per upstream.
	providerURL, adminURL := cfg.ProviderBaseURL, cfg.AdminAPIBaseURL
	var fake *provider.Fake
	if cfg.ProviderFake {
		self := fmt.Sprintf("http://localhost:%d%s", cfg.HTTPPort, handler.FakeProviderPath)
		fake = provider.NewFake(self, cfg.ProviderToken)
		for _, item := range memory.SampleCatalog() {
			fake.AddProduct(provider.Product{
				ID:          provider.ID(item.ID),
				Title:       item.Title,
				ProductType: item.Category,
				Variants:    []provider.Variant{{ID: provider.ID(item.ID), Title: item.Title, Price: item.Price}},
			})
		}
		providerURL = self
		if adminURL == "" {
			adminURL = self
		}
		logger.Warn("using the fake commerce provider", slog.String("base_url", self))
	}

	var fragments fragment.Source
	renderer := fragment.NewRenderer(catalog)
	fragments = renderer
	if cfg.FragmentBaseURL != "" {
		fragments = fragment.NewClient(cfg.FragmentBaseURL, a.breaker("fragment"))
	}

	var admin *httpclient.BreakerClient
	if adminURL != "" {
		admin = a.breaker("admin-api")
	}

	fixedPrice, err := cfg.FixedPrice()
	if err != nil {
		return err
	}
	if fixedPrice != nil {
		logger.Warn("LEGACY_FIXED_PRICE is deprecated; store per-item prices instead")
	}

	a.cartService = service.NewCartService(service.Deps{
		Store:     store,
		Fragments: fragments,
		Renderer:  renderer,
		Provider:  provider.NewHTTPProvider(providerURL, cfg.ProviderToken, a.breaker("commerce-provider")),
		Products:  checkout.NewCache(checkout.DefaultCacheTTL),
		Admin:     admin,
		Events:    events,
	}, service.Config{
		Slot:                cfg.CartSlot,
		SaveMode:            repository.SaveMode(cfg.SaveMode),
		DiscountCode:        cfg.DiscountCode,
		FixedPrice:          fixedPrice,
		ReturnURL:           cfg.ReturnURL,
		FragmentConcurrency: cfg.FragmentConcurrency,
		ProviderConcurrency: cfg.ProviderConcurrency,
		IndicatorRevert:     cfg.IndicatorRevert(),
		AdminURL:            cfg.AdminURL,
		AdminAPIBaseURL:     adminURL,
	}, logger)

	routerCfg := handler.RouterConfig{
		ServiceName:    serviceName,
		SessionTTL:     cfg.CartTTLDuration(),
		RequestTimeout: cfg.RequestTimeout(),
	}
	if fake != nil {
		routerCfg.FakeProvider = fake
	}
	router := handler.NewRouter(a.cartService, healthHandler, logger, routerCfg)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (a *App) breaker(name string) *httpclient.BreakerClient {
	cfg := a.cfg
	client := httpclient.NewBreakerClient(httpclient.New(httpclient.DefaultConfig()), httpclient.BreakerConfig{
		Name:         name,
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}, a.logger)
	a.logger.Info("circuit breaker initialized",
		slog.String("name", name),
		slog.Uint64("max_requests", uint64(cfg.CBMaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
	)
	return client
}

// Handler returns the HTTP handler of the service.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
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

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Cart service (background product pre-warming)
// 3. Tracer (flush pending spans)
// 4. Kafka producer, Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.cartService.Close()

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeClients())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeClients() error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
