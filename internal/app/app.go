package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefront/catalog/internal/auth"
	"github.com/storefront/catalog/internal/config"
	"github.com/storefront/catalog/internal/event"
	handler "github.com/storefront/catalog/internal/handler/http"
	"github.com/storefront/catalog/internal/lock"
	"github.com/storefront/catalog/internal/service"
	"github.com/storefront/catalog/pkg/database"
	"github.com/storefront/catalog/pkg/health"
	pkgkafka "github.com/storefront/catalog/pkg/kafka"
	"github.com/storefront/catalog/pkg/middleware"
	"github.com/storefront/catalog/pkg/tracing"
)

const serviceName = "catalog-service"

// App wires together all dependencies and runs the catalog service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	closeStore     func()
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	rateLimiter    *middleware.RateLimiter
	shutdownTracer func(context.Context) error
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.shutdownTracer = shutdownTracer

	database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)

	store, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.closeStore = closeStore

	healthHandler := health.NewHandler(5 * time.Second)
	healthHandler.Register("store", store.Ping)

	// Review locking.
	var locker lock.Locker
	switch cfg.LockDriver {
	case config.LockRedis:
		rcfg := cfg.Redis()
		rdb, err := database.NewRedisClient(ctx, rcfg)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis",
			slog.String("addr", rcfg.Addr()),
			slog.Int("db", rcfg.DB),
		)

		lcfg := lock.DefaultRedisConfig()
		lcfg.TTL = cfg.LockTTL()
		locker = lock.NewRedisLocker(rdb, lcfg, logger)
		healthHandler.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	default:
		locker = lock.NewMemoryLocker()
	}

	// Domain events.
	var publisher pkgkafka.Publisher = pkgkafka.NopPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = pkgkafka.NewBreakerPublisher(a.producer, pkgkafka.DefaultBreakerConfig("catalog-kafka"), logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	catalog := service.NewCatalogService(
		store,
		locker,
		event.NewProducer(publisher, logger),
		logger,
		service.Options{ReviewMaxAttempts: cfg.ReviewMaxAttempts},
	)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty; authenticated routes accept tokens signed with an empty key",
			"store_driver", cfg.StoreDriver,
			"auth_insecure_dev", cfg.AuthInsecureDev,
		)
	}
	a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)

	router := handler.NewRouter(handler.RouterConfig{
		Catalog:     catalog,
		Health:      healthHandler,
		Logger:      logger,
		Tokens:      auth.NewValidator(cfg.JWTSecret).Validate,
		CookieName:  cfg.AuthCookieName,
		RateLimiter: a.rateLimiter,
		CORSOrigins: cfg.CORSAllowedOrigins,
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
		StaticDir:   cfg.StaticDir,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return nil
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
		a.release()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.release()
	a.logger.Info("application shutdown complete")
	return nil
}

// release closes every dependency that was opened, in reverse order.
func (a *App) release() {
	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.closeStore != nil {
		a.closeStore()
	}
	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracer(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}
}
