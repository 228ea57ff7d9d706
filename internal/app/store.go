package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/storefront/catalog/internal/config"
	"github.com/storefront/catalog/internal/repository"
	"github.com/storefront/catalog/internal/repository/memory"
	mongorepo "github.com/storefront/catalog/internal/repository/mongo"
	"github.com/storefront/catalog/internal/repository/postgres"
	"github.com/storefront/catalog/pkg/database"
)

// OpenStore connects the product store selected by STORE_DRIVER. The returned
// close function releases the underlying connection and is never nil.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		mcfg := cfg.Mongo()
		client, err := database.NewMongoClient(ctx, mcfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongo: %w", err)
		}
		logger.Info("connected to MongoDB",
			slog.String("database", mcfg.Database),
			slog.String("collection", cfg.MongoCollection),
		)

		coll := client.Database(mcfg.Database).Collection(cfg.MongoCollection)
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("mongo disconnect error", slog.String("error", err.Error()))
			}
		}
		return mongorepo.NewProductRepository(coll), closeFn, nil

	case config.StorePostgres:
		pgCfg := cfg.Postgres()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", pgCfg.Host),
			slog.String("database", pgCfg.DBName),
		)

		if err := database.RunMigrations(ctx, pool, postgres.Migrations(), logger); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}
		return postgres.NewProductRepository(pool), pool.Close, nil

	case config.StoreMemory:
		logger.Warn("using in-memory product store; data is lost on restart")
		return memory.NewProductRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
