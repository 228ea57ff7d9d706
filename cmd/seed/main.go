// Command seed imports the sample catalog into the configured product store,
// or clears it with -d.
//
//	go run ./cmd/seed            # import
//	go run ./cmd/seed -d         # destroy
//	go run ./cmd/seed -token     # also print an admin token for local testing
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/storefront/catalog/internal/app"
	"github.com/storefront/catalog/internal/auth"
	"github.com/storefront/catalog/internal/config"
	"github.com/storefront/catalog/internal/seed"
	pkgconfig "github.com/storefront/catalog/pkg/config"
	"github.com/storefront/catalog/pkg/logger"
	"github.com/storefront/catalog/pkg/middleware"
)

func main() {
	destroy := flag.Bool("d", false, "delete every product instead of importing")
	owner := flag.String("owner", "admin", "user id recorded as owner of imported products")
	printToken := flag.Bool("token", false, "print an admin bearer token signed with JWT_SECRET")
	flag.Parse()

	if err := pkgconfig.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("catalog-seed", cfg.LogLevel)

	if err := run(cfg, log, *destroy, *owner, *printToken); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, destroy bool, owner string, printToken bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if destroy {
		n, err := seed.Destroy(ctx, store)
		if err != nil {
			return err
		}
		log.Info("data destroyed", slog.Int64("products", n))
		return nil
	}

	n, err := seed.Import(ctx, store, owner, time.Now())
	if err != nil {
		return err
	}
	log.Info("data imported", slog.Int("products", n), slog.String("owner", owner))

	if printToken {
		token, err := auth.NewValidator(cfg.JWTSecret).Sign(owner, "Admin User", middleware.RoleAdmin, 24*time.Hour)
		if err != nil {
			return err
		}
		log.Info("admin token issued", slog.String("token", token))
	}
	return nil
}
