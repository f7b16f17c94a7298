// Command seed fills the line-item catalog with the sample items plus a
// generated assortment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cswank/store/internal/repository/memory"
	"github.com/cswank/store/internal/repository/postgres"
	"github.com/cswank/store/migrations"
	pkgconfig "github.com/cswank/store/pkg/config"
	"github.com/cswank/store/pkg/database"
	"github.com/cswank/store/pkg/logger"
)

type seedConfig struct {
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"store"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"store"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"store"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
}

func main() {
	count := flag.Int("count", 200, "number of generated catalog items")
	seed := flag.Uint64("seed", 42, "generator seed")
	workers := flag.Int("workers", 8, "concurrent upserts")
	flag.Parse()

	cfg := &seedConfig{}
	if err := pkgconfig.Load(cfg); err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("catalog-seed", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log, *count, *seed, *workers); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *seedConfig, log *slog.Logger, count int, seed uint64, workers int) error {
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL
	pgCfg.MaxConns = int32(max(workers, 1))

	pool, err := database.NewPostgresPool(ctx, &pgCfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repo := postgres.NewCatalogRepository(pool)
	items := append(memory.SampleCatalog(), generate(count, seed, time.Now().UTC())...)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range items {
		g.Go(func() error {
			return repo.Upsert(gctx, &items[i])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("catalog seeded",
		slog.Int("items", len(items)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
