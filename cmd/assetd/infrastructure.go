package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/memohai/assetd/internal/assets"
	"github.com/memohai/assetd/internal/assets/pgstore"
	"github.com/memohai/assetd/internal/assets/sqlitestore"
	"github.com/memohai/assetd/internal/boot"
	"github.com/memohai/assetd/internal/config"
	"github.com/memohai/assetd/internal/db"
	"github.com/memohai/assetd/internal/storage"
)

var InfrastructureModule = fx.Module(
	"infrastructure",
	fx.Provide(
		provideMetricsRegistry,
		provideGatherer,
		provideRepository,
		provideStorage,
	),
)

func provideMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideGatherer(reg *prometheus.Registry) prometheus.Gatherer {
	return reg
}

func provideRepository(lc fx.Lifecycle, log *slog.Logger, rc *boot.RuntimeConfig, opts serveOptions) (assets.Repository, error) {
	ctx := context.Background()
	if rc.Database.Driver == boot.DriverSQLite {
		store, err := sqlitestore.Open(ctx, log, rc.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return store.Close() },
		})
		return store, nil
	}

	if opts.AutoMigrate {
		if err := runMigrations(log, rc.Postgres, "up", nil); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(ctx, rc.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			conn.Close()
			return nil
		},
	})
	return pgstore.New(log, conn), nil
}

// provideStorage layers metrics and upload retries over the configured backend.
func provideStorage(lc fx.Lifecycle, log *slog.Logger, rc *boot.RuntimeConfig, reg *prometheus.Registry) (storage.Provider, error) {
	backend, err := storage.NewProvider(context.Background(), rc.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage provider: %w", err)
	}
	if closer, ok := backend.(io.Closer); ok {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return closer.Close() },
		})
	}
	observer, err := storage.NewPrometheusObserver("", reg)
	if err != nil {
		return nil, fmt.Errorf("storage metrics: %w", err)
	}
	interval := rc.RetryInterval
	return storage.NewRetryingProvider(
		log,
		storage.NewInstrumentedProvider(backend, observer),
		rc.Assets.MaxUploadRetries,
		func() backoff.BackOff { return backoff.NewConstantBackOff(interval) },
	), nil
}

func runMigrations(log *slog.Logger, cfg config.PostgresConfig, command string, args []string) error {
	sub, err := migrationsFS()
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return db.RunMigrate(log, cfg, sub, command, args)
}
