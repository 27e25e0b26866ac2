package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/jewellery-pos/internal/app"
	"github.com/xenking/jewellery-pos/internal/seed"
)

func main() {
	var (
		storage  app.StorageConfig
		seedFile string
	)

	flag.StringVar(&storage.Driver, "driver", app.DriverPostgres, "storage driver: postgres or sqlite")
	flag.StringVar(&storage.DatabaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&storage.SQLitePath, "sqlite-path", "pos.db", "SQLite database file")
	flag.StringVar(&seedFile, "seed-file", "db/seed/catalog.json", "path to the seed JSON file")
	flag.Parse()

	if storage.DatabaseURL == "" {
		storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if storage.Driver == app.DriverPostgres && storage.DatabaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, storage, seedFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, storage app.StorageConfig, seedFile string) error {
	slog.Info("reading seed file", slog.String("path", seedFile))

	f, err := os.Open(seedFile)
	if err != nil {
		return errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	data, err := seed.Load(f)
	if err != nil {
		return err
	}

	slog.Info("connecting to database", slog.String("driver", storage.Driver))
	stores, err := app.OpenStores(ctx, storage)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer stores.Close()

	return seed.Apply(ctx, seed.Stores{
		Products: stores.Products,
		Stock:    stores.Stock,
		TradeIns: stores.TradeIns,
	}, data, time.Now())
}
