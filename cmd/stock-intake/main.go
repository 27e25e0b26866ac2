package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/jewellery-pos/internal/app"
	"github.com/xenking/jewellery-pos/internal/intake"
)

func main() {
	var (
		storage   app.StorageConfig
		pattern   string
		reference string
		expected  uint
		dryRun    bool
		strict    bool
	)

	flag.StringVar(&storage.Driver, "driver", app.DriverPostgres, "storage driver: postgres or sqlite")
	flag.StringVar(&storage.DatabaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&storage.SQLitePath, "sqlite-path", "pos.db", "SQLite database file")
	flag.StringVar(&pattern, "files", "data/intake/*.csv.gz", "glob of gzip CSV delivery files")
	flag.StringVar(&reference, "reference", "", "delivery reference recorded on the movements (default: random)")
	flag.UintVar(&expected, "expected-serials", 0, "expected serials per file, sizes the duplicate filters")
	flag.BoolVar(&dryRun, "dry-run", false, "scan and report without writing stock")
	flag.BoolVar(&strict, "strict", true, "refuse the whole delivery when a serial repeats")
	flag.Parse()

	if storage.DatabaseURL == "" {
		storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if !dryRun && storage.Driver == app.DriverPostgres && storage.DatabaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if reference == "" {
		reference = "intake:" + uuid.NewString()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, storage, pattern, reference, intake.Config{ExpectedSerials: expected}, dryRun, strict); err != nil {
		slog.Error("stock intake failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock intake completed successfully", slog.String("reference", reference))
}

func run(ctx context.Context, storage app.StorageConfig, pattern, reference string, cfg intake.Config, dryRun, strict bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "match delivery files")
	}
	if len(files) == 0 {
		return errors.Errorf("no delivery files match %s", pattern)
	}

	rep, err := intake.Scan(ctx, files, cfg)
	if err != nil {
		return errors.Wrap(err, "scan deliveries")
	}
	slog.Info("deliveries scanned",
		slog.Int("files", rep.Files),
		slog.Int("rows", rep.Rows),
		slog.Int("products", len(rep.Received)),
		slog.Int("duplicate_serials", len(rep.Duplicates)),
	)
	for _, serial := range rep.Duplicates {
		slog.Warn("serial received more than once", slog.String("serial", serial))
	}
	if strict && len(rep.Duplicates) > 0 {
		return errors.Errorf("%d serials repeat, fix the delivery files or pass --strict=false", len(rep.Duplicates))
	}
	if dryRun {
		for id, qty := range rep.Received {
			slog.Info("would receive", slog.String("product_id", id), slog.Int("quantity", qty))
		}
		return nil
	}

	stores, err := app.OpenStores(ctx, storage)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer stores.Close()

	moves, err := intake.Apply(ctx, stores.Stock, stores.Tx, reference, rep, time.Now())
	if err != nil {
		return errors.Wrap(err, "record intake")
	}
	slog.Info("intake recorded", slog.Int("movements", len(moves)))
	return nil
}
