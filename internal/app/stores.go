package app

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/domain/product"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
	"github.com/xenking/jewellery-pos/internal/domain/tradein"
	"github.com/xenking/jewellery-pos/internal/storage/postgres"
	"github.com/xenking/jewellery-pos/internal/storage/sqlite"
)

// ProductStore is the catalog as the server and seeding tools use it.
type ProductStore interface {
	product.Repository
	Upsert(ctx context.Context, p product.Product) error
}

// StockStore is the stock ledger.
type StockStore interface {
	stock.Store
	Movements(ctx context.Context, reference string, reason stock.Reason) ([]stock.Movement, error)
}

// TradeInStore records trade-ins and links them to sales.
type TradeInStore interface {
	tradein.Store
	tradein.Repository
}

// Stores is one storage driver's set of stores over a shared connection.
type Stores struct {
	Products ProductStore
	Stock    StockStore
	Sales    sale.Store
	TradeIns TradeInStore
	Tx       checkout.Transactor

	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStores connects to the configured driver and applies its schema.
func OpenStores(ctx context.Context, cfg StorageConfig) (*Stores, error) {
	switch cfg.Driver {
	case DriverSQLite:
		conn, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		return &Stores{
			Products: sqlite.NewProductRepository(conn),
			Stock:    sqlite.NewStockStore(conn),
			Sales:    sqlite.NewSaleStore(conn),
			TradeIns: sqlite.NewTradeInStore(conn),
			Tx:       sqlite.NewTransactor(conn),
			Ping:     conn.PingContext,
			Close:    func() { _ = conn.Close() },
		}, nil
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &Stores{
			Products: postgres.NewProductRepository(pool),
			Stock:    postgres.NewStockStore(pool),
			Sales:    postgres.NewSaleStore(pool),
			TradeIns: postgres.NewTradeInStore(pool),
			Tx:       postgres.NewTransactor(pool),
			Ping:     pool.Ping,
			Close:    pool.Close,
		}, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
