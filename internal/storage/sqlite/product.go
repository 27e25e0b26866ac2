package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/product"
)

const (
	productColumns = `id, sku, name, category, price, tax_rate, stock_tracked`

	upsertProductSQL = `INSERT INTO products (id, sku, name, category, price, tax_rate, stock_tracked)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			sku = excluded.sku, name = excluded.name, category = excluded.category,
			price = excluded.price, tax_rate = excluded.tax_rate, stock_tracked = excluded.stock_tracked`
)

type productRow struct {
	ID           string          `db:"id"`
	SKU          string          `db:"sku"`
	Name         string          `db:"name"`
	Category     string          `db:"category"`
	Price        decimal.Decimal `db:"price"`
	TaxRate      decimal.Decimal `db:"tax_rate"`
	StockTracked bool            `db:"stock_tracked"`
}

func (r productRow) toDomain() product.Product {
	return product.Product{
		ID:           r.ID,
		SKU:          r.SKU,
		Name:         r.Name,
		Category:     r.Category,
		Price:        r.Price,
		TaxRate:      r.TaxRate,
		StockTracked: r.StockTracked,
	}
}

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by SQLite.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository returns a ProductRepository over conn.
func NewProductRepository(conn *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: conn}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	var rows []productRow
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows, `SELECT `+productColumns+` FROM products ORDER BY id`); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return mapProducts(rows), nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var row productRow
	err := sqlx.GetContext(ctx, ext(ctx, r.db), &row, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &product.NotFoundError{ProductID: id}
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	p := row.toDomain()
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building product query: %w", err)
	}
	var rows []productRow
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return mapProducts(rows), nil
}

// Upsert creates or replaces a catalog entry. Stock is not touched.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := ext(ctx, r.db).ExecContext(ctx, upsertProductSQL,
		p.ID, p.SKU, p.Name, p.Category, p.Price, p.TaxRate, p.StockTracked,
	)
	if err != nil {
		return classify(fmt.Sprintf("upsert product %s", p.ID), err)
	}
	return nil
}

func mapProducts(rows []productRow) []product.Product {
	out := make([]product.Product, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out
}
