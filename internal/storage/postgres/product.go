package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/jewellery-pos/internal/domain/product"
)

const (
	productColumns = `id, sku, name, category, price, tax_rate, stock_tracked`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (id, sku, name, category, price, tax_rate, stock_tracked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku, name = EXCLUDED.name, category = EXCLUDED.category,
			price = EXCLUDED.price, tax_rate = EXCLUDED.tax_rate, stock_tracked = EXCLUDED.stock_tracked`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &product.NotFoundError{ProductID: id}
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert creates or replaces a catalog entry. Stock is not touched.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertProductSQL,
		p.ID, p.SKU, p.Name, p.Category, p.Price, p.TaxRate, p.StockTracked,
	)
	if err != nil {
		return classify(fmt.Sprintf("upsert product %s", p.ID), err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Price, &p.TaxRate, &p.StockTracked)
	return p, err
}
