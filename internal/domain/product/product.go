package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item offered at the till.
type Product struct {
	ID       string
	SKU      string
	Name     string
	Category string
	Price    decimal.Decimal
	// TaxRate is a percentage, e.g. 20 for 20%.
	TaxRate decimal.Decimal
	// StockTracked is false for services such as engraving or repairs.
	StockTracked bool
}

// CartLine prices qty units of the product at its catalog price.
func (p Product) CartLine(qty int) pricing.CartLine {
	return pricing.CartLine{
		ProductID:    p.ID,
		UnitPrice:    p.Price,
		Quantity:     qty,
		TaxRate:      p.TaxRate,
		StockTracked: p.StockTracked,
	}
}

// NotFoundError indicates a requested product does not exist.
type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Item is a requested product and quantity, before prices are known.
type Item struct {
	ProductID string
	Quantity  int
}

// Resolve fetches every product in items in a single batch and prices them
// into cart lines, preserving order. A missing product yields *NotFoundError.
func Resolve(ctx context.Context, repo Repository, items []Item) ([]pricing.CartLine, error) {
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	fetched, err := repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]pricing.CartLine, len(items))
	for i, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &NotFoundError{ProductID: item.ProductID}
		}
		lines[i] = p.CartLine(item.Quantity)
	}
	return lines, nil
}
