// Package tradein holds part-exchange items accepted against a sale.
package tradein

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when a trade-in record does not exist.
	ErrNotFound = errors.New("trade-in not found")
	// ErrAlreadyLinked is returned when a trade-in is already credited to
	// another sale.
	ErrAlreadyLinked = errors.New("trade-in already linked to a sale")
)

// TradeIn is an item taken from a customer with an agreed allowance.
// SaleID is empty until the trade-in is credited against a sale.
type TradeIn struct {
	ID                string
	Title             string
	Allowance         decimal.Decimal
	CustomerReference string
	SaleID            string
	ReceivedAt        time.Time
}

// AsAllowance returns the pricing view of the trade-in.
func (t TradeIn) AsAllowance() pricing.TradeInAllowance {
	return pricing.TradeInAllowance{
		ID:                t.ID,
		Title:             t.Title,
		Allowance:         t.Allowance,
		CustomerReference: t.CustomerReference,
	}
}

// Store links trade-ins to sales. UnlinkFromSale only clears a link that
// points at saleID, so repeating it is harmless.
type Store interface {
	LinkToSale(ctx context.Context, tradeInID, saleID string) error
	UnlinkFromSale(ctx context.Context, tradeInID, saleID string) error
}

// Repository reads and records trade-in intake.
type Repository interface {
	Create(ctx context.Context, t TradeIn) error
	GetByIDs(ctx context.Context, ids []string) ([]TradeIn, error)
}

// Resolve loads the allowances for ids, preserving order. Trade-ins already
// credited to a sale cannot be offered again.
func Resolve(ctx context.Context, repo Repository, ids []string) ([]pricing.TradeInAllowance, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	fetched, err := repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get trade-ins")
	}

	byID := make(map[string]TradeIn, len(fetched))
	for _, t := range fetched {
		byID[t.ID] = t
	}

	out := make([]pricing.TradeInAllowance, len(ids))
	for i, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "trade-in %s", id)
		}
		if t.SaleID != "" {
			return nil, errors.Wrapf(ErrAlreadyLinked, "trade-in %s", id)
		}
		out[i] = t.AsAllowance()
	}
	return out, nil
}
