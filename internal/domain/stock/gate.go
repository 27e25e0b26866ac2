// Package stock holds the stock ledger contracts and the availability gate
// run immediately before a sale is committed.
package stock

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
)

// Gate checks cart quantities against fresh on-hand figures. It takes no
// locks: the store's non-negative constraint remains the final authority.
type Gate struct {
	stock Reader
}

// NewGate creates a Gate reading from r.
func NewGate(r Reader) *Gate {
	return &Gate{stock: r}
}

// Check returns nil when every stock-tracked line can be fulfilled, or an
// *InsufficientStockError listing all shortfalls. Quantities of the same
// product on several lines are summed.
func (g *Gate) Check(ctx context.Context, lines []pricing.CartLine) error {
	_, shortfalls, err := g.Assess(ctx, lines)
	if err != nil {
		return err
	}
	if len(shortfalls) > 0 {
		return &InsufficientStockError{Shortfalls: shortfalls}
	}
	return nil
}

// Snapshot reads the current on-hand of every stock-tracked product in lines.
func (g *Gate) Snapshot(ctx context.Context, lines []pricing.CartLine) ([]Snapshot, error) {
	snaps, _, err := g.Assess(ctx, lines)
	return snaps, err
}

// Assess reads on-hand once per stock-tracked product and derives the
// shortfalls from those same figures. Invalid line quantities yield a
// *pricing.ValidationError before any read.
func (g *Gate) Assess(ctx context.Context, lines []pricing.CartLine) ([]Snapshot, []Shortfall, error) {
	if err := pricing.ValidateLines(lines); err != nil {
		return nil, nil, err
	}
	requested, order := demand(lines)

	snaps := make([]Snapshot, 0, len(order))
	for _, id := range order {
		onHand, err := g.stock.GetOnHand(ctx, id)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "get on hand for %s", id)
		}
		snaps = append(snaps, Snapshot{ProductID: id, OnHand: onHand})
	}
	return snaps, shortfalls(requested, snaps), nil
}

// shortfalls compares requested quantities with the given on-hand figures.
func shortfalls(requested map[string]int64, snaps []Snapshot) []Shortfall {
	var out []Shortfall
	for _, s := range snaps {
		want, ok := requested[s.ProductID]
		if !ok || want <= int64(s.OnHand) {
			continue
		}
		out = append(out, Shortfall{
			ProductID: s.ProductID,
			Requested: int(want),
			Available: max(s.OnHand, 0),
		})
	}
	return out
}

// demand sums requested quantities per stock-tracked product, keeping the
// order in which products first appear.
func demand(lines []pricing.CartLine) (map[string]int64, []string) {
	requested := make(map[string]int64, len(lines))
	order := make([]string, 0, len(lines))
	for _, l := range lines {
		if !l.StockTracked {
			continue
		}
		if _, seen := requested[l.ProductID]; !seen {
			order = append(order, l.ProductID)
		}
		requested[l.ProductID] += int64(l.Quantity)
	}
	return requested, order
}
