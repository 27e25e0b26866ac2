package stock

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Reason classifies a stock ledger movement.
type Reason string

const (
	// ReasonSale is a deduction for a sold line item.
	ReasonSale Reason = "sale"
	// ReasonSaleReversal restores stock deducted by a sale that was rolled back.
	ReasonSaleReversal Reason = "sale_reversal"
	// ReasonIntake is received stock.
	ReasonIntake Reason = "intake"
	// ReasonOpening is the opening balance loaded when a product is seeded.
	ReasonOpening Reason = "opening"
)

// Movement is one append-only stock ledger entry. Delta is negative for
// deductions. Reference ties the entry to its source document (a sale id,
// an intake batch).
type Movement struct {
	ProductID string
	Delta     int
	Reason    Reason
	Reference string
	CreatedAt time.Time
}

// Snapshot is the on-hand quantity of a product read at a point in time.
type Snapshot struct {
	ProductID string
	OnHand    int
}

// Reader reads current on-hand quantities.
type Reader interface {
	GetOnHand(ctx context.Context, productID string) (int, error)
}

// Store is the product stock ledger. AppendMovement must refuse a movement
// that would take on-hand below zero.
type Store interface {
	Reader
	AppendMovement(ctx context.Context, m Movement) error
}

// Shortfall describes a product requested beyond what is on hand.
type Shortfall struct {
	ProductID string
	Requested int
	Available int
}

// InsufficientStockError lists every shortfall found for a cart.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available)
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}
