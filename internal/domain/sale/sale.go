// Package sale defines the persisted sale record and its store contract.
package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
)

// ErrNotFound is returned when a sale does not exist.
var ErrNotFound = errors.New("sale not found")

// PaymentMethod is how the customer settled the sale.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentSplit        PaymentMethod = "split"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentBankTransfer, PaymentSplit:
		return true
	default:
		return false
	}
}

// Header is the sale record carrying the cart-level totals.
type Header struct {
	ID            string
	Subtotal      decimal.Decimal
	DiscountType  pricing.DiscountType
	DiscountValue decimal.Decimal
	DiscountTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	GrossTotal    decimal.Decimal
	TradeInTotal  decimal.Decimal
	NetTotal      decimal.Decimal
	PaymentMethod PaymentMethod
	Notes         string
	RegisterID    string
	CreatedAt     time.Time
}

// NewHeader builds an unsaved header from a computed breakdown.
func NewHeader(b pricing.Breakdown, method PaymentMethod, notes, registerID string) Header {
	kind, value := pricing.DescribeDiscount(b.Discount)
	return Header{
		Subtotal:      b.Subtotal,
		DiscountType:  kind,
		DiscountValue: value,
		DiscountTotal: b.DiscountTotal,
		TaxTotal:      b.TaxTotal,
		GrossTotal:    b.GrossTotal,
		TradeInTotal:  b.TradeInTotal,
		NetTotal:      b.NetTotal,
		PaymentMethod: method,
		Notes:         notes,
		RegisterID:    registerID,
	}
}

// Line is one sold line item with the amounts allocated to it.
type Line struct {
	SaleID    string
	Position  int
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
	Discount  decimal.Decimal
	TaxRate   decimal.Decimal
	Tax       decimal.Decimal
}

// NewLine builds the line at position i of a priced cart.
func NewLine(saleID string, i int, cl pricing.CartLine, a pricing.LineAmounts) Line {
	return Line{
		SaleID:    saleID,
		Position:  i,
		ProductID: cl.ProductID,
		UnitPrice: cl.UnitPrice,
		Quantity:  cl.Quantity,
		LineTotal: a.LineTotal,
		Discount:  a.Discount,
		TaxRate:   cl.TaxRate,
		Tax:       a.Tax,
	}
}

// Net is the line total after discount plus tax.
func (l Line) Net() decimal.Decimal {
	return l.LineTotal.Sub(l.Discount).Add(l.Tax)
}

// Committed is a sale whose header, lines, stock movements and trade-in
// links all exist. It is never modified after creation.
type Committed struct {
	Header
	Lines     []Line
	Movements []stock.Movement
	TradeIns  []pricing.TradeInAllowance
}

// OwedToCustomer reports whether the net total is payable to the customer.
func (c *Committed) OwedToCustomer() bool {
	return c.NetTotal.IsNegative()
}

// Store persists sales. VoidHeader exists only for rolling back a checkout:
// it removes the header and its lines, and is a no-op for a missing sale.
type Store interface {
	CreateHeader(ctx context.Context, h Header) (string, error)
	CreateLine(ctx context.Context, l Line) error
	VoidHeader(ctx context.Context, saleID string) error
	Get(ctx context.Context, saleID string) (*Committed, error)
}

// Breakdown rebuilds the monetary breakdown from the stored amounts. A stored
// discount that no longer parses is reported rather than dropped.
func (c *Committed) Breakdown() (pricing.Breakdown, error) {
	disc, err := pricing.ParseDiscount(c.DiscountType, c.DiscountValue)
	if err != nil {
		return pricing.Breakdown{}, errors.Wrapf(err, "sale %s discount", c.ID)
	}
	lines := make([]pricing.LineAmounts, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = pricing.LineAmounts{LineTotal: l.LineTotal, Discount: l.Discount, Tax: l.Tax}
	}
	return pricing.Breakdown{
		Subtotal:      c.Subtotal,
		DiscountTotal: c.DiscountTotal,
		TaxTotal:      c.TaxTotal,
		GrossTotal:    c.GrossTotal,
		TradeInTotal:  c.TradeInTotal,
		NetTotal:      c.NetTotal,
		Discount:      disc,
		Lines:         lines,
	}, nil
}
