// Package pricing turns a cart into a deterministic monetary breakdown.
//
// All amounts are shopspring decimals rounded half away from zero to
// MoneyScale places at the point they are produced, so every sum in a
// Breakdown is exact.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places kept for monetary amounts.
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// CartLine is a single product line assembled by the operator.
type CartLine struct {
	ProductID    string
	UnitPrice    decimal.Decimal
	Quantity     int
	TaxRate      decimal.Decimal // percent, e.g. 20 for 20%
	StockTracked bool
}

// TradeInAllowance is a non-cash credit granted for a customer's item.
type TradeInAllowance struct {
	ID                string
	Title             string
	Allowance         decimal.Decimal
	CustomerReference string
}

// LineAmounts holds the computed money for one cart line, in cart order.
type LineAmounts struct {
	LineTotal decimal.Decimal
	Discount  decimal.Decimal
	Tax       decimal.Decimal
}

// Net returns the discounted line amount including tax.
func (l LineAmounts) Net() decimal.Decimal {
	return l.LineTotal.Sub(l.Discount).Add(l.Tax)
}

// Breakdown is the monetary result of pricing a cart.
//
// GrossTotal = Subtotal - DiscountTotal + TaxTotal and
// NetTotal = GrossTotal - TradeInTotal. NetTotal is negative when the
// trade-in credit exceeds the goods value; it is never clamped.
type Breakdown struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	GrossTotal    decimal.Decimal
	TradeInTotal  decimal.Decimal
	NetTotal      decimal.Decimal

	// Discount is the discount the breakdown was computed with.
	Discount Discount
	Lines    []LineAmounts
}

// OwedToCustomer reports whether the net total is a credit due to the customer.
func (b Breakdown) OwedToCustomer() bool {
	return b.NetTotal.IsNegative()
}

// Matches reports whether two breakdowns carry identical amounts.
func (b Breakdown) Matches(other Breakdown) bool {
	if !b.Subtotal.Equal(other.Subtotal) ||
		!b.DiscountTotal.Equal(other.DiscountTotal) ||
		!b.TaxTotal.Equal(other.TaxTotal) ||
		!b.GrossTotal.Equal(other.GrossTotal) ||
		!b.TradeInTotal.Equal(other.TradeInTotal) ||
		!b.NetTotal.Equal(other.NetTotal) {
		return false
	}
	if len(b.Lines) != len(other.Lines) {
		return false
	}
	for i := range b.Lines {
		l, o := b.Lines[i], other.Lines[i]
		if !l.LineTotal.Equal(o.LineTotal) || !l.Discount.Equal(o.Discount) || !l.Tax.Equal(o.Tax) {
			return false
		}
	}
	return true
}

// ValidationError reports malformed pricing input. Index is the position of
// the offending line or trade-in, or -1 for cart-level fields.
type ValidationError struct {
	Field  string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid %s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field string, index int, reason string) *ValidationError {
	return &ValidationError{Field: field, Index: index, Reason: reason}
}

// Round rounds a monetary amount to MoneyScale places.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyScale)
}
