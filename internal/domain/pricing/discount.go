package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType names a discount kind in storage and on the wire.
type DiscountType string

const (
	// DiscountNone means the cart carries no discount.
	DiscountNone DiscountType = "none"
	// DiscountPercentage takes a percentage off every line.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off the cart, allocated across lines
	// in proportion to their totals.
	DiscountFixed DiscountType = "fixed"
)

// Discount is a cart-wide discount. The set of implementations is closed:
// Percentage and FixedAmount. A nil Discount means no discount.
type Discount interface {
	discountType() DiscountType
}

// Percentage discounts every line by Percent (0..100).
type Percentage struct {
	Percent decimal.Decimal
}

func (Percentage) discountType() DiscountType { return DiscountPercentage }

// FixedAmount discounts the cart by Amount, capped at the subtotal.
type FixedAmount struct {
	Amount decimal.Decimal
}

func (FixedAmount) discountType() DiscountType { return DiscountFixed }

// DescribeDiscount returns the storage representation of d.
func DescribeDiscount(d Discount) (DiscountType, decimal.Decimal) {
	switch d := d.(type) {
	case nil:
		return DiscountNone, decimal.Zero
	case Percentage:
		return DiscountPercentage, d.Percent
	case FixedAmount:
		return DiscountFixed, d.Amount
	default:
		return d.discountType(), decimal.Zero
	}
}

// ParseDiscount builds a Discount from its storage representation.
func ParseDiscount(t DiscountType, value decimal.Decimal) (Discount, error) {
	switch t {
	case "", DiscountNone:
		return nil, nil
	case DiscountPercentage:
		return Percentage{Percent: value}, nil
	case DiscountFixed:
		return FixedAmount{Amount: value}, nil
	default:
		return nil, errors.Errorf("unsupported discount type %q", t)
	}
}

// PercentScale is the number of decimal places accepted in a percentage.
const PercentScale = 4

// maxExponent bounds the positive exponent of a discount value. Comparisons
// rescale operands, so a huge exponent would be expanded in memory.
const maxExponent = 12

// withinScale reports whether v has at most places decimal places and a
// bounded magnitude exponent.
func withinScale(v decimal.Decimal, places int32) bool {
	exp := v.Exponent()
	return exp >= -places && exp <= maxExponent
}

func validateDiscount(d Discount) error {
	switch d := d.(type) {
	case nil:
		return nil
	case Percentage:
		if !withinScale(d.Percent, PercentScale) {
			return invalid("discount.percent", -1, fmt.Sprintf("must have at most %d decimal places", PercentScale))
		}
		if d.Percent.IsNegative() || d.Percent.GreaterThan(hundred) {
			return invalid("discount.percent", -1, "must be between 0 and 100")
		}
		return nil
	case FixedAmount:
		if !withinScale(d.Amount, MoneyScale) {
			return invalid("discount.amount", -1, fmt.Sprintf("must have at most %d decimal places", MoneyScale))
		}
		if d.Amount.IsNegative() {
			return invalid("discount.amount", -1, "must not be negative")
		}
		return nil
	default:
		return invalid("discount", -1, "unsupported discount type")
	}
}

// allocate splits the discount across line totals. The returned slice sums
// exactly to the returned cart-level amount.
func allocate(d Discount, totals []decimal.Decimal, subtotal decimal.Decimal) ([]decimal.Decimal, decimal.Decimal) {
	alloc := make([]decimal.Decimal, len(totals))
	for i := range alloc {
		alloc[i] = decimal.Zero
	}

	var amount decimal.Decimal
	switch d := d.(type) {
	case nil:
		return alloc, decimal.Zero
	case Percentage:
		amount = Round(subtotal.Mul(d.Percent).Div(hundred))
		for i, t := range totals {
			alloc[i] = Round(t.Mul(d.Percent).Div(hundred))
		}
	case FixedAmount:
		if !subtotal.IsPositive() {
			return alloc, decimal.Zero
		}
		amount = Round(decimal.Min(d.Amount, subtotal))
		for i, t := range totals {
			alloc[i] = Round(t.Mul(amount).Div(subtotal))
		}
	}

	reconcile(alloc, totals, amount)
	return alloc, amount
}

// reconcile moves the rounding remainder onto the trailing lines so that the
// allocation sums to target while every entry stays within [0, totals[i]].
func reconcile(alloc, totals []decimal.Decimal, target decimal.Decimal) {
	sum := decimal.Zero
	for _, a := range alloc {
		sum = sum.Add(a)
	}

	rem := target.Sub(sum)
	for i := len(alloc) - 1; i >= 0 && !rem.IsZero(); i-- {
		next := alloc[i].Add(rem)
		switch {
		case next.IsNegative():
			alloc[i] = decimal.Zero
			rem = next
		case next.GreaterThan(totals[i]):
			alloc[i] = totals[i]
			rem = next.Sub(totals[i])
		default:
			alloc[i] = next
			rem = decimal.Zero
		}
	}
}
