package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MaxQuantity caps a single line quantity so per-product demand sums fit in
// an int64.
const MaxQuantity = math.MaxInt32

// ComputeTotals prices a cart. The discount is applied first and tax is
// charged on the discounted line amount. Trade-in allowances reduce the net
// total only.
//
// Invalid input yields a *ValidationError and a zero Breakdown.
func ComputeTotals(lines []CartLine, discount Discount, tradeIns []TradeInAllowance) (Breakdown, error) {
	if err := validate(lines, discount, tradeIns); err != nil {
		return Breakdown{}, err
	}

	totals := make([]decimal.Decimal, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		totals[i] = Round(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		subtotal = subtotal.Add(totals[i])
	}

	discounts, discountTotal := allocate(discount, totals, subtotal)

	amounts := make([]LineAmounts, len(lines))
	taxTotal := decimal.Zero
	for i, l := range lines {
		taxable := totals[i].Sub(discounts[i])
		tax := Round(taxable.Mul(l.TaxRate).Div(hundred))
		amounts[i] = LineAmounts{
			LineTotal: totals[i],
			Discount:  discounts[i],
			Tax:       tax,
		}
		taxTotal = taxTotal.Add(tax)
	}

	tradeInTotal := decimal.Zero
	for _, t := range tradeIns {
		tradeInTotal = tradeInTotal.Add(Round(t.Allowance))
	}

	gross := subtotal.Sub(discountTotal).Add(taxTotal)
	return Breakdown{
		Subtotal:      subtotal,
		DiscountTotal: discountTotal,
		TaxTotal:      taxTotal,
		GrossTotal:    gross,
		TradeInTotal:  tradeInTotal,
		NetTotal:      gross.Sub(tradeInTotal),
		Discount:      discount,
		Lines:         amounts,
	}, nil
}

func validate(lines []CartLine, discount Discount, tradeIns []TradeInAllowance) error {
	if err := ValidateLines(lines); err != nil {
		return err
	}
	for i, t := range tradeIns {
		if t.Allowance.IsNegative() {
			return invalid("trade_ins.allowance", i, "must not be negative")
		}
	}
	return validateDiscount(discount)
}

// ValidateLines checks every cart line, returning a *ValidationError for the
// first invalid one.
func ValidateLines(lines []CartLine) error {
	for i, l := range lines {
		switch {
		case l.ProductID == "":
			return invalid("lines.product_id", i, "is required")
		case l.UnitPrice.IsNegative():
			return invalid("lines.unit_price", i, "must not be negative")
		case l.Quantity < 1:
			return invalid("lines.quantity", i, "must be at least 1")
		case l.Quantity > MaxQuantity:
			return invalid("lines.quantity", i, fmt.Sprintf("must be at most %d", MaxQuantity))
		case l.TaxRate.IsNegative():
			return invalid("lines.tax_rate", i, "must not be negative")
		}
	}
	return nil
}
