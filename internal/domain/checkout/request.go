package checkout

import (
	"fmt"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
)

// Request is a quoted cart ready to be committed. Breakdown must be the
// result of pricing.ComputeTotals over Lines, Breakdown.Discount and TradeIns.
type Request struct {
	Lines         []pricing.CartLine
	TradeIns      []pricing.TradeInAllowance
	Breakdown     pricing.Breakdown
	PaymentMethod sale.PaymentMethod
	Notes         string
	// RegisterID identifies the till. Submissions from one register are
	// serialized by the Guard; an empty id skips the guard.
	RegisterID string
}

func (r Request) validate() error {
	if !r.PaymentMethod.Valid() {
		return &pricing.ValidationError{
			Field:  "payment_method",
			Index:  -1,
			Reason: fmt.Sprintf("unsupported payment method %q", r.PaymentMethod),
		}
	}
	if len(r.Lines) == 0 && len(r.TradeIns) == 0 {
		return &pricing.ValidationError{Field: "lines", Index: -1, Reason: "cart has no lines or trade-ins"}
	}

	seen := make(map[string]struct{}, len(r.TradeIns))
	for i, t := range r.TradeIns {
		if _, dup := seen[t.ID]; dup {
			return &pricing.ValidationError{Field: "trade_ins.id", Index: i, Reason: "trade-in listed twice"}
		}
		seen[t.ID] = struct{}{}
	}

	want, err := pricing.ComputeTotals(r.Lines, r.Breakdown.Discount, r.TradeIns)
	if err != nil {
		return err
	}
	if !want.Matches(r.Breakdown) {
		return &pricing.ValidationError{Field: "breakdown", Index: -1, Reason: "totals do not match the cart, quote again"}
	}
	return nil
}
