package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/product"
	"github.com/xenking/jewellery-pos/internal/domain/tradein"
	"github.com/xenking/jewellery-pos/internal/wire"
)

// quoted is a cart resolved against the catalog and priced.
type quoted struct {
	lines     []pricing.CartLine
	tradeIns  []pricing.TradeInAllowance
	breakdown pricing.Breakdown
}

func decodeCart(r *http.Request, w http.ResponseWriter) (wire.Cart, error) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return wire.DecodeCart(jx.Decode(body, 4096))
}

// resolveLines prices items at catalog prices. An unknown product is a
// validation failure of the cart, not a missing resource.
func (h *Handler) resolveLines(ctx context.Context, items []product.Item) ([]pricing.CartLine, error) {
	lines, err := product.Resolve(ctx, h.products, items)
	if err != nil {
		var nfErr *product.NotFoundError
		if errors.As(err, &nfErr) {
			return nil, &pricing.ValidationError{Field: "lines.product_id", Index: -1, Reason: nfErr.Error()}
		}
		return nil, err
	}
	return lines, nil
}

// price resolves the cart's products and trade-ins and computes totals.
func (h *Handler) price(ctx context.Context, cart wire.Cart) (*quoted, error) {
	lines, err := h.resolveLines(ctx, cart.Items)
	if err != nil {
		return nil, err
	}
	tradeIns, err := tradein.Resolve(ctx, h.tradeIns, cart.TradeIns)
	if err != nil {
		// An unknown trade-in is a fault in the cart, like an unknown product.
		if errors.Is(err, tradein.ErrNotFound) {
			return nil, &pricing.ValidationError{Field: "trade_ins.id", Index: -1, Reason: err.Error()}
		}
		return nil, err
	}
	b, err := pricing.ComputeTotals(lines, cart.Discount, tradeIns)
	if err != nil {
		return nil, err
	}
	return &quoted{lines: lines, tradeIns: tradeIns, breakdown: b}, nil
}

// quote prices a cart without touching stock.
func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, err := decodeCart(r, w)
	if err != nil {
		badRequest(ctx, w, err)
		return
	}
	q, err := h.price(ctx, cart)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeBreakdown(e, q.breakdown)
	})
}

// availability reports fresh on-hand figures and any shortfalls for a cart.
func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, err := decodeCart(r, w)
	if err != nil {
		badRequest(ctx, w, err)
		return
	}
	lines, err := h.resolveLines(ctx, cart.Items)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	snaps, shortfalls, err := h.gate.Assess(ctx, lines)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("available", func(e *jx.Encoder) { e.Bool(len(shortfalls) == 0) })
			e.Field("stock", func(e *jx.Encoder) { wire.EncodeSnapshots(e, snaps) })
			e.Field("shortfalls", func(e *jx.Encoder) { wire.EncodeShortfalls(e, shortfalls) })
		})
	})
}

// commit prices the cart afresh and commits it as a sale.
func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, err := decodeCart(r, w)
	if err != nil {
		badRequest(ctx, w, err)
		return
	}
	q, err := h.price(ctx, cart)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if cart.QuotedNetTotal != nil && !cart.QuotedNetTotal.Equal(q.breakdown.NetTotal) {
		writeError(ctx, w, &pricing.ValidationError{
			Field:  "quoted_net_total",
			Index:  -1,
			Reason: "net total is now " + q.breakdown.NetTotal.StringFixed(pricing.MoneyScale) + ", quote again",
		})
		return
	}

	committed, err := h.composer.CommitSale(ctx, checkout.Request{
		Lines:         q.lines,
		TradeIns:      q.tradeIns,
		Breakdown:     q.breakdown,
		PaymentMethod: cart.PaymentMethod,
		Notes:         cart.Notes,
		RegisterID:    cart.RegisterID,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	w.Header().Set("Location", "/api/sales/"+committed.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		wire.EncodeSale(e, committed)
	})
}
