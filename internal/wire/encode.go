// Package wire holds the JSON representation of checkout data shared by the
// HTTP API and the sale confirmation feed.
package wire

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/product"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
)

// Money writes v as a JSON number with two decimal places.
func Money(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(pricing.MoneyScale)))
}

// EncodeProduct writes a catalog entry.
func EncodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(p.SKU) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("price", func(e *jx.Encoder) { Money(e, p.Price) })
		e.Field("tax_rate", func(e *jx.Encoder) { e.Num(jx.Num(p.TaxRate.String())) })
		e.Field("stock_tracked", func(e *jx.Encoder) { e.Bool(p.StockTracked) })
	})
}

// EncodeBreakdown writes the totals of a priced cart and its per-line
// amounts in cart order.
func EncodeBreakdown(e *jx.Encoder, b pricing.Breakdown) {
	e.Obj(func(e *jx.Encoder) {
		encodeTotals(e, b)
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range b.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("line_total", func(e *jx.Encoder) { Money(e, l.LineTotal) })
						e.Field("discount", func(e *jx.Encoder) { Money(e, l.Discount) })
						e.Field("tax", func(e *jx.Encoder) { Money(e, l.Tax) })
						e.Field("net", func(e *jx.Encoder) { Money(e, l.Net()) })
					})
				}
			})
		})
	})
}

func encodeTotals(e *jx.Encoder, b pricing.Breakdown) {
	typ, value := pricing.DescribeDiscount(b.Discount)
	e.Field("subtotal", func(e *jx.Encoder) { Money(e, b.Subtotal) })
	e.Field("discount", func(e *jx.Encoder) { encodeDiscount(e, typ, value) })
	e.Field("discount_total", func(e *jx.Encoder) { Money(e, b.DiscountTotal) })
	e.Field("tax_total", func(e *jx.Encoder) { Money(e, b.TaxTotal) })
	e.Field("gross_total", func(e *jx.Encoder) { Money(e, b.GrossTotal) })
	e.Field("trade_in_total", func(e *jx.Encoder) { Money(e, b.TradeInTotal) })
	e.Field("net_total", func(e *jx.Encoder) { Money(e, b.NetTotal) })
	e.Field("owed_to_customer", func(e *jx.Encoder) { e.Bool(b.OwedToCustomer()) })
}

func encodeDiscount(e *jx.Encoder, typ pricing.DiscountType, value decimal.Decimal) {
	if typ == pricing.DiscountNone || typ == "" {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(string(typ)) })
		e.Field("value", func(e *jx.Encoder) { e.Num(jx.Num(value.String())) })
	})
}

// EncodeSale writes a committed sale.
func EncodeSale(e *jx.Encoder, s *sale.Committed) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(s.ID) })
		e.Field("register_id", func(e *jx.Encoder) { e.Str(s.RegisterID) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(s.CreatedAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(s.PaymentMethod)) })
		if s.Notes != "" {
			e.Field("notes", func(e *jx.Encoder) { e.Str(s.Notes) })
		}
		e.Field("subtotal", func(e *jx.Encoder) { Money(e, s.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { encodeDiscount(e, s.DiscountType, s.DiscountValue) })
		e.Field("discount_total", func(e *jx.Encoder) { Money(e, s.DiscountTotal) })
		e.Field("tax_total", func(e *jx.Encoder) { Money(e, s.TaxTotal) })
		e.Field("gross_total", func(e *jx.Encoder) { Money(e, s.GrossTotal) })
		e.Field("trade_in_total", func(e *jx.Encoder) { Money(e, s.TradeInTotal) })
		e.Field("net_total", func(e *jx.Encoder) { Money(e, s.NetTotal) })
		e.Field("owed_to_customer", func(e *jx.Encoder) { e.Bool(s.OwedToCustomer()) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range s.Lines {
					encodeLine(e, l)
				}
			})
		})
		e.Field("trade_ins", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, t := range s.TradeIns {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(t.ID) })
						e.Field("title", func(e *jx.Encoder) { e.Str(t.Title) })
						e.Field("allowance", func(e *jx.Encoder) { Money(e, t.Allowance) })
					})
				}
			})
		})
		e.Field("movements", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, m := range s.Movements {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(m.ProductID) })
						e.Field("delta", func(e *jx.Encoder) { e.Int(m.Delta) })
						e.Field("reason", func(e *jx.Encoder) { e.Str(string(m.Reason)) })
					})
				}
			})
		})
	})
}

func encodeLine(e *jx.Encoder, l sale.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("position", func(e *jx.Encoder) { e.Int(l.Position) })
		e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("unit_price", func(e *jx.Encoder) { Money(e, l.UnitPrice) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("line_total", func(e *jx.Encoder) { Money(e, l.LineTotal) })
		e.Field("discount", func(e *jx.Encoder) { Money(e, l.Discount) })
		e.Field("tax_rate", func(e *jx.Encoder) { e.Num(jx.Num(l.TaxRate.String())) })
		e.Field("tax", func(e *jx.Encoder) { Money(e, l.Tax) })
	})
}

// EncodeShortfalls writes the lines that cannot be fulfilled.
func EncodeShortfalls(e *jx.Encoder, shortfalls []stock.Shortfall) {
	e.Arr(func(e *jx.Encoder) {
		for _, s := range shortfalls {
			e.Obj(func(e *jx.Encoder) {
				e.Field("product_id", func(e *jx.Encoder) { e.Str(s.ProductID) })
				e.Field("requested", func(e *jx.Encoder) { e.Int(s.Requested) })
				e.Field("available", func(e *jx.Encoder) { e.Int(s.Available) })
			})
		}
	})
}

// EncodeSnapshots writes fresh on-hand figures.
func EncodeSnapshots(e *jx.Encoder, snaps []stock.Snapshot) {
	e.Arr(func(e *jx.Encoder) {
		for _, s := range snaps {
			e.Obj(func(e *jx.Encoder) {
				e.Field("product_id", func(e *jx.Encoder) { e.Str(s.ProductID) })
				e.Field("on_hand", func(e *jx.Encoder) { e.Int(s.OnHand) })
			})
		}
	})
}

// MarshalSale returns the JSON form of s.
func MarshalSale(s *sale.Committed) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	EncodeSale(e, s)
	return append([]byte(nil), e.Bytes()...)
}
