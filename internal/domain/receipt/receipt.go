// Package receipt presents a committed sale: a printable text receipt and
// the publisher contract for confirmation consumers.
package receipt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
)

// Publisher delivers a committed sale to downstream consumers (receipt
// printers, document storage). It runs after the commit and its failure
// never undoes the sale.
type Publisher interface {
	Publish(ctx context.Context, s *sale.Committed) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, s *sale.Committed) error

func (f PublisherFunc) Publish(ctx context.Context, s *sale.Committed) error {
	return f(ctx, s)
}

// Options tune receipt rendering.
type Options struct {
	StoreName string
	// Names maps product ids to display names. Unknown ids print as-is.
	Names map[string]string
}

// Render writes a plain-text receipt for s.
func Render(w io.Writer, s *sale.Committed, opts Options) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)

	if opts.StoreName != "" {
		fmt.Fprintf(tw, "%s\t\n", opts.StoreName)
	}
	fmt.Fprintf(tw, "Sale %s\t\n", s.ID)
	fmt.Fprintf(tw, "%s\t\n", s.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintln(tw, "\t")

	for _, l := range s.Lines {
		name := l.ProductID
		if n, ok := opts.Names[l.ProductID]; ok {
			name = n
		}
		fmt.Fprintf(tw, "%s x%d @ %s\t%s\t\n", name, l.Quantity, money(l.UnitPrice), money(l.LineTotal))
		if l.Discount.IsPositive() {
			fmt.Fprintf(tw, "  discount\t-%s\t\n", money(l.Discount))
		}
	}
	fmt.Fprintln(tw, "\t")

	fmt.Fprintf(tw, "Subtotal\t%s\t\n", money(s.Subtotal))
	if s.DiscountTotal.IsPositive() {
		fmt.Fprintf(tw, "Discount (%s)\t-%s\t\n", describe(s), money(s.DiscountTotal))
	}
	fmt.Fprintf(tw, "Tax\t%s\t\n", money(s.TaxTotal))
	fmt.Fprintf(tw, "Total\t%s\t\n", money(s.GrossTotal))

	for _, t := range s.TradeIns {
		title := t.Title
		if title == "" {
			title = t.ID
		}
		fmt.Fprintf(tw, "Trade-in: %s\t-%s\t\n", title, money(t.Allowance))
	}

	if s.OwedToCustomer() {
		fmt.Fprintf(tw, "DUE TO CUSTOMER\t%s\t\n", money(s.NetTotal.Neg()))
	} else {
		fmt.Fprintf(tw, "AMOUNT DUE\t%s\t\n", money(s.NetTotal))
	}
	fmt.Fprintf(tw, "Paid by %s\t\n", strings.ReplaceAll(string(s.PaymentMethod), "_", " "))
	if s.Notes != "" {
		fmt.Fprintf(tw, "Note: %s\t\n", s.Notes)
	}

	return tw.Flush()
}

func describe(s *sale.Committed) string {
	switch s.DiscountType {
	case pricing.DiscountPercentage:
		return s.DiscountValue.String() + "%"
	case pricing.DiscountFixed:
		return "fixed"
	default:
		return string(s.DiscountType)
	}
}

func money(v decimal.Decimal) string {
	return v.StringFixed(pricing.MoneyScale)
}
