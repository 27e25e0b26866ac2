// Package seed loads a catalog, opening stock and trade-in intake from a
// JSON file into the stores.
package seed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/product"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
	"github.com/xenking/jewellery-pos/internal/domain/tradein"
)

// File is the seed file layout.
type File struct {
	Products []Product `json:"products"`
	TradeIns []TradeIn `json:"trade_ins"`
}

// Product is a catalog entry with its opening stock.
type Product struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	StockTracked bool            `json:"stock_tracked"`
	OpeningStock int             `json:"opening_stock"`
}

// TradeIn is a part-exchange item waiting to be credited to a sale.
type TradeIn struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Allowance         decimal.Decimal `json:"allowance"`
	CustomerReference string          `json:"customer_reference"`
}

// Load parses and checks a seed file. A product without a SKU gets its id
// as SKU.
func Load(r io.Reader) (*File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	for i := range f.Products {
		p := &f.Products[i]
		if p.SKU == "" {
			p.SKU = p.ID
		}
		switch {
		case p.ID == "":
			return nil, errors.Errorf("product %d: id is empty", i)
		case p.Price.IsNegative():
			return nil, errors.Errorf("product %s: negative price", p.ID)
		case p.TaxRate.IsNegative():
			return nil, errors.Errorf("product %s: negative tax rate", p.ID)
		case p.OpeningStock < 0:
			return nil, errors.Errorf("product %s: negative opening stock", p.ID)
		case p.OpeningStock > 0 && !p.StockTracked:
			return nil, errors.Errorf("product %s: opening stock on an untracked product", p.ID)
		}
	}
	for i, t := range f.TradeIns {
		if t.ID == "" {
			return nil, errors.Errorf("trade-in %d: id is empty", i)
		}
		if t.Allowance.IsNegative() {
			return nil, errors.Errorf("trade-in %s: negative allowance", t.ID)
		}
	}
	return &f, nil
}

// Stores are the stores seeding writes to.
type Stores struct {
	Products interface {
		Upsert(ctx context.Context, p product.Product) error
	}
	Stock interface {
		stock.Store
		Movements(ctx context.Context, reference string, reason stock.Reason) ([]stock.Movement, error)
	}
	TradeIns tradein.Repository
}

// Apply writes f. Running it twice is harmless: products are upserted,
// opening stock is only recorded once per product and existing trade-ins
// are left alone.
func Apply(ctx context.Context, s Stores, f *File, now time.Time) error {
	slog.Info("upserting products", slog.Int("count", len(f.Products)))
	for _, p := range f.Products {
		if err := s.Products.Upsert(ctx, product.Product{
			ID:           p.ID,
			SKU:          p.SKU,
			Name:         p.Name,
			Category:     p.Category,
			Price:        p.Price,
			TaxRate:      p.TaxRate,
			StockTracked: p.StockTracked,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		if err := openingStock(ctx, s, p, now); err != nil {
			return err
		}
	}

	if err := tradeIns(ctx, s.TradeIns, f.TradeIns, now); err != nil {
		return err
	}
	return nil
}

func openingStock(ctx context.Context, s Stores, p Product, now time.Time) error {
	if p.OpeningStock == 0 {
		return nil
	}
	ref := "opening:" + p.ID
	existing, err := s.Stock.Movements(ctx, ref, stock.ReasonOpening)
	if err != nil {
		return errors.Wrapf(err, "read opening stock for %s", p.ID)
	}
	if len(existing) > 0 {
		slog.Info("opening stock already recorded", slog.String("id", p.ID))
		return nil
	}

	if err := s.Stock.AppendMovement(ctx, stock.Movement{
		ProductID: p.ID,
		Delta:     p.OpeningStock,
		Reason:    stock.ReasonOpening,
		Reference: ref,
		CreatedAt: now,
	}); err != nil {
		return errors.Wrapf(err, "record opening stock for %s", p.ID)
	}
	slog.Info("recorded opening stock", slog.String("id", p.ID), slog.Int("quantity", p.OpeningStock))
	return nil
}

func tradeIns(ctx context.Context, repo tradein.Repository, items []TradeIn, now time.Time) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, t := range items {
		ids[i] = t.ID
	}
	existing, err := repo.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "read trade-ins")
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = true
	}

	for _, t := range items {
		if known[t.ID] {
			continue
		}
		if err := repo.Create(ctx, tradein.TradeIn{
			ID:                t.ID,
			Title:             t.Title,
			Allowance:         t.Allowance,
			CustomerReference: t.CustomerReference,
			ReceivedAt:        now,
		}); err != nil {
			return errors.Wrapf(err, "create trade-in %s", t.ID)
		}
		slog.Info("recorded trade-in", slog.String("id", t.ID), slog.String("allowance", t.Allowance.StringFixed(2)))
	}
	return nil
}
