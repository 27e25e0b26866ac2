package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/product"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
	"github.com/xenking/jewellery-pos/internal/domain/tradein"
)

func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := Open(context.Background(), "file:"+filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type stores struct {
	products *ProductRepository
	stock    *StockStore
	sales    *SaleStore
	tradeIns *TradeInStore
}

func seed(t *testing.T, conn *sqlx.DB, onHand int) stores {
	t.Helper()
	ctx := context.Background()
	s := stores{
		products: NewProductRepository(conn),
		stock:    NewStockStore(conn),
		sales:    NewSaleStore(conn),
		tradeIns: NewTradeInStore(conn),
	}

	require.NoError(t, s.products.Upsert(ctx, product.Product{
		ID: "ring", SKU: "RNG-18K", Name: "18k ring",
		Price: decimal.NewFromInt(100), TaxRate: decimal.NewFromInt(20), StockTracked: true,
	}))
	require.NoError(t, s.products.Upsert(ctx, product.Product{
		ID: "engraving", SKU: "SVC-ENG", Name: "Engraving",
		Price: decimal.NewFromInt(15), TaxRate: decimal.NewFromInt(20),
	}))
	require.NoError(t, s.stock.AppendMovement(ctx, stock.Movement{
		ProductID: "ring", Delta: onHand, Reason: stock.ReasonOpening, Reference: "seed",
	}))
	require.NoError(t, s.tradeIns.Create(ctx, tradein.TradeIn{
		ID: "ti-1", Title: "Gold band", Allowance: decimal.NewFromInt(80),
	}))
	return s
}

func request(t *testing.T, ctx context.Context, s stores, qty int, tradeIns ...string) checkout.Request {
	t.Helper()
	lines, err := product.Resolve(ctx, s.products, []product.Item{{ProductID: "ring", Quantity: qty}})
	require.NoError(t, err)
	allowances, err := tradein.Resolve(ctx, s.tradeIns, tradeIns)
	require.NoError(t, err)
	b, err := pricing.ComputeTotals(lines, pricing.Percentage{Percent: decimal.NewFromInt(10)}, allowances)
	require.NoError(t, err)
	return checkout.Request{
		Lines:         lines,
		TradeIns:      allowances,
		Breakdown:     b,
		PaymentMethod: sale.PaymentCard,
		RegisterID:    "till-1",
	}
}

func countSales(t *testing.T, conn *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.Get(&n, `SELECT count(*) FROM sales`))
	return n
}

func TestProductRepository(t *testing.T) {
	conn := openDB(t)
	s := seed(t, conn, 3)
	ctx := context.Background()

	all, err := s.products.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "engraving", all[0].ID)
	assert.False(t, all[0].StockTracked)
	assert.True(t, all[1].Price.Equal(decimal.NewFromInt(100)))

	p, err := s.products.GetByID(ctx, "ring")
	require.NoError(t, err)
	assert.Equal(t, "RNG-18K", p.SKU)

	_, err = s.products.GetByID(ctx, "ghost")
	require.ErrorIs(t, err, product.ErrNotFound)

	got, err := s.products.GetByIDs(ctx, []string{"ring", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestCommitSale(t *testing.T) {
	for _, mode := range []string{"transaction", "saga"} {
		t.Run(mode, func(t *testing.T) {
			conn := openDB(t)
			s := seed(t, conn, 5)
			ctx := context.Background()

			var opts []checkout.Option
			if mode == "transaction" {
				opts = append(opts, checkout.WithTransactor(NewTransactor(conn)))
			}
			c, err := checkout.NewComposer(s.sales, s.stock, s.tradeIns, opts...)
			require.NoError(t, err)

			req := request(t, ctx, s, 2, "ti-1")
			committed, err := c.CommitSale(ctx, req)
			require.NoError(t, err)

			onHand, err := s.stock.GetOnHand(ctx, "ring")
			require.NoError(t, err)
			assert.Equal(t, 3, onHand)

			got, err := s.sales.Get(ctx, committed.ID)
			require.NoError(t, err)
			gotBreakdown, err := got.Breakdown()
			require.NoError(t, err)
			assert.True(t, req.Breakdown.Matches(gotBreakdown))
			require.Len(t, got.Lines, 1)
			assert.Equal(t, 2, got.Lines[0].Quantity)
			require.Len(t, got.Movements, 1)
			assert.Equal(t, -2, got.Movements[0].Delta)
			require.Len(t, got.TradeIns, 1)
			assert.Equal(t, "Gold band", got.TradeIns[0].Title)
			assert.True(t, got.NetTotal.Equal(decimal.RequireFromString("136")))

			_, err = tradein.Resolve(ctx, s.tradeIns, []string{"ti-1"})
			require.ErrorIs(t, err, tradein.ErrAlreadyLinked)
		})
	}
}

func TestCommitSale_RollbackLeavesNothing(t *testing.T) {
	for _, mode := range []string{"transaction", "saga"} {
		t.Run(mode, func(t *testing.T) {
			conn := openDB(t)
			s := seed(t, conn, 5)
			ctx := context.Background()

			var opts []checkout.Option
			if mode == "transaction" {
				opts = append(opts, checkout.WithTransactor(NewTransactor(conn)))
			}
			c, err := checkout.NewComposer(s.sales, s.stock, s.tradeIns, opts...)
			require.NoError(t, err)

			req := request(t, ctx, s, 2, "ti-1")
			// Someone else takes the trade-in after it was quoted.
			_, err = conn.Exec(`INSERT INTO sales (id, subtotal, discount_total, tax_total, gross_total,
				trade_in_total, net_total, payment_method) VALUES ('other', '0', '0', '0', '0', '0', '0', 'cash')`)
			require.NoError(t, err)
			require.NoError(t, s.tradeIns.LinkToSale(ctx, "ti-1", "other"))

			_, err = c.CommitSale(ctx, req)
			require.ErrorIs(t, err, tradein.ErrAlreadyLinked)
			assert.Equal(t, checkout.KindConflict, checkout.KindOf(err))

			assert.Equal(t, 1, countSales(t, conn))
			onHand, err := s.stock.GetOnHand(ctx, "ring")
			require.NoError(t, err)
			assert.Equal(t, 5, onHand)

			var lines int
			require.NoError(t, conn.Get(&lines, `SELECT count(*) FROM sale_lines`))
			assert.Zero(t, lines)
		})
	}
}

func TestStockStore_AppendMovement(t *testing.T) {
	conn := openDB(t)
	s := seed(t, conn, 1)
	ctx := context.Background()

	err := s.stock.AppendMovement(ctx, stock.Movement{ProductID: "ring", Delta: -2, Reason: stock.ReasonSale, Reference: "x"})

	var persistErr *checkout.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, checkout.CauseStockConstraint, persistErr.Cause)
	assert.Equal(t, "ring", persistErr.Field)

	moves, err := s.stock.Movements(ctx, "x", stock.ReasonSale)
	require.NoError(t, err)
	assert.Empty(t, moves)

	_, err = conn.Exec(`UPDATE products SET qty_on_hand = -1 WHERE id = 'ring'`)
	require.ErrorAs(t, classify("raw update", err), &persistErr)
	assert.Equal(t, checkout.CauseStockConstraint, persistErr.Cause)

	err = s.stock.AppendMovement(ctx, stock.Movement{ProductID: "ghost", Delta: 1, Reason: stock.ReasonIntake})
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, checkout.CauseForeignKey, persistErr.Cause)

	require.NoError(t, s.stock.AppendMovement(ctx, stock.Movement{ProductID: "ring", Delta: 4, Reason: stock.ReasonIntake, Reference: "po-7"}))
	onHand, err := s.stock.GetOnHand(ctx, "ring")
	require.NoError(t, err)
	assert.Equal(t, 5, onHand)

	onHand, err = s.stock.GetOnHand(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, onHand)
}

func TestCommitSale_StockTakenAfterCheck(t *testing.T) {
	conn := openDB(t)
	s := seed(t, conn, 2)
	ctx := context.Background()

	req := request(t, ctx, s, 2)
	// The gate passes with 2 on hand; another till sells one before the
	// deduction lands.
	stk := &racingStock{StockStore: s.stock, race: func() {
		_, err := conn.Exec(`UPDATE products SET qty_on_hand = 1 WHERE id = 'ring'`)
		require.NoError(t, err)
	}}
	c, err := checkout.NewComposer(s.sales, stk, s.tradeIns)
	require.NoError(t, err)

	_, err = c.CommitSale(ctx, req)

	var stockErr *stock.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Shortfalls, 1)
	assert.Equal(t, 1, stockErr.Shortfalls[0].Available)
	assert.Zero(t, countSales(t, conn))
}

type racingStock struct {
	*StockStore
	race func()
}

func (r *racingStock) AppendMovement(ctx context.Context, m stock.Movement) error {
	if r.race != nil && m.Reason == stock.ReasonSale {
		r.race()
		r.race = nil
	}
	return r.StockStore.AppendMovement(ctx, m)
}

func TestSaleStore_VoidHeaderIsIdempotent(t *testing.T) {
	conn := openDB(t)
	s := seed(t, conn, 5)
	ctx := context.Background()

	req := request(t, ctx, s, 1)
	id, err := s.sales.CreateHeader(ctx, sale.NewHeader(req.Breakdown, sale.PaymentCash, "", "till-1"))
	require.NoError(t, err)
	require.NoError(t, s.sales.CreateLine(ctx, sale.NewLine(id, 0, req.Lines[0], req.Breakdown.Lines[0])))

	err = s.sales.CreateLine(ctx, sale.NewLine(id, 0, req.Lines[0], req.Breakdown.Lines[0]))
	var persistErr *checkout.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, checkout.CauseDuplicate, persistErr.Cause)

	require.NoError(t, s.sales.VoidHeader(ctx, id))
	require.NoError(t, s.sales.VoidHeader(ctx, id))

	_, err = s.sales.Get(ctx, id)
	require.ErrorIs(t, err, sale.ErrNotFound)

	var lines int
	require.NoError(t, conn.Get(&lines, `SELECT count(*) FROM sale_lines WHERE sale_id = ?`, id))
	assert.Zero(t, lines)
}

func TestTradeInStore_Link(t *testing.T) {
	conn := openDB(t)
	s := seed(t, conn, 5)
	ctx := context.Background()

	req := request(t, ctx, s, 1)
	id, err := s.sales.CreateHeader(ctx, sale.NewHeader(req.Breakdown, sale.PaymentCash, "", ""))
	require.NoError(t, err)

	require.NoError(t, s.tradeIns.LinkToSale(ctx, "ti-1", id))
	require.NoError(t, s.tradeIns.LinkToSale(ctx, "ti-1", id))

	err = s.tradeIns.LinkToSale(ctx, "ti-404", id)
	require.ErrorIs(t, err, tradein.ErrNotFound)
	assert.Equal(t, checkout.KindNotFound, checkout.KindOf(err))

	// Unlinking from the wrong sale leaves the link alone.
	require.NoError(t, s.tradeIns.UnlinkFromSale(ctx, "ti-1", "other"))
	got, err := s.tradeIns.GetByIDs(ctx, []string{"ti-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].SaleID)

	require.NoError(t, s.tradeIns.UnlinkFromSale(ctx, "ti-1", id))
	got, err = s.tradeIns.GetByIDs(ctx, []string{"ti-1"})
	require.NoError(t, err)
	assert.Empty(t, got[0].SaleID)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		cause checkout.Cause
		field string
	}{
		{
			name:  "stock constraint",
			err:   errors.New("constraint failed: CHECK constraint failed: qty_on_hand_non_negative (275)"),
			cause: checkout.CauseStockConstraint,
			field: stockConstraint,
		},
		{
			name:  "duplicate",
			err:   errors.New("constraint failed: UNIQUE constraint failed: products.sku (2067)"),
			cause: checkout.CauseDuplicate,
			field: "products.sku",
		},
		{
			name:  "missing field",
			err:   errors.New("constraint failed: NOT NULL constraint failed: sales.payment_method (1299)"),
			cause: checkout.CauseMissingField,
			field: "sales.payment_method",
		},
		{
			name:  "foreign key",
			err:   errors.New("constraint failed: FOREIGN KEY constraint failed (787)"),
			cause: checkout.CauseForeignKey,
		},
		{
			name:  "read only",
			err:   errors.New("attempt to write a readonly database (8)"),
			cause: checkout.CausePermission,
		},
		{
			name:  "locked",
			err:   errors.New("database is locked (5) (SQLITE_BUSY)"),
			cause: checkout.CauseTimeout,
		},
		{
			name:  "deadline",
			err:   errors.Wrap(context.DeadlineExceeded, "exec"),
			cause: checkout.CauseTimeout,
		},
		{
			name:  "unknown",
			err:   errors.New("boom"),
			cause: checkout.CauseUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var persistErr *checkout.PersistenceError
			require.ErrorAs(t, classify("op", tt.err), &persistErr)
			assert.Equal(t, tt.cause, persistErr.Cause)
			assert.Equal(t, tt.field, persistErr.Field)
			assert.ErrorIs(t, persistErr, tt.err)
		})
	}

	assert.NoError(t, classify("op", nil))
}
