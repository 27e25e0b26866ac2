package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
)

const (
	createSaleSQL = `INSERT INTO sales (id, subtotal, discount_type, discount_value, discount_total,
			tax_total, gross_total, trade_in_total, net_total, payment_method, notes, register_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	createSaleLineSQL = `INSERT INTO sale_lines (sale_id, position, product_id, unit_price, quantity,
			line_total, discount, tax_rate, tax)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	getSaleSQL = `SELECT id, subtotal, discount_type, discount_value, discount_total, tax_total,
			gross_total, trade_in_total, net_total, payment_method, notes, register_id, created_at
		FROM sales WHERE id = ?`

	getSaleLinesSQL = `SELECT sale_id, position, product_id, unit_price, quantity, line_total, discount, tax_rate, tax
		FROM sale_lines WHERE sale_id = ? ORDER BY position`

	getSaleTradeInsSQL = `SELECT id, title, allowance, customer_reference
		FROM trade_ins WHERE sale_id = ? ORDER BY id`
)

type headerRow struct {
	ID            string          `db:"id"`
	Subtotal      decimal.Decimal `db:"subtotal"`
	DiscountType  string          `db:"discount_type"`
	DiscountValue decimal.Decimal `db:"discount_value"`
	DiscountTotal decimal.Decimal `db:"discount_total"`
	TaxTotal      decimal.Decimal `db:"tax_total"`
	GrossTotal    decimal.Decimal `db:"gross_total"`
	TradeInTotal  decimal.Decimal `db:"trade_in_total"`
	NetTotal      decimal.Decimal `db:"net_total"`
	PaymentMethod string          `db:"payment_method"`
	Notes         string          `db:"notes"`
	RegisterID    string          `db:"register_id"`
	CreatedAt     time.Time       `db:"created_at"`
}

type lineRow struct {
	SaleID    string          `db:"sale_id"`
	Position  int             `db:"position"`
	ProductID string          `db:"product_id"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	Quantity  int             `db:"quantity"`
	LineTotal decimal.Decimal `db:"line_total"`
	Discount  decimal.Decimal `db:"discount"`
	TaxRate   decimal.Decimal `db:"tax_rate"`
	Tax       decimal.Decimal `db:"tax"`
}

type allowanceRow struct {
	ID                string          `db:"id"`
	Title             string          `db:"title"`
	Allowance         decimal.Decimal `db:"allowance"`
	CustomerReference string          `db:"customer_reference"`
}

var _ sale.Store = (*SaleStore)(nil)

// SaleStore implements sale.Store backed by SQLite.
type SaleStore struct {
	db *sqlx.DB
}

// NewSaleStore returns a SaleStore over conn.
func NewSaleStore(conn *sqlx.DB) *SaleStore {
	return &SaleStore{db: conn}
}

// CreateHeader inserts the sale header and returns its new id.
func (s *SaleStore) CreateHeader(ctx context.Context, h sale.Header) (string, error) {
	id := uuid.NewString()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	_, err := ext(ctx, s.db).ExecContext(ctx, createSaleSQL,
		id, h.Subtotal, string(h.DiscountType), h.DiscountValue, h.DiscountTotal,
		h.TaxTotal, h.GrossTotal, h.TradeInTotal, h.NetTotal,
		string(h.PaymentMethod), h.Notes, h.RegisterID, h.CreatedAt.UTC(),
	)
	if err != nil {
		return "", classify("create sale header", err)
	}
	return id, nil
}

// CreateLine inserts one sale line.
func (s *SaleStore) CreateLine(ctx context.Context, l sale.Line) error {
	_, err := ext(ctx, s.db).ExecContext(ctx, createSaleLineSQL,
		l.SaleID, l.Position, l.ProductID, l.UnitPrice, l.Quantity,
		l.LineTotal, l.Discount, l.TaxRate, l.Tax,
	)
	if err != nil {
		return classify(fmt.Sprintf("create sale line %d", l.Position), err)
	}
	return nil
}

// VoidHeader deletes the sale; its lines cascade. Deleting a missing sale
// succeeds.
func (s *SaleStore) VoidHeader(ctx context.Context, saleID string) error {
	if _, err := ext(ctx, s.db).ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, saleID); err != nil {
		return classify("void sale header", err)
	}
	return nil
}

// Get loads a committed sale with its lines, stock movements and trade-ins.
func (s *SaleStore) Get(ctx context.Context, saleID string) (*sale.Committed, error) {
	q := ext(ctx, s.db)

	var h headerRow
	if err := sqlx.GetContext(ctx, q, &h, getSaleSQL, saleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sale.ErrNotFound
		}
		return nil, fmt.Errorf("getting sale %q: %w", saleID, err)
	}
	out := &sale.Committed{Header: sale.Header{
		ID:            h.ID,
		Subtotal:      h.Subtotal,
		DiscountType:  pricing.DiscountType(h.DiscountType),
		DiscountValue: h.DiscountValue,
		DiscountTotal: h.DiscountTotal,
		TaxTotal:      h.TaxTotal,
		GrossTotal:    h.GrossTotal,
		TradeInTotal:  h.TradeInTotal,
		NetTotal:      h.NetTotal,
		PaymentMethod: sale.PaymentMethod(h.PaymentMethod),
		Notes:         h.Notes,
		RegisterID:    h.RegisterID,
		CreatedAt:     h.CreatedAt,
	}}

	var lines []lineRow
	if err := sqlx.SelectContext(ctx, q, &lines, getSaleLinesSQL, saleID); err != nil {
		return nil, fmt.Errorf("getting lines of sale %q: %w", saleID, err)
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, sale.Line(l))
	}

	var err error
	if out.Movements, err = movements(ctx, q, saleID, stock.ReasonSale); err != nil {
		return nil, err
	}

	var allowances []allowanceRow
	if err := sqlx.SelectContext(ctx, q, &allowances, getSaleTradeInsSQL, saleID); err != nil {
		return nil, fmt.Errorf("getting trade-ins of sale %q: %w", saleID, err)
	}
	for _, a := range allowances {
		out.TradeIns = append(out.TradeIns, pricing.TradeInAllowance(a))
	}

	return out, nil
}
