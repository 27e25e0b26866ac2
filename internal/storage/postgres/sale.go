package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
)

const (
	createSaleSQL = `INSERT INTO sales (id, subtotal, discount_type, discount_value, discount_total,
			tax_total, gross_total, trade_in_total, net_total, payment_method, notes, register_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	createSaleLineSQL = `INSERT INTO sale_lines (sale_id, position, product_id, unit_price, quantity,
			line_total, discount, tax_rate, tax)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	// Lines go with the header through ON DELETE CASCADE.
	voidSaleSQL = `DELETE FROM sales WHERE id = $1`

	getSaleSQL = `SELECT id, subtotal, discount_type, discount_value, discount_total, tax_total,
			gross_total, trade_in_total, net_total, payment_method, notes, register_id, created_at
		FROM sales WHERE id = $1`

	getSaleLinesSQL = `SELECT sale_id, position, product_id, unit_price, quantity, line_total, discount, tax_rate, tax
		FROM sale_lines WHERE sale_id = $1 ORDER BY position`

	getSaleTradeInsSQL = `SELECT id, title, allowance, customer_reference
		FROM trade_ins WHERE sale_id = $1 ORDER BY id`
)

var _ sale.Store = (*SaleStore)(nil)

// SaleStore implements sale.Store backed by PostgreSQL.
type SaleStore struct {
	pool *pgxpool.Pool
}

// NewSaleStore returns a SaleStore that uses the given pool.
func NewSaleStore(pool *pgxpool.Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

// CreateHeader inserts the sale header and returns its new id.
func (s *SaleStore) CreateHeader(ctx context.Context, h sale.Header) (string, error) {
	id := uuid.NewString()
	_, err := conn(ctx, s.pool).Exec(ctx, createSaleSQL,
		id, h.Subtotal, string(h.DiscountType), h.DiscountValue, h.DiscountTotal,
		h.TaxTotal, h.GrossTotal, h.TradeInTotal, h.NetTotal,
		string(h.PaymentMethod), h.Notes, h.RegisterID, h.CreatedAt,
	)
	if err != nil {
		return "", classify("create sale header", err)
	}
	return id, nil
}

// CreateLine inserts one sale line.
func (s *SaleStore) CreateLine(ctx context.Context, l sale.Line) error {
	_, err := conn(ctx, s.pool).Exec(ctx, createSaleLineSQL,
		l.SaleID, l.Position, l.ProductID, l.UnitPrice, l.Quantity,
		l.LineTotal, l.Discount, l.TaxRate, l.Tax,
	)
	if err != nil {
		return classify(fmt.Sprintf("create sale line %d", l.Position), err)
	}
	return nil
}

// VoidHeader deletes the sale and its lines. Deleting a missing sale
// succeeds.
func (s *SaleStore) VoidHeader(ctx context.Context, saleID string) error {
	if _, err := conn(ctx, s.pool).Exec(ctx, voidSaleSQL, saleID); err != nil {
		return classify("void sale header", err)
	}
	return nil
}

// Get loads a committed sale with its lines, stock movements and trade-ins.
func (s *SaleStore) Get(ctx context.Context, saleID string) (*sale.Committed, error) {
	q := conn(ctx, s.pool)

	rows, err := q.Query(ctx, getSaleSQL, saleID)
	if err != nil {
		return nil, fmt.Errorf("getting sale %q: %w", saleID, err)
	}
	h, err := pgx.CollectExactlyOneRow(rows, scanHeader)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sale.ErrNotFound
		}
		return nil, fmt.Errorf("getting sale %q: %w", saleID, err)
	}
	out := &sale.Committed{Header: h}

	rows, err = q.Query(ctx, getSaleLinesSQL, saleID)
	if err != nil {
		return nil, fmt.Errorf("getting lines of sale %q: %w", saleID, err)
	}
	if out.Lines, err = pgx.CollectRows(rows, scanLine); err != nil {
		return nil, fmt.Errorf("getting lines of sale %q: %w", saleID, err)
	}

	rows, err = q.Query(ctx, movementsByReferenceSQL, saleID, string(stock.ReasonSale))
	if err != nil {
		return nil, fmt.Errorf("getting movements of sale %q: %w", saleID, err)
	}
	if out.Movements, err = pgx.CollectRows(rows, scanMovement); err != nil {
		return nil, fmt.Errorf("getting movements of sale %q: %w", saleID, err)
	}

	rows, err = q.Query(ctx, getSaleTradeInsSQL, saleID)
	if err != nil {
		return nil, fmt.Errorf("getting trade-ins of sale %q: %w", saleID, err)
	}
	if out.TradeIns, err = pgx.CollectRows(rows, scanAllowance); err != nil {
		return nil, fmt.Errorf("getting trade-ins of sale %q: %w", saleID, err)
	}

	return out, nil
}

func scanHeader(row pgx.CollectableRow) (sale.Header, error) {
	var (
		h            sale.Header
		discountType string
		method       string
	)
	err := row.Scan(
		&h.ID, &h.Subtotal, &discountType, &h.DiscountValue, &h.DiscountTotal, &h.TaxTotal,
		&h.GrossTotal, &h.TradeInTotal, &h.NetTotal, &method, &h.Notes, &h.RegisterID, &h.CreatedAt,
	)
	h.DiscountType = pricing.DiscountType(discountType)
	h.PaymentMethod = sale.PaymentMethod(method)
	return h, err
}

func scanLine(row pgx.CollectableRow) (sale.Line, error) {
	var l sale.Line
	err := row.Scan(
		&l.SaleID, &l.Position, &l.ProductID, &l.UnitPrice, &l.Quantity,
		&l.LineTotal, &l.Discount, &l.TaxRate, &l.Tax,
	)
	return l, err
}

func scanAllowance(row pgx.CollectableRow) (pricing.TradeInAllowance, error) {
	var a pricing.TradeInAllowance
	err := row.Scan(&a.ID, &a.Title, &a.Allowance, &a.CustomerReference)
	return a, err
}
