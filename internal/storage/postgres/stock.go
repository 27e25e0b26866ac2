package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
)

const (
	getOnHandSQL = `SELECT qty_on_hand FROM products WHERE id = $1`

	// The conditional update and the ledger insert run as one statement, so
	// a movement is never recorded without its quantity change.
	appendMovementSQL = `WITH moved AS (
			UPDATE products SET qty_on_hand = qty_on_hand + $2
			WHERE id = $1 AND qty_on_hand + $2 >= 0
			RETURNING id
		)
		INSERT INTO stock_movements (product_id, delta, reason, reference, created_at)
		SELECT id, $2, $3, $4, $5 FROM moved`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	movementsByReferenceSQL = `SELECT product_id, delta, reason, reference, created_at
		FROM stock_movements WHERE reference = $1 AND reason = $2 ORDER BY id`
)

var _ stock.Store = (*StockStore)(nil)

// StockStore implements stock.Store on the products.qty_on_hand column and
// the stock_movements ledger.
type StockStore struct {
	pool *pgxpool.Pool
}

// NewStockStore returns a StockStore that uses the given pool.
func NewStockStore(pool *pgxpool.Pool) *StockStore {
	return &StockStore{pool: pool}
}

// GetOnHand returns the current quantity of productID. An unknown product
// has nothing on hand.
func (s *StockStore) GetOnHand(ctx context.Context, productID string) (int, error) {
	var qty int
	err := conn(ctx, s.pool).QueryRow(ctx, getOnHandSQL, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, classify(fmt.Sprintf("get on hand %s", productID), err)
	}
	return qty, nil
}

// AppendMovement applies m to the product's on-hand quantity and records it.
// A movement that would take on-hand below zero fails with
// checkout.CauseStockConstraint.
func (s *StockStore) AppendMovement(ctx context.Context, m stock.Movement) error {
	op := fmt.Sprintf("append %s movement for %s", m.Reason, m.ProductID)
	q := conn(ctx, s.pool)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	tag, err := q.Exec(ctx, appendMovementSQL, m.ProductID, m.Delta, string(m.Reason), m.Reference, m.CreatedAt)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, productExistsSQL, m.ProductID).Scan(&exists); err != nil {
		return classify(op, err)
	}
	if !exists {
		return &checkout.PersistenceError{
			Op:    op,
			Cause: checkout.CauseForeignKey,
			Field: "product_id",
			Err:   errors.Errorf("product %s does not exist", m.ProductID),
		}
	}
	return &checkout.PersistenceError{
		Op:    op,
		Cause: checkout.CauseStockConstraint,
		Field: m.ProductID,
		Err:   errors.New(stockConstraint),
	}
}

// Movements returns the ledger entries recorded against reference.
func (s *StockStore) Movements(ctx context.Context, reference string, reason stock.Reason) ([]stock.Movement, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, movementsByReferenceSQL, reference, string(reason))
	if err != nil {
		return nil, fmt.Errorf("listing movements for %q: %w", reference, err)
	}
	return pgx.CollectRows(rows, scanMovement)
}

func scanMovement(row pgx.CollectableRow) (stock.Movement, error) {
	var (
		m      stock.Movement
		reason string
	)
	err := row.Scan(&m.ProductID, &m.Delta, &reason, &m.Reference, &m.CreatedAt)
	m.Reason = stock.Reason(reason)
	return m, err
}
