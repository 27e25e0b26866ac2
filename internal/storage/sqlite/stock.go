package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
)

const (
	adjustOnHandSQL = `UPDATE products SET qty_on_hand = qty_on_hand + ?
		WHERE id = ? AND qty_on_hand + ? >= 0`

	insertMovementSQL = `INSERT INTO stock_movements (product_id, delta, reason, reference, created_at)
		VALUES (?, ?, ?, ?, ?)`

	movementsByReferenceSQL = `SELECT product_id, delta, reason, reference, created_at
		FROM stock_movements WHERE reference = ? AND reason = ? ORDER BY id`
)

type movementRow struct {
	ProductID string    `db:"product_id"`
	Delta     int       `db:"delta"`
	Reason    string    `db:"reason"`
	Reference string    `db:"reference"`
	CreatedAt time.Time `db:"created_at"`
}

var _ stock.Store = (*StockStore)(nil)

// StockStore implements stock.Store backed by SQLite.
type StockStore struct {
	db *sqlx.DB
}

// NewStockStore returns a StockStore over conn.
func NewStockStore(conn *sqlx.DB) *StockStore {
	return &StockStore{db: conn}
}

// GetOnHand returns the current quantity of productID. An unknown product
// has nothing on hand.
func (s *StockStore) GetOnHand(ctx context.Context, productID string) (int, error) {
	var qty int
	err := sqlx.GetContext(ctx, ext(ctx, s.db), &qty, `SELECT qty_on_hand FROM products WHERE id = ?`, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, classify(fmt.Sprintf("get on hand %s", productID), err)
	}
	return qty, nil
}

// AppendMovement applies m to the product's on-hand quantity and records it
// in the same transaction.
func (s *StockStore) AppendMovement(ctx context.Context, m stock.Movement) error {
	op := fmt.Sprintf("append %s movement for %s", m.Reason, m.ProductID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	return inTx(ctx, s.db, func(ctx context.Context) error {
		q := ext(ctx, s.db)

		res, err := q.ExecContext(ctx, adjustOnHandSQL, m.Delta, m.ProductID, m.Delta)
		if err != nil {
			return classify(op, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return classify(op, err)
		}
		if n == 0 {
			var exists bool
			if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM products WHERE id = ?)`, m.ProductID); err != nil {
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

		if _, err := q.ExecContext(ctx, insertMovementSQL,
			m.ProductID, m.Delta, string(m.Reason), m.Reference, m.CreatedAt,
		); err != nil {
			return classify(op, err)
		}
		return nil
	})
}

// Movements returns the ledger entries recorded against reference.
func (s *StockStore) Movements(ctx context.Context, reference string, reason stock.Reason) ([]stock.Movement, error) {
	return movements(ctx, ext(ctx, s.db), reference, reason)
}

func movements(ctx context.Context, q sqlx.QueryerContext, reference string, reason stock.Reason) ([]stock.Movement, error) {
	var rows []movementRow
	if err := sqlx.SelectContext(ctx, q, &rows, movementsByReferenceSQL, reference, string(reason)); err != nil {
		return nil, fmt.Errorf("listing movements for %q: %w", reference, err)
	}
	out := make([]stock.Movement, len(rows))
	for i, r := range rows {
		out[i] = stock.Movement{
			ProductID: r.ProductID,
			Delta:     r.Delta,
			Reason:    stock.Reason(r.Reason),
			Reference: r.Reference,
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}
