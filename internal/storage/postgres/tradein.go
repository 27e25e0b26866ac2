package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/domain/tradein"
)

const (
	createTradeInSQL = `INSERT INTO trade_ins (id, title, allowance, customer_reference, received_at)
		VALUES ($1, $2, $3, $4, $5)`

	getTradeInsByIDsSQL = `SELECT id, title, allowance, customer_reference, COALESCE(sale_id, ''), received_at
		FROM trade_ins WHERE id = ANY($1)`

	linkTradeInSQL = `UPDATE trade_ins SET sale_id = $2
		WHERE id = $1 AND (sale_id IS NULL OR sale_id = $2)`

	unlinkTradeInSQL = `UPDATE trade_ins SET sale_id = NULL WHERE id = $1 AND sale_id = $2`

	tradeInExistsSQL = `SELECT EXISTS (SELECT 1 FROM trade_ins WHERE id = $1)`
)

var (
	_ tradein.Store      = (*TradeInStore)(nil)
	_ tradein.Repository = (*TradeInStore)(nil)
)

// TradeInStore implements tradein.Store and tradein.Repository backed by
// PostgreSQL.
type TradeInStore struct {
	pool *pgxpool.Pool
}

// NewTradeInStore returns a TradeInStore that uses the given pool.
func NewTradeInStore(pool *pgxpool.Pool) *TradeInStore {
	return &TradeInStore{pool: pool}
}

// Create records a trade-in received from a customer.
func (s *TradeInStore) Create(ctx context.Context, t tradein.TradeIn) error {
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = time.Now()
	}
	_, err := conn(ctx, s.pool).Exec(ctx, createTradeInSQL,
		t.ID, t.Title, t.Allowance, t.CustomerReference, t.ReceivedAt,
	)
	if err != nil {
		return classify(fmt.Sprintf("create trade-in %s", t.ID), err)
	}
	return nil
}

// GetByIDs returns trade-ins matching any of the given IDs.
func (s *TradeInStore) GetByIDs(ctx context.Context, ids []string) ([]tradein.TradeIn, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, getTradeInsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting trade-ins by ids: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (tradein.TradeIn, error) {
		var t tradein.TradeIn
		err := row.Scan(&t.ID, &t.Title, &t.Allowance, &t.CustomerReference, &t.SaleID, &t.ReceivedAt)
		return t, err
	})
}

// LinkToSale credits the trade-in to saleID. Linking it to the same sale
// twice succeeds; linking it to a different sale fails.
func (s *TradeInStore) LinkToSale(ctx context.Context, tradeInID, saleID string) error {
	op := fmt.Sprintf("link trade-in %s", tradeInID)
	q := conn(ctx, s.pool)

	tag, err := q.Exec(ctx, linkTradeInSQL, tradeInID, saleID)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, tradeInExistsSQL, tradeInID).Scan(&exists); err != nil {
		return classify(op, err)
	}
	if !exists {
		return &checkout.PersistenceError{Op: op, Cause: checkout.CauseForeignKey, Field: "trade_in_id", Err: tradein.ErrNotFound}
	}
	return &checkout.PersistenceError{Op: op, Cause: checkout.CauseDuplicate, Field: "sale_id", Err: tradein.ErrAlreadyLinked}
}

// UnlinkFromSale clears the link only if it points at saleID.
func (s *TradeInStore) UnlinkFromSale(ctx context.Context, tradeInID, saleID string) error {
	if _, err := conn(ctx, s.pool).Exec(ctx, unlinkTradeInSQL, tradeInID, saleID); err != nil {
		return classify(fmt.Sprintf("unlink trade-in %s", tradeInID), err)
	}
	return nil
}
