package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/domain/tradein"
)

const (
	createTradeInSQL = `INSERT INTO trade_ins (id, title, allowance, customer_reference, received_at)
		VALUES (?, ?, ?, ?, ?)`

	linkTradeInSQL = `UPDATE trade_ins SET sale_id = ?
		WHERE id = ? AND (sale_id IS NULL OR sale_id = ?)`
)

type tradeInRow struct {
	ID                string          `db:"id"`
	Title             string          `db:"title"`
	Allowance         decimal.Decimal `db:"allowance"`
	CustomerReference string          `db:"customer_reference"`
	SaleID            sql.NullString  `db:"sale_id"`
	ReceivedAt        time.Time       `db:"received_at"`
}

var (
	_ tradein.Store      = (*TradeInStore)(nil)
	_ tradein.Repository = (*TradeInStore)(nil)
)

// TradeInStore implements tradein.Store and tradein.Repository backed by
// SQLite.
type TradeInStore struct {
	db *sqlx.DB
}

// NewTradeInStore returns a TradeInStore over conn.
func NewTradeInStore(conn *sqlx.DB) *TradeInStore {
	return &TradeInStore{db: conn}
}

// Create records a trade-in received from a customer.
func (s *TradeInStore) Create(ctx context.Context, t tradein.TradeIn) error {
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = time.Now()
	}
	_, err := ext(ctx, s.db).ExecContext(ctx, createTradeInSQL,
		t.ID, t.Title, t.Allowance, t.CustomerReference, t.ReceivedAt.UTC(),
	)
	if err != nil {
		return classify(fmt.Sprintf("create trade-in %s", t.ID), err)
	}
	return nil
}

// GetByIDs returns trade-ins matching any of the given IDs.
func (s *TradeInStore) GetByIDs(ctx context.Context, ids []string) ([]tradein.TradeIn, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, title, allowance, customer_reference, sale_id, received_at
		FROM trade_ins WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building trade-in query: %w", err)
	}

	var rows []tradeInRow
	if err := sqlx.SelectContext(ctx, ext(ctx, s.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("getting trade-ins by ids: %w", err)
	}

	out := make([]tradein.TradeIn, len(rows))
	for i, r := range rows {
		out[i] = tradein.TradeIn{
			ID:                r.ID,
			Title:             r.Title,
			Allowance:         r.Allowance,
			CustomerReference: r.CustomerReference,
			SaleID:            r.SaleID.String,
			ReceivedAt:        r.ReceivedAt,
		}
	}
	return out, nil
}

// LinkToSale credits the trade-in to saleID. Linking it to the same sale
// twice succeeds; linking it to a different sale fails.
func (s *TradeInStore) LinkToSale(ctx context.Context, tradeInID, saleID string) error {
	op := fmt.Sprintf("link trade-in %s", tradeInID)
	q := ext(ctx, s.db)

	res, err := q.ExecContext(ctx, linkTradeInSQL, saleID, tradeInID, saleID)
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM trade_ins WHERE id = ?)`, tradeInID); err != nil {
		return classify(op, err)
	}
	if !exists {
		return &checkout.PersistenceError{Op: op, Cause: checkout.CauseForeignKey, Field: "trade_in_id", Err: tradein.ErrNotFound}
	}
	return &checkout.PersistenceError{Op: op, Cause: checkout.CauseDuplicate, Field: "sale_id", Err: tradein.ErrAlreadyLinked}
}

// UnlinkFromSale clears the link only if it points at saleID.
func (s *TradeInStore) UnlinkFromSale(ctx context.Context, tradeInID, saleID string) error {
	_, err := ext(ctx, s.db).ExecContext(ctx, `UPDATE trade_ins SET sale_id = NULL WHERE id = ? AND sale_id = ?`, tradeInID, saleID)
	if err != nil {
		return classify(fmt.Sprintf("unlink trade-in %s", tradeInID), err)
	}
	return nil
}
