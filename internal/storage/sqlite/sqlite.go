// Package sqlite implements the checkout stores on a local SQLite file for
// a single-register shop running without a database server.
package sqlite

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/xenking/jewellery-pos/db"
	"github.com/xenking/jewellery-pos/internal/domain/checkout"
)

// Open connects to the SQLite database at dsn and applies the schema.
// SQLite allows one writer, so the pool is limited to a single connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if !strings.Contains(dsn, "_pragma=foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)"
	}

	conn, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect sqlite")
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, db.SQLiteSchema); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "apply sqlite schema")
	}
	return conn, nil
}

type txKey struct{}

// ext returns the transaction carried by ctx, or the database.
func ext(ctx context.Context, conn *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return conn
}

var _ checkout.Transactor = (*Transactor)(nil)

// Transactor runs checkout writes in a single SQLite transaction.
type Transactor struct {
	db *sqlx.DB
}

// NewTransactor returns a Transactor over conn.
func NewTransactor(conn *sqlx.DB) *Transactor {
	return &Transactor{db: conn}
}

// InTx runs fn in a transaction, reusing one already carried by ctx.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return inTx(ctx, t.db, fn)
}

func inTx(ctx context.Context, conn *sqlx.DB, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}
