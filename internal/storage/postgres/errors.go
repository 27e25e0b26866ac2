package postgres

import (
	"context"
	"net"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
)

// SQLSTATE codes the checkout cares about.
const (
	codeUniqueViolation       = "23505"
	codeNotNullViolation      = "23502"
	codeForeignKeyViolation   = "23503"
	codeCheckViolation        = "23514"
	codeInsufficientPrivilege = "42501"
	codeQueryCanceled         = "57014"
)

const stockConstraint = "qty_on_hand_non_negative"

// classify wraps err in a *checkout.PersistenceError describing its cause.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	pErr := &checkout.PersistenceError{Op: op, Cause: checkout.CauseUnknown, Err: err}

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		pErr.Field = pgErr.ConstraintName
		switch pgErr.Code {
		case codeUniqueViolation:
			pErr.Cause = checkout.CauseDuplicate
		case codeNotNullViolation:
			pErr.Cause = checkout.CauseMissingField
			pErr.Field = pgErr.ColumnName
		case codeForeignKeyViolation:
			pErr.Cause = checkout.CauseForeignKey
		case codeInsufficientPrivilege:
			pErr.Cause = checkout.CausePermission
		case codeCheckViolation:
			if pgErr.ConstraintName == stockConstraint {
				pErr.Cause = checkout.CauseStockConstraint
			}
		case codeQueryCanceled:
			pErr.Cause = checkout.CauseTimeout
		default:
			// Class 08: connection exception.
			if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
				pErr.Cause = checkout.CauseConnectivity
			}
		}
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		pErr.Cause = checkout.CauseTimeout
	case isConnectivity(err):
		pErr.Cause = checkout.CauseConnectivity
	}
	return pErr
}

func isConnectivity(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
