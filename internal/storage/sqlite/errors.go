package sqlite

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
)

const stockConstraint = "qty_on_hand_non_negative"

// classify wraps err in a *checkout.PersistenceError. SQLite reports the
// violated constraint only in the message text, e.g.
// "constraint failed: NOT NULL constraint failed: sales.payment_method (1299)".
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	pErr := &checkout.PersistenceError{Op: op, Cause: checkout.CauseUnknown, Err: err}
	msg := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		pErr.Cause = checkout.CauseTimeout
	case strings.Contains(msg, "CHECK constraint failed: "+stockConstraint):
		pErr.Cause = checkout.CauseStockConstraint
		pErr.Field = stockConstraint
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "PRIMARY KEY constraint failed"):
		pErr.Cause = checkout.CauseDuplicate
		pErr.Field = constraintSubject(msg, "constraint failed: ")
	case strings.Contains(msg, "NOT NULL constraint failed"):
		pErr.Cause = checkout.CauseMissingField
		pErr.Field = constraintSubject(msg, "NOT NULL constraint failed: ")
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		pErr.Cause = checkout.CauseForeignKey
	case strings.Contains(msg, "attempt to write a readonly database"),
		strings.Contains(msg, "access permission denied"):
		pErr.Cause = checkout.CausePermission
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"):
		pErr.Cause = checkout.CauseTimeout
	case strings.Contains(msg, "unable to open database"),
		strings.Contains(msg, "disk I/O error"),
		strings.Contains(msg, "sql: database is closed"):
		pErr.Cause = checkout.CauseConnectivity
	}
	return pErr
}

// constraintSubject extracts "table.column" following the last marker.
func constraintSubject(msg, marker string) string {
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if j := strings.IndexAny(rest, " ,("); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
