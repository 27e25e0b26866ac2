package checkout

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/product"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
	"github.com/xenking/jewellery-pos/internal/domain/tradein"
)

// ErrCheckoutInProgress is returned when a register submits a checkout while
// its previous one is still being committed.
var ErrCheckoutInProgress = errors.New("checkout already in progress")

// Cause classifies a storage failure.
type Cause string

const (
	CauseDuplicate       Cause = "duplicate"
	CauseMissingField    Cause = "missing_field"
	CauseForeignKey      Cause = "foreign_key"
	CausePermission      Cause = "permission"
	CauseConnectivity    Cause = "connectivity"
	CauseTimeout         Cause = "timeout"
	CauseStockConstraint Cause = "stock_constraint"
	CauseUnknown         Cause = "unknown"
)

// Transient reports whether the failure is likely to clear on its own.
func (c Cause) Transient() bool {
	return c == CauseConnectivity || c == CauseTimeout
}

// PersistenceError is a classified storage failure. Field names the column,
// constraint or, for CauseStockConstraint, the product involved.
type PersistenceError struct {
	Op    string
	Cause Cause
	Field string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Cause, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Cause, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PartialCommitError means a checkout failed and rolling it back failed too,
// so some of its records may remain. It needs manual reconciliation.
type PartialCommitError struct {
	SaleID      string
	Cause       error
	RollbackErr error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("sale %s partially committed: %v (rollback: %v)", e.SaleID, e.Cause, e.RollbackErr)
}

func (e *PartialCommitError) Unwrap() []error {
	return []error{e.Cause, e.RollbackErr}
}

// Kind is the outcome category of a checkout error.
type Kind string

const (
	KindNone              Kind = "none"
	KindValidation        Kind = "validation"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInProgress        Kind = "in_progress"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindPersistence       Kind = "persistence"
	KindPartialCommit     Kind = "partial_commit"
	KindUnknown           Kind = "unknown"
)

// KindOf maps err onto the checkout error taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		partialErr *PartialCommitError
		validErr   *pricing.ValidationError
		stockErr   *stock.InsufficientStockError
		persistErr *PersistenceError
	)
	switch {
	case errors.As(err, &partialErr):
		return KindPartialCommit
	case errors.As(err, &validErr):
		return KindValidation
	case errors.As(err, &stockErr):
		return KindInsufficientStock
	case errors.Is(err, ErrCheckoutInProgress):
		return KindInProgress
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, tradein.ErrNotFound),
		errors.Is(err, sale.ErrNotFound):
		return KindNotFound
	case errors.Is(err, tradein.ErrAlreadyLinked):
		return KindConflict
	case errors.As(err, &persistErr):
		return KindPersistence
	default:
		return KindUnknown
	}
}
