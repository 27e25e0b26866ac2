package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"
)

// Transactor runs fn inside a single storage transaction. Stores used from
// fn must pick the transaction up from the context it receives.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// saga records how to undo each completed write. rollback runs the undo
// steps newest first, exactly once.
type saga struct {
	saleID  string
	steps   []compensation
	settled bool
}

func (s *saga) add(name string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, compensation{name: name, undo: undo})
}

// rollback keeps going after a failed step and returns every failure.
func (s *saga) rollback(ctx context.Context) error {
	if s.settled {
		return nil
	}
	s.settled = true

	var errs error
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, step.name))
		}
	}
	return errs
}
