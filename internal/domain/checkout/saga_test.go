package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/product"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
	"github.com/xenking/jewellery-pos/internal/domain/tradein"
)

func TestSaga_RollbackNewestFirstOnce(t *testing.T) {
	var order []string
	s := &saga{}
	for _, name := range []string{"header", "stock", "trade-in"} {
		s.add(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, s.rollback(context.Background()))
	require.NoError(t, s.rollback(context.Background()))
	assert.Equal(t, []string{"trade-in", "stock", "header"}, order)
}

func TestSaga_RollbackContinuesPastFailures(t *testing.T) {
	var ran []string
	s := &saga{}
	s.add("header", func(context.Context) error {
		ran = append(ran, "header")
		return errors.New("gone")
	})
	s.add("stock", func(context.Context) error {
		ran = append(ran, "stock")
		return nil
	})
	s.add("trade-in", func(context.Context) error {
		ran = append(ran, "trade-in")
		return errors.New("locked")
	})

	err := s.rollback(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"trade-in", "stock", "header"}, ran)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "trade-in: locked")
	assert.EqualError(t, errs[1], "header: gone")
}

func TestSaga_EmptyRollback(t *testing.T) {
	assert.NoError(t, (&saga{}).rollback(context.Background()))
}

func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()
	ctx := context.Background()

	release, err := g.Acquire(ctx, "till-1")
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "till-1")
	require.ErrorIs(t, err, ErrCheckoutInProgress)

	other, err := g.Acquire(ctx, "till-2")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := g.Acquire(ctx, "till-1")
	require.NoError(t, err)
	again()
}

func TestLocalGuard_Concurrent(t *testing.T) {
	g := NewLocalGuard()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
		releases []func()
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background(), "till-1")
			if err != nil {
				return
			}
			mu.Lock()
			acquired++
			releases = append(releases, release)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
	for _, r := range releases {
		r()
	}
}

func TestKindOf(t *testing.T) {
	persist := &PersistenceError{Op: "insert", Cause: CauseTimeout, Err: errors.New("deadline")}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "validation", err: &pricing.ValidationError{Field: "lines.quantity", Index: 0}, want: KindValidation},
		{name: "shortfall", err: errors.Wrap(&stock.InsufficientStockError{}, "gate"), want: KindInsufficientStock},
		{name: "in progress", err: ErrCheckoutInProgress, want: KindInProgress},
		{name: "persistence", err: errors.Wrap(persist, "create sale header"), want: KindPersistence},
		{name: "partial commit wins over its cause", err: &PartialCommitError{SaleID: "s", Cause: persist, RollbackErr: errors.New("x")}, want: KindPartialCommit},
		{name: "missing product", err: &product.NotFoundError{ProductID: "p"}, want: KindNotFound},
		{name: "missing trade-in", err: errors.Wrap(tradein.ErrNotFound, "trade-in t"), want: KindNotFound},
		{name: "missing sale", err: sale.ErrNotFound, want: KindNotFound},
		{name: "trade-in already used", err: tradein.ErrAlreadyLinked, want: KindConflict},
		{name: "anything else", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestPersistenceError(t *testing.T) {
	inner := errors.New("duplicate key")
	err := &PersistenceError{Op: "create sale header", Cause: CauseDuplicate, Field: "sales_pkey", Err: inner}

	assert.Equal(t, "create sale header: duplicate (sales_pkey): duplicate key", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.False(t, err.Cause.Transient())
	assert.True(t, CauseTimeout.Transient())
	assert.True(t, CauseConnectivity.Transient())
}
