package checkout

import (
	"context"
	"testing"

	"github.com/cucumber/godog"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
)

type checkoutScenario struct {
	store    *memStore
	guard    *LocalGuard
	lines    []pricing.CartLine
	tradeIns []pricing.TradeInAllowance
	result   *sale.Committed
	err      error
}

func (s *checkoutScenario) productHasInStock(id string, qty int) error {
	s.store.onHand[id] = qty
	return nil
}

func (s *checkoutScenario) theCartHolds(qty int, id, price, tax string) error {
	unit, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	rate, err := decimal.NewFromString(tax)
	if err != nil {
		return err
	}
	s.lines = append(s.lines, pricing.CartLine{
		ProductID:    id,
		UnitPrice:    unit,
		Quantity:     qty,
		TaxRate:      rate,
		StockTracked: true,
	})
	return nil
}

func (s *checkoutScenario) tradeInIsOffered(id, allowance string) error {
	a, err := decimal.NewFromString(allowance)
	if err != nil {
		return err
	}
	s.tradeIns = append(s.tradeIns, pricing.TradeInAllowance{ID: id, Allowance: a})
	return nil
}

func (s *checkoutScenario) saleLinesCannotBeWritten() error {
	s.store.failCreateLine = &PersistenceError{Op: "create sale line", Cause: CauseConnectivity, Err: errors.New("connection reset")}
	return nil
}

func (s *checkoutScenario) registerIsCheckingOut(id string) error {
	_, err := s.guard.Acquire(context.Background(), id)
	return err
}

func (s *checkoutScenario) theRegisterCommits(method string) error {
	b, err := pricing.ComputeTotals(s.lines, nil, s.tradeIns)
	if err != nil {
		return err
	}
	c, err := NewComposer(s.store, s.store, s.store, WithGuard(s.guard))
	if err != nil {
		return err
	}
	s.result, s.err = c.CommitSale(context.Background(), Request{
		Lines:         s.lines,
		TradeIns:      s.tradeIns,
		Breakdown:     b,
		PaymentMethod: sale.PaymentMethod(method),
		RegisterID:    "till-1",
	})
	return nil
}

func (s *checkoutScenario) checkoutFailsWithShortfall(id string, requested, available int) error {
	var stockErr *stock.InsufficientStockError
	if !errors.As(s.err, &stockErr) {
		return errors.Errorf("expected shortfall, got %v", s.err)
	}
	for _, sf := range stockErr.Shortfalls {
		if sf.ProductID == id && sf.Requested == requested && sf.Available == available {
			return nil
		}
	}
	return errors.Errorf("no matching shortfall in %v", stockErr.Shortfalls)
}

func (s *checkoutScenario) checkoutFails() error {
	if s.err == nil {
		return errors.New("expected checkout to fail")
	}
	return nil
}

func (s *checkoutScenario) checkoutInProgress() error {
	if !errors.Is(s.err, ErrCheckoutInProgress) {
		return errors.Errorf("expected in-progress rejection, got %v", s.err)
	}
	return nil
}

func (s *checkoutScenario) noSaleWasRecorded() error {
	if len(s.store.headers) != 0 || len(s.store.lines) != 0 {
		return errors.Errorf("found %d headers and %d line sets", len(s.store.headers), len(s.store.lines))
	}
	return nil
}

func (s *checkoutScenario) saleRecordedWithNet(net string) error {
	if s.err != nil {
		return errors.Wrap(s.err, "expected commit")
	}
	want, err := decimal.NewFromString(net)
	if err != nil {
		return err
	}
	if _, ok := s.store.headers[s.result.ID]; !ok {
		return errors.Errorf("sale %s not stored", s.result.ID)
	}
	if !s.result.NetTotal.Equal(want) {
		return errors.Errorf("net total: want %s, got %s", want, s.result.NetTotal)
	}
	return nil
}

func (s *checkoutScenario) tradeInIsLinked(id string) error {
	if got := s.store.links[id]; got != s.result.ID {
		return errors.Errorf("trade-in %s linked to %q, want %q", id, got, s.result.ID)
	}
	return nil
}

func (s *checkoutScenario) productStillHas(id string, qty int) error {
	if got := s.store.onHand[id]; got != qty {
		return errors.Errorf("%s on hand: want %d, got %d", id, qty, got)
	}
	return nil
}

func initializeCheckoutScenario(ctx *godog.ScenarioContext) {
	s := &checkoutScenario{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*s = checkoutScenario{
			store: newMemStore(map[string]int{}),
			guard: NewLocalGuard(),
		}
		return ctx, nil
	})

	ctx.Step(`^product "([^"]*)" has (\d+) in stock$`, s.productHasInStock)
	ctx.Step(`^the cart holds (\d+) of "([^"]*)" priced ([\d.]+) with tax ([\d.]+)%$`, s.theCartHolds)
	ctx.Step(`^trade-in "([^"]*)" worth ([\d.]+) is offered$`, s.tradeInIsOffered)
	ctx.Step(`^sale lines cannot be written$`, s.saleLinesCannotBeWritten)
	ctx.Step(`^register "([^"]*)" is already checking out$`, s.registerIsCheckingOut)
	ctx.Step(`^the register commits the sale paying by (\w+)$`, s.theRegisterCommits)
	ctx.Step(`^the checkout fails with a shortfall of "([^"]*)": requested (\d+), available (\d+)$`, s.checkoutFailsWithShortfall)
	ctx.Step(`^the checkout fails$`, s.checkoutFails)
	ctx.Step(`^the checkout is rejected as already in progress$`, s.checkoutInProgress)
	ctx.Step(`^no sale was recorded$`, s.noSaleWasRecorded)
	ctx.Step(`^the sale is recorded with net total (-?[\d.]+)$`, s.saleRecordedWithNet)
	ctx.Step(`^trade-in "([^"]*)" is linked to the sale$`, s.tradeInIsLinked)
	ctx.Step(`^product "([^"]*)" ends with (\d+) in stock$`, s.productStillHas)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeCheckoutScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/checkout.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
