// Package checkout commits a quoted cart as one sale: header, lines, stock
// deductions and trade-in links, all or nothing.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/jewellery-pos/internal/domain/receipt"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
	"github.com/xenking/jewellery-pos/internal/domain/tradein"
)

const instrumentationName = "github.com/xenking/jewellery-pos/internal/domain/checkout"

// Composer commits sales.
//
// With a Transactor every write happens in one transaction. Without one the
// writes form a saga: each completed write registers a compensation, and on
// failure the compensations run newest first.
type Composer struct {
	sales     sale.Store
	stock     stock.Store
	tradeIns  tradein.Store
	gate      *stock.Gate
	tx        Transactor
	guard     Guard
	publisher receipt.Publisher

	tracerProvider  trace.TracerProvider
	meterProvider   metric.MeterProvider
	tracer          trace.Tracer
	commits         metric.Int64Counter
	rollbacks       metric.Int64Counter
	now             func() time.Time
	rollbackTimeout time.Duration
}

// Option configures a Composer.
type Option func(*Composer)

// WithTransactor makes the composer write every record in one transaction.
func WithTransactor(tx Transactor) Option {
	return func(c *Composer) { c.tx = tx }
}

// WithGuard replaces the in-process duplicate submission guard.
func WithGuard(g Guard) Option {
	return func(c *Composer) { c.guard = g }
}

// WithPublisher sets where committed sales are announced.
func WithPublisher(p receipt.Publisher) Option {
	return func(c *Composer) { c.publisher = p }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Composer) { c.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Composer) { c.meterProvider = mp }
}

// WithClock overrides the sale timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// WithRollbackTimeout bounds the time spent compensating a failed checkout.
func WithRollbackTimeout(d time.Duration) Option {
	return func(c *Composer) { c.rollbackTimeout = d }
}

// NewComposer creates a Composer over the given stores.
func NewComposer(sales sale.Store, stk stock.Store, tradeIns tradein.Store, opts ...Option) (*Composer, error) {
	c := &Composer{
		sales:           sales,
		stock:           stk,
		tradeIns:        tradeIns,
		gate:            stock.NewGate(stk),
		guard:           NewLocalGuard(),
		tracerProvider:  tracenoop.NewTracerProvider(),
		meterProvider:   metricnoop.NewMeterProvider(),
		now:             time.Now,
		rollbackTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}

	c.tracer = c.tracerProvider.Tracer(instrumentationName)
	meter := c.meterProvider.Meter(instrumentationName)

	var err error
	if c.commits, err = meter.Int64Counter("pos.checkout.attempts",
		metric.WithDescription("Checkout attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "create attempts counter")
	}
	if c.rollbacks, err = meter.Int64Counter("pos.checkout.rollbacks",
		metric.WithDescription("Checkouts rolled back after a write failed"),
	); err != nil {
		return nil, errors.Wrap(err, "create rollbacks counter")
	}

	return c, nil
}

// CommitSale validates req, re-checks stock and writes the sale. It returns
// *pricing.ValidationError, *stock.InsufficientStockError,
// ErrCheckoutInProgress, *PersistenceError or *PartialCommitError on failure.
// Nothing is retried.
func (c *Composer) CommitSale(ctx context.Context, req Request) (_ *sale.Committed, rerr error) {
	ctx, span := c.tracer.Start(ctx, "checkout.CommitSale",
		trace.WithAttributes(
			attribute.String("pos.register_id", req.RegisterID),
			attribute.Int("pos.lines", len(req.Lines)),
			attribute.Int("pos.trade_ins", len(req.TradeIns)),
		),
	)
	defer func() {
		outcome := "committed"
		if rerr != nil {
			outcome = string(KindOf(rerr))
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		c.commits.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.RegisterID != "" {
		release, err := c.guard.Acquire(ctx, req.RegisterID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	if err := c.gate.Check(ctx, req.Lines); err != nil {
		return nil, err
	}

	committed, err := c.persist(ctx, req)
	if err != nil {
		return nil, c.reclassify(ctx, req, err)
	}
	span.SetAttributes(attribute.String("pos.sale_id", committed.ID))

	zctx.From(ctx).Info("Sale committed",
		zap.String("sale_id", committed.ID),
		zap.String("register_id", req.RegisterID),
		zap.String("net_total", committed.NetTotal.StringFixed(2)),
	)

	c.publish(ctx, committed)
	return committed, nil
}

func (c *Composer) persist(ctx context.Context, req Request) (*sale.Committed, error) {
	if c.tx != nil {
		var committed *sale.Committed
		err := c.tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			committed, err = c.write(ctx, req, &saga{})
			return err
		})
		if err != nil {
			c.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", "transaction")))
			return nil, err
		}
		return committed, nil
	}

	s := &saga{}
	committed, err := c.write(ctx, req, s)
	if err == nil {
		return committed, nil
	}
	c.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", "saga")))

	// Compensate even if the caller has gone away.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.rollbackTimeout)
	defer cancel()

	lg := zctx.From(ctx)
	if rbErr := s.rollback(rctx); rbErr != nil {
		lg.Error("Checkout rollback failed, sale left partially committed",
			zap.String("sale_id", s.saleID),
			zap.Error(err),
			zap.NamedError("rollback_error", rbErr),
		)
		return nil, &PartialCommitError{SaleID: s.saleID, Cause: err, RollbackErr: rbErr}
	}
	lg.Warn("Checkout rolled back", zap.String("sale_id", s.saleID), zap.Error(err))
	return nil, err
}

// write creates the header, lines, stock deductions and trade-in links,
// registering a compensation on s after each one.
func (c *Composer) write(ctx context.Context, req Request, s *saga) (*sale.Committed, error) {
	header := sale.NewHeader(req.Breakdown, req.PaymentMethod, req.Notes, req.RegisterID)
	header.CreatedAt = c.now()

	id, err := c.sales.CreateHeader(ctx, header)
	if err != nil {
		return nil, errors.Wrap(err, "create sale header")
	}
	header.ID = id
	s.saleID = id
	// Voiding the header removes its lines as well.
	s.add("void sale header", func(ctx context.Context) error {
		return c.sales.VoidHeader(ctx, id)
	})

	out := &sale.Committed{Header: header}

	for i, cl := range req.Lines {
		l := sale.NewLine(id, i, cl, req.Breakdown.Lines[i])
		if err := c.sales.CreateLine(ctx, l); err != nil {
			return nil, errors.Wrapf(err, "create sale line %d", i)
		}
		out.Lines = append(out.Lines, l)
	}

	for _, cl := range req.Lines {
		if !cl.StockTracked {
			continue
		}
		m := stock.Movement{
			ProductID: cl.ProductID,
			Delta:     -cl.Quantity,
			Reason:    stock.ReasonSale,
			Reference: id,
			CreatedAt: header.CreatedAt,
		}
		if err := c.stock.AppendMovement(ctx, m); err != nil {
			return nil, errors.Wrapf(err, "deduct stock for %s", cl.ProductID)
		}
		s.add("reverse stock for "+cl.ProductID, func(ctx context.Context) error {
			return c.stock.AppendMovement(ctx, stock.Movement{
				ProductID: m.ProductID,
				Delta:     -m.Delta,
				Reason:    stock.ReasonSaleReversal,
				Reference: id,
				CreatedAt: c.now(),
			})
		})
		out.Movements = append(out.Movements, m)
	}

	for _, t := range req.TradeIns {
		if err := c.tradeIns.LinkToSale(ctx, t.ID, id); err != nil {
			return nil, errors.Wrapf(err, "link trade-in %s", t.ID)
		}
		s.add("unlink trade-in "+t.ID, func(ctx context.Context) error {
			return c.tradeIns.UnlinkFromSale(ctx, t.ID, id)
		})
		out.TradeIns = append(out.TradeIns, t)
	}

	return out, nil
}

// reclassify turns a stock constraint violation into the shortfall the gate
// would have reported had it run a moment later. If stock has recovered in
// the meantime the storage error is returned unchanged.
func (c *Composer) reclassify(ctx context.Context, req Request, err error) error {
	var partialErr *PartialCommitError
	if errors.As(err, &partialErr) {
		return err
	}
	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) || persistErr.Cause != CauseStockConstraint {
		return err
	}

	var stockErr *stock.InsufficientStockError
	if checkErr := c.gate.Check(ctx, req.Lines); errors.As(checkErr, &stockErr) {
		return stockErr
	}
	return err
}

func (c *Composer) publish(ctx context.Context, committed *sale.Committed) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, committed); err != nil {
		zctx.From(ctx).Warn("Publish sale confirmation failed",
			zap.String("sale_id", committed.ID),
			zap.Error(err),
		)
	}
}
