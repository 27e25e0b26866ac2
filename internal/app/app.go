// Package app wires the checkout server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/handler"
	kafkapub "github.com/xenking/jewellery-pos/internal/messaging/kafka"
	"github.com/xenking/jewellery-pos/internal/storage/redislock"
	"github.com/xenking/jewellery-pos/pkg/health"
	"github.com/xenking/jewellery-pos/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	be, err := OpenStores(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer be.Close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Storage.Driver, 5*time.Second, health.PingCheck(cfg.Storage.Driver, be.Ping))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	opts := []checkout.Option{
		checkout.WithTransactor(be.Tx),
		checkout.WithRollbackTimeout(cfg.RollbackTimeout),
		checkout.WithTracerProvider(m.TracerProvider()),
		checkout.WithMeterProvider(m.MeterProvider()),
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer func() { _ = rdb.Close() }()

		opts = append(opts, checkout.WithGuard(redislock.NewSubmissionGuard(rdb, cfg.Redis.LeaseTTL)))
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		lg.Info("Checkout leases shared through redis", zap.String("redis", cfg.Redis.Addr))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafkapub.NewPublisher(kafkapub.NewWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...), cfg.Kafka.PublishTimeout)
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()

		opts = append(opts, checkout.WithPublisher(pub))
		healthSvc.AddReadinessCheck("kafka", 5*time.Second, health.KafkaBrokerCheck(cfg.Kafka.Brokers...))
		lg.Info("Publishing sale confirmations", zap.String("topic", cfg.Kafka.Topic))
	}

	composer, err := checkout.NewComposer(be.Sales, be.Stock, be.TradeIns, opts...)
	if err != nil {
		return errors.Wrap(err, "create composer")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, be, composer, healthSvc, m.TracerProvider(), m.MeterProvider()),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler mounts the health checks and the API behind the middleware
// chain.
func newHandler(
	ctx context.Context,
	cfg *Config,
	be *Stores,
	composer handler.Committer,
	healthSvc *health.Health,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) http.Handler {
	h := handler.NewHandler(
		handler.HandlerConfig{StoreName: cfg.StoreName},
		be.Products,
		be.TradeIns,
		be.Stock,
		composer,
		be.Sales,
	)
	routes := h.Routes()
	routeFinder := handler.RouteFinder(routes)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", routes)

	return httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", httpmiddleware.HeaderRequestID, httpmiddleware.HeaderRegisterID},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("pos-api", routeFinder, tp, mp),
		httpmiddleware.LogRequests(routeFinder),
	)
}
