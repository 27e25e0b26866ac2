package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
)

// GoroutineCountCheck fails when more than threshold goroutines are
// running, which usually means requests are piling up behind a stuck store.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// PingCheck adapts a driver ping, such as pgxpool.Pool.Ping or
// sqlx.DB.PingContext.
func PingCheck(name string, ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return errors.Wrapf(err, "ping %s", name)
		}
		return nil
	}
}

// KafkaBrokerCheck fails unless at least one of brokers accepts a
// connection and answers a metadata request.
func KafkaBrokerCheck(brokers ...string) CheckFunc {
	return func(ctx context.Context) error {
		var lastErr error
		for _, addr := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}
			_, err = conn.Brokers()
			_ = conn.Close()
			if err == nil {
				return nil
			}
			lastErr = err
		}
		if lastErr == nil {
			return errors.New("no kafka brokers configured")
		}
		return errors.Wrap(lastErr, "reach kafka")
	}
}
