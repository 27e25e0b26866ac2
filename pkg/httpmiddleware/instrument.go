package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instrument traces every request and records the standard HTTP server
// metrics. Spans are named "<METHOD> <route>".
func Instrument(service string, find RouteFinder, tp trace.TracerProvider, mp metric.MeterProvider) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + find(r)
			}),
		)
	}
}
