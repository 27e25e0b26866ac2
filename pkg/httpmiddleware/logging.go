package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// InjectLogger stores lg in the request context so handlers can reach it
// with zctx.From. The request id, if already assigned, is attached.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := zctx.Base(r.Context(), lg)
			if id := RequestIDFromContext(ctx); id != "" {
				ctx = zctx.With(ctx, zap.String("request_id", id))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LogRequests logs one line per request with its route, status and
// duration. Server errors log at warn level.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", find(r)),
				zap.Int("status", status),
				zap.Int("bytes", sw.bytes),
				zap.Duration("duration", time.Since(start)),
			}

			lg := zctx.From(r.Context())
			if status >= http.StatusInternalServerError {
				lg.Warn("Request served", fields...)
				return
			}
			lg.Info("Request served", fields...)
		})
	}
}
