package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/domain/pricing"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
	"github.com/xenking/jewellery-pos/internal/wire"
)

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError maps err to a status code and a JSON error body.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	var (
		field      string
		shortfalls []stock.Shortfall
	)

	switch kind := checkout.KindOf(err); kind {
	case checkout.KindValidation:
		status = http.StatusUnprocessableEntity
		var vErr *pricing.ValidationError
		if errors.As(err, &vErr) {
			field = vErr.Field
		}
	case checkout.KindInsufficientStock:
		status = http.StatusConflict
		var sErr *stock.InsufficientStockError
		if errors.As(err, &sErr) {
			shortfalls = sErr.Shortfalls
		}
	case checkout.KindInProgress:
		status = http.StatusTooManyRequests
	case checkout.KindNotFound:
		status = http.StatusNotFound
	case checkout.KindConflict:
		status = http.StatusConflict
	case checkout.KindPersistence:
		var pErr *checkout.PersistenceError
		if errors.As(err, &pErr) {
			status = persistenceStatus(pErr.Cause)
			field = pErr.Field
		}
	}

	lg := zctx.From(ctx)
	if status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Int("status", status), zap.Error(err))
		if status == http.StatusInternalServerError {
			message = http.StatusText(status)
		}
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
			if field != "" {
				e.Field("field", func(e *jx.Encoder) { e.Str(field) })
			}
			if shortfalls != nil {
				e.Field("shortfalls", func(e *jx.Encoder) { wire.EncodeShortfalls(e, shortfalls) })
			}
		})
	})
}

func persistenceStatus(c checkout.Cause) int {
	switch c {
	case checkout.CauseDuplicate, checkout.CauseStockConstraint:
		return http.StatusConflict
	case checkout.CauseMissingField, checkout.CauseForeignKey:
		return http.StatusUnprocessableEntity
	case checkout.CausePermission:
		return http.StatusForbidden
	case checkout.CauseConnectivity, checkout.CauseTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(ctx context.Context, w http.ResponseWriter, err error) {
	zctx.From(ctx).Debug("Malformed request", zap.Error(err))
	writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusBadRequest) })
			e.Field("message", func(e *jx.Encoder) { e.Str("malformed request body: " + err.Error()) })
		})
	})
}
