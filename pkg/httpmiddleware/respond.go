package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// writeJSONError writes {"code":status,"message":msg}, the error shape of
// the API.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
