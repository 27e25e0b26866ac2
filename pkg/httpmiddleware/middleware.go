// Package httpmiddleware contains the HTTP middleware chain of the till API.
package httpmiddleware

import (
	"net/http"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware is the outermost.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RouteFinder maps a request to its route pattern for labels.
type RouteFinder func(r *http.Request) string

// statusWriter records the status code written by the next handler.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
