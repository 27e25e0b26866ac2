// Package handler serves the till HTTP API: catalog, quotes, stock
// availability, checkout and receipts.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/domain/product"
	"github.com/xenking/jewellery-pos/internal/domain/sale"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
	"github.com/xenking/jewellery-pos/internal/domain/tradein"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Committer commits a quoted cart.
type Committer interface {
	CommitSale(ctx context.Context, req checkout.Request) (*sale.Committed, error)
}

// SaleReader loads committed sales.
type SaleReader interface {
	Get(ctx context.Context, saleID string) (*sale.Committed, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// StoreName is printed at the top of receipts.
	StoreName string
}

// Handler serves the API over the domain packages.
type Handler struct {
	products  product.Repository
	tradeIns  tradein.Repository
	gate      *stock.Gate
	composer  Committer
	sales     SaleReader
	storeName string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	tradeIns tradein.Repository,
	stk stock.Reader,
	composer Committer,
	sales SaleReader,
) *Handler {
	return &Handler{
		products:  products,
		tradeIns:  tradeIns,
		gate:      stock.NewGate(stk),
		composer:  composer,
		sales:     sales,
		storeName: cfg.StoreName,
	}
}

// Routes returns the API router. All routes live under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/quote", h.quote)
			r.Post("/availability", h.availability)
			r.Post("/", h.commit)
		})
		r.Route("/sales/{id}", func(r chi.Router) {
			r.Get("/", h.getSale)
			r.Get("/receipt", h.receipt)
		})
	})
	return r
}

// RouteFinder reports the route pattern matching r, e.g.
// "/api/sales/{id}/receipt", for span and log labels. Unknown paths map to
// the raw path.
func RouteFinder(routes chi.Routes) func(r *http.Request) string {
	return func(r *http.Request) string {
		rctx := chi.NewRouteContext()
		if routes.Match(rctx, r.Method, r.URL.Path) {
			if p := rctx.RoutePattern(); p != "" {
				return p
			}
		}
		return r.URL.Path
	}
}
