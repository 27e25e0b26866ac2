package handler

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/jewellery-pos/internal/domain/receipt"
	"github.com/xenking/jewellery-pos/internal/wire"
)

// listProducts returns every product in the catalog.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, errors.Wrap(err, "list products"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				wire.EncodeProduct(e, p)
			}
		})
	})
}

// getSale returns a committed sale.
func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.sales.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeSale(e, s)
	})
}

// receipt renders a committed sale as plain text.
func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.sales.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	ids := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		ids = append(ids, l.ProductID)
	}
	products, err := h.products.GetByIDs(ctx, ids)
	if err != nil {
		writeError(ctx, w, errors.Wrap(err, "get product names"))
		return
	}
	names := make(map[string]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}

	var buf bytes.Buffer
	if err := receipt.Render(&buf, s, receipt.Options{StoreName: h.storeName, Names: names}); err != nil {
		writeError(ctx, w, errors.Wrap(err, "render receipt"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
