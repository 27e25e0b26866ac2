package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/seed"
	"github.com/xenking/jewellery-pos/pkg/health"
)

const catalog = `{
  "products": [
    {"id": "ring", "name": "Diamond ring", "price": "100", "tax_rate": "20", "stock_tracked": true, "opening_stock": 2},
    {"id": "engraving", "name": "Engraving", "price": "25", "tax_rate": "20"}
  ],
  "trade_ins": [{"id": "ti-1", "title": "Gold band", "allowance": "80"}]
}`

type saleResponse struct {
	ID             string  `json:"id"`
	RegisterID     string  `json:"register_id"`
	NetTotal       float64 `json:"net_total"`
	GrossTotal     float64 `json:"gross_total"`
	OwedToCustomer bool    `json:"owed_to_customer"`
	Movements      []struct {
		ProductID string `json:"product_id"`
		Delta     int    `json:"delta"`
	} `json:"movements"`
}

type errorResponse struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field"`
	Shortfalls []struct {
		ProductID string `json:"product_id"`
		Requested int    `json:"requested"`
		Available int    `json:"available"`
	} `json:"shortfalls"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(zctx.Base(context.Background(), zaptest.NewLogger(t)))
	t.Cleanup(cancel)

	stores, err := OpenStores(ctx, StorageConfig{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "till.db")})
	require.NoError(t, err)
	t.Cleanup(stores.Close)

	f, err := seed.Load(strings.NewReader(catalog))
	require.NoError(t, err)
	require.NoError(t, seed.Apply(ctx, seed.Stores{
		Products: stores.Products,
		Stock:    stores.Stock,
		TradeIns: stores.TradeIns,
	}, f, time.Now()))

	composer, err := checkout.NewComposer(stores.Sales, stores.Stock, stores.TradeIns, checkout.WithTransactor(stores.Tx))
	require.NoError(t, err)

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("sqlite", time.Second, health.PingCheck("sqlite", stores.Ping))
	healthSvc.SetReady(true)

	cfg := &Config{
		StoreName: "Goldsmiths",
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"*"}},
	}
	srv := httptest.NewServer(newHandler(ctx, cfg, stores, composer, healthSvc,
		tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider()))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := srv.Client().Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_Probes(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusOK, get(t, srv, "/livez").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, srv, "/readyz").StatusCode)
}

func TestServer_Quote(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, "/api/checkout/quote", `{
		"lines": [{"product_id": "ring", "quantity": 1}],
		"discount": {"type": "percentage", "value": "10"}
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[map[string]any](t, resp)
	assert.InDelta(t, 90.0+18.0, got["net_total"], 0.001)
	assert.InDelta(t, 10.0, got["discount_total"], 0.001)
}

func TestServer_CheckoutFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, "/api/checkout", `{
		"lines": [{"product_id": "ring", "quantity": 2}, {"product_id": "engraving", "quantity": 1}],
		"trade_ins": ["ti-1"],
		"payment_method": "card",
		"register_id": "till-1",
		"quoted_net_total": "190.00"
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	sale := decode[saleResponse](t, resp)
	assert.Equal(t, "/api/sales/"+sale.ID, resp.Header.Get("Location"))
	assert.Equal(t, "till-1", sale.RegisterID)
	assert.InDelta(t, 270.0, sale.GrossTotal, 0.001)
	assert.InDelta(t, 190.0, sale.NetTotal, 0.001)
	assert.False(t, sale.OwedToCustomer)
	require.Len(t, sale.Movements, 1, "engraving is not stock tracked")
	assert.Equal(t, "ring", sale.Movements[0].ProductID)
	assert.Equal(t, -2, sale.Movements[0].Delta)

	t.Run("stored sale", func(t *testing.T) {
		resp := get(t, srv, "/api/sales/"+sale.ID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		stored := decode[saleResponse](t, resp)
		assert.Equal(t, sale.ID, stored.ID)
		assert.InDelta(t, 190.0, stored.NetTotal, 0.001)
	})

	t.Run("receipt", func(t *testing.T) {
		resp := get(t, srv, "/api/sales/"+sale.ID+"/receipt")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Contains(t, string(body), "Goldsmiths")
		assert.Contains(t, string(body), "Diamond ring x2 @ 100.00")
		assert.Contains(t, string(body), "Trade-in: Gold band")
		assert.Contains(t, string(body), "190.00")
	})

	t.Run("sold out", func(t *testing.T) {
		resp := post(t, srv, "/api/checkout", `{"lines": [{"product_id": "ring", "quantity": 1}], "payment_method": "cash"}`)
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		got := decode[errorResponse](t, resp)
		require.Len(t, got.Shortfalls, 1)
		assert.Equal(t, "ring", got.Shortfalls[0].ProductID)
		assert.Equal(t, 1, got.Shortfalls[0].Requested)
		assert.Equal(t, 0, got.Shortfalls[0].Available)
	})

	t.Run("trade-in already credited", func(t *testing.T) {
		resp := post(t, srv, "/api/checkout", `{
			"lines": [{"product_id": "engraving", "quantity": 1}],
			"trade_ins": ["ti-1"],
			"payment_method": "cash"
		}`)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestServer_Rejects(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{
			name:   "unknown product",
			body:   `{"lines": [{"product_id": "tiara", "quantity": 1}], "payment_method": "cash"}`,
			status: http.StatusUnprocessableEntity,
			field:  "lines.product_id",
		},
		{
			name:   "stale quote",
			body:   `{"lines": [{"product_id": "engraving", "quantity": 1}], "payment_method": "cash", "quoted_net_total": "20.00"}`,
			status: http.StatusUnprocessableEntity,
			field:  "quoted_net_total",
		},
		{
			name:   "malformed body",
			body:   `{"lines": [`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv, "/api/checkout", tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			got := decode[errorResponse](t, resp)
			assert.Equal(t, tt.status, got.Code)
			assert.Equal(t, tt.field, got.Field)
		})
	}
}

func TestServer_SaleNotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv, "/api/sales/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
