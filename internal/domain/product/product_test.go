package product

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRepo struct {
	products []Product
	err      error
	calls    int
}

func (m *mockRepo) List(_ context.Context) ([]Product, error) {
	return m.products, m.err
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Product, error) {
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []string) ([]Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Product
	for _, p := range m.products {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestResolve(t *testing.T) {
	repo := &mockRepo{products: []Product{
		{ID: "ring", Price: decimal.RequireFromString("100.00"), TaxRate: decimal.NewFromInt(20), StockTracked: true},
		{ID: "engraving", Price: decimal.RequireFromString("15.00"), TaxRate: decimal.NewFromInt(20)},
	}}

	lines, err := Resolve(context.Background(), repo, []Item{
		{ProductID: "engraving", Quantity: 1},
		{ProductID: "ring", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, repo.calls)

	assert.Equal(t, "engraving", lines[0].ProductID)
	assert.False(t, lines[0].StockTracked)
	assert.Equal(t, "ring", lines[1].ProductID)
	assert.Equal(t, 2, lines[1].Quantity)
	assert.True(t, lines[1].UnitPrice.Equal(decimal.RequireFromString("100")))
	assert.True(t, lines[1].StockTracked)
}

func TestResolve_Missing(t *testing.T) {
	repo := &mockRepo{products: []Product{{ID: "ring"}}}

	_, err := Resolve(context.Background(), repo, []Item{{ProductID: "ring", Quantity: 1}, {ProductID: "ghost", Quantity: 1}})

	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "ghost", nfErr.ProductID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolve_RepoError(t *testing.T) {
	repo := &mockRepo{err: errors.New("db down")}

	_, err := Resolve(context.Background(), repo, []Item{{ProductID: "ring", Quantity: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get products")
}

func TestResolve_Empty(t *testing.T) {
	repo := &mockRepo{}

	lines, err := Resolve(context.Background(), repo, nil)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Zero(t, repo.calls)
}
