package tradein

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	items []TradeIn
	err   error
}

func (m *mockRepo) Create(_ context.Context, t TradeIn) error {
	m.items = append(m.items, t)
	return nil
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []string) ([]TradeIn, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []TradeIn
	for _, t := range m.items {
		for _, id := range ids {
			if t.ID == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func TestResolve(t *testing.T) {
	repo := &mockRepo{items: []TradeIn{
		{ID: "ti-1", Title: "Gold band", Allowance: decimal.RequireFromString("80.00"), CustomerReference: "C-9"},
		{ID: "ti-2", Title: "Silver chain", Allowance: decimal.RequireFromString("12.50")},
		{ID: "ti-3", Title: "Sold already", Allowance: decimal.NewFromInt(5), SaleID: "sale-1"},
	}}

	tests := []struct {
		name    string
		ids     []string
		want    []string
		wantErr error
	}{
		{name: "keeps request order", ids: []string{"ti-2", "ti-1"}, want: []string{"ti-2", "ti-1"}},
		{name: "unknown trade-in", ids: []string{"ti-1", "nope"}, wantErr: ErrNotFound},
		{name: "already linked", ids: []string{"ti-3"}, wantErr: ErrAlreadyLinked},
		{name: "none requested", ids: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(context.Background(), repo, tt.ids)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i, id := range tt.want {
				assert.Equal(t, id, got[i].ID)
			}
		})
	}
}

func TestResolve_CarriesAllowance(t *testing.T) {
	repo := &mockRepo{items: []TradeIn{
		{ID: "ti-1", Title: "Gold band", Allowance: decimal.RequireFromString("80.00"), CustomerReference: "C-9"},
	}}

	got, err := Resolve(context.Background(), repo, []string{"ti-1"})
	require.NoError(t, err)
	assert.Equal(t, "Gold band", got[0].Title)
	assert.Equal(t, "C-9", got[0].CustomerReference)
	assert.True(t, got[0].Allowance.Equal(decimal.NewFromInt(80)))
}

func TestResolve_RepoError(t *testing.T) {
	_, err := Resolve(context.Background(), &mockRepo{err: errors.New("timeout")}, []string{"ti-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get trade-ins")
}
