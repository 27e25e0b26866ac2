package sale

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/jewellery-pos/internal/domain/pricing"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestPaymentMethod_Valid(t *testing.T) {
	for _, m := range []PaymentMethod{PaymentCash, PaymentCard, PaymentBankTransfer, PaymentSplit} {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, PaymentMethod("cheque").Valid())
	assert.False(t, PaymentMethod("").Valid())
}

func TestCommitted_BreakdownRoundTrip(t *testing.T) {
	cart := []pricing.CartLine{
		{ProductID: "ring", UnitPrice: d("100"), Quantity: 2, TaxRate: d("20"), StockTracked: true},
		{ProductID: "box", UnitPrice: d("5"), Quantity: 1, TaxRate: d("0")},
	}
	b, err := pricing.ComputeTotals(cart, pricing.FixedAmount{Amount: d("30")}, []pricing.TradeInAllowance{
		{ID: "ti-1", Allowance: d("10")},
	})
	require.NoError(t, err)

	c := &Committed{Header: NewHeader(b, PaymentCard, "gift wrap", "till-1")}
	c.ID = "sale-1"
	for i, l := range cart {
		c.Lines = append(c.Lines, NewLine(c.ID, i, l, b.Lines[i]))
	}

	assert.Equal(t, pricing.DiscountFixed, c.DiscountType)
	assert.True(t, d("30").Equal(c.DiscountValue))
	assert.Equal(t, 1, c.Lines[1].Position)
	assert.True(t, c.Lines[0].Net().Equal(b.Lines[0].Net()))
	got, err := c.Breakdown()
	require.NoError(t, err)
	assert.True(t, b.Matches(got))
	assert.False(t, c.OwedToCustomer())
}

func TestCommitted_BreakdownUnknownDiscount(t *testing.T) {
	c := &Committed{Header: Header{
		ID:            "sale-9",
		DiscountType:  pricing.DiscountType("bogo"),
		DiscountValue: d("5"),
		Subtotal:      d("100"),
		NetTotal:      d("95"),
	}}

	b, err := c.Breakdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sale-9")
	assert.Nil(t, b.Discount)
}
