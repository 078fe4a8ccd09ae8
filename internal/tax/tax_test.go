package tax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroCalculator(t *testing.T) {
	res, err := ZeroCalculator{}.Calculate(context.Background(), Address{Country: "US"}, []LineItem{
		{Reference: "line1", AmountCents: 12500},
		{Reference: "line2", AmountCents: 475},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.TaxCents)
	assert.Equal(t, int64(12975), res.TotalCents)
	assert.Equal(t, "usd", res.Currency)
}

func TestStripeCalculator_RequiresCountry(t *testing.T) {
	c := NewStripeCalculator("sk_test_placeholder")
	_, err := c.Calculate(context.Background(), Address{}, []LineItem{{Reference: "l", AmountCents: 100}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "country required")
}
