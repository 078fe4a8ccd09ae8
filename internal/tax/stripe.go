package tax

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/tax/calculation"
)

// StripeCalculator computes tax via the Stripe Tax calculation API.
type StripeCalculator struct {
	currency string
}

var _ Calculator = (*StripeCalculator)(nil)

// NewStripeCalculator configures the global Stripe client with apiKey and
// returns a USD tax calculator.
func NewStripeCalculator(apiKey string) *StripeCalculator {
	stripe.Key = apiKey
	return &StripeCalculator{currency: "usd"}
}

func (c *StripeCalculator) Calculate(ctx context.Context, addr Address, items []LineItem) (*Result, error) {
	if addr.Country == "" {
		return nil, fmt.Errorf("tax: destination country required")
	}

	lineItems := make([]*stripe.TaxCalculationLineItemParams, 0, len(items))
	for _, it := range items {
		lineItems = append(lineItems, &stripe.TaxCalculationLineItemParams{
			Amount:      stripe.Int64(it.AmountCents),
			Reference:   stripe.String(it.Reference),
			TaxBehavior: stripe.String(string(stripe.TaxCalculationLineItemTaxBehaviorExclusive)),
		})
	}

	params := &stripe.TaxCalculationParams{
		Currency:  stripe.String(c.currency),
		LineItems: lineItems,
		CustomerDetails: &stripe.TaxCalculationCustomerDetailsParams{
			Address: &stripe.AddressParams{
				Line1:      stripe.String(addr.Line1),
				City:       stripe.String(addr.City),
				State:      stripe.String(addr.State),
				PostalCode: stripe.String(addr.PostalCode),
				Country:    stripe.String(addr.Country),
			},
			AddressSource: stripe.String(string(stripe.TaxCalculationCustomerDetailsAddressSourceShipping)),
		},
	}
	params.Context = ctx

	calc, err := calculation.New(params)
	if err != nil {
		return nil, fmt.Errorf("tax: stripe calculation: %w", err)
	}

	return &Result{
		TaxCents:      calc.TaxAmountExclusive,
		TotalCents:    calc.AmountTotal,
		Currency:      c.currency,
		CalculationID: calc.ID,
	}, nil
}
