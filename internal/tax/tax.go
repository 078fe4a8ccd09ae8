// Package tax computes sales tax on priced quotes. The production
// implementation delegates to Stripe Tax; a zero calculator backs tests and
// deployments without a Stripe key. Tax failures never block pricing: the
// engine degrades to zero tax and annotates the response.
package tax

import "context"

// Address is the destination the quote ships to.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"`
}

// LineItem is one taxable quote line. Amounts are integer cents to match the
// processor's wire format.
type LineItem struct {
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amountCents"`
}

// Result is the computed tax for a quote.
type Result struct {
	TaxCents   int64  `json:"taxCents"`
	TotalCents int64  `json:"totalCents"`
	Currency   string `json:"currency"`
	// CalculationID references the processor-side calculation when one
	// was made, for audit.
	CalculationID string `json:"calculationId,omitempty"`
}

// Calculator computes tax for a set of line items shipped to an address.
type Calculator interface {
	Calculate(ctx context.Context, addr Address, items []LineItem) (*Result, error)
}

// ZeroCalculator returns zero tax for every request.
type ZeroCalculator struct{}

var _ Calculator = (*ZeroCalculator)(nil)

func (ZeroCalculator) Calculate(ctx context.Context, addr Address, items []LineItem) (*Result, error) {
	var total int64
	for _, it := range items {
		total += it.AmountCents
	}
	return &Result{TaxCents: 0, TotalCents: total, Currency: "usd"}, nil
}
