// Package finishing is the boundary to the finishing cost service. It prices
// a chain of surface finishes (anodize, bead blast, powder coat, ...) for a
// part; chain ordering and process compatibility are the service's concern.
package finishing

import (
	"context"
	"strings"
)

// ChainInput describes the finish chain to price, plus the evaluation
// context the service's per-finish cost formulas draw on.
type ChainInput struct {
	OrgID       string   `json:"orgId"`
	QuoteLineID string   `json:"quoteLineId"`
	Process     string   `json:"process"`
	Finishes    []string `json:"finishes"`

	SurfaceAreaCm2 float64 `json:"surfaceAreaCm2"`
	VolumeCm3      float64 `json:"volumeCm3,omitempty"`
	Quantity       int     `json:"quantity"`
	BatchSize      int     `json:"batchSize,omitempty"`
	MaterialCode   string  `json:"materialCode,omitempty"`
	Region         string  `json:"region,omitempty"`
	PartClass      string  `json:"partClass,omitempty"`
}

// StepCost is one finish's share of the chain cost.
type StepCost struct {
	Finish string  `json:"finish"`
	Cost   float64 `json:"cost"`
}

// ChainResult is the priced finish chain. Cost covers the whole quantity.
type ChainResult struct {
	Cost          float64    `json:"cost"`
	AddedLeadDays int        `json:"addedLeadDays"`
	Steps         []StepCost `json:"steps,omitempty"`
}

// Client prices a finish chain.
type Client interface {
	EstimateChain(ctx context.Context, in ChainInput) (*ChainResult, error)
}

// rateCard holds the static per-finish pricing used when no finishing service
// is configured: a per-cm² rate, a per-lot minimum, and added lead time.
type rateEntry struct {
	perCm2   float64
	lotMin   float64
	leadDays int
}

var defaultRates = map[string]rateEntry{
	"anodize_clear": {perCm2: 0.012, lotMin: 25, leadDays: 2},
	"anodize_black": {perCm2: 0.015, lotMin: 30, leadDays: 2},
	"bead_blast":    {perCm2: 0.008, lotMin: 15, leadDays: 1},
	"powder_coat":   {perCm2: 0.020, lotMin: 40, leadDays: 3},
	"passivate":     {perCm2: 0.006, lotMin: 20, leadDays: 1},
	"black_oxide":   {perCm2: 0.010, lotMin: 25, leadDays: 2},
}

// unknownFinishRate prices finishes the rate card doesn't know, so a new
// finish name degrades to a rough estimate instead of an error.
var unknownFinishRate = rateEntry{perCm2: 0.015, lotMin: 30, leadDays: 2}

// StaticClient prices chains off the built-in rate card. Used in tests and
// when no finishing service URL is configured.
type StaticClient struct{}

var _ Client = (*StaticClient)(nil)

func (c *StaticClient) EstimateChain(ctx context.Context, in ChainInput) (*ChainResult, error) {
	qty := in.Quantity
	if qty < 1 {
		qty = 1
	}

	res := &ChainResult{}
	for _, name := range in.Finishes {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		rate, ok := defaultRates[key]
		if !ok {
			rate = unknownFinishRate
		}

		cost := rate.perCm2 * in.SurfaceAreaCm2 * float64(qty)
		if cost < rate.lotMin {
			cost = rate.lotMin
		}
		res.Steps = append(res.Steps, StepCost{Finish: key, Cost: cost})
		res.Cost += cost
		res.AddedLeadDays += rate.leadDays
	}
	return res, nil
}
