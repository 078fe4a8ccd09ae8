// Package factors runs the pricing factor pipeline. A factor is one pricing
// concern (material, machine time, overhead, risk markup) that reads the
// immutable pricing input and accumulates cost into a shared run context.
//
// Factors execute in a deterministic order: by stage (setup, cost, post_cost,
// price), then by declared order, then by name. Registration order never
// affects the result.
package factors

import (
	"context"
	"fmt"

	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/geometry"
	"github.com/mbd888/quotecore/internal/material"
	"github.com/mbd888/quotecore/internal/riskmodel"
	"github.com/mbd888/quotecore/internal/tolerance"
)

// Stage groups factors into execution phases. All cost factors run before
// any post_cost factor, which run before any price factor.
type Stage string

const (
	StageSetup    Stage = "setup"
	StageCost     Stage = "cost"
	StagePostCost Stage = "post_cost"
	StagePrice    Stage = "price"
)

// stageRank orders stages for the pipeline sort. Unknown stages sort last.
func stageRank(s Stage) int {
	switch s {
	case StageSetup:
		return 0
	case StageCost:
		return 1
	case StagePostCost:
		return 2
	case StagePrice:
		return 3
	default:
		return 4
	}
}

// FailurePolicy says what the pipeline does when a factor returns an error.
type FailurePolicy string

const (
	// PolicyPropagate aborts the run. The engine falls back to legacy
	// pricing.
	PolicyPropagate FailurePolicy = "propagate"
	// PolicySwallow logs the failure, flags the run, and continues
	// without the factor's contribution.
	PolicySwallow FailurePolicy = "swallow"
)

// Factor is one pricing concern in the pipeline.
type Factor interface {
	Name() string
	Stage() Stage
	Order() int
	Policy() FailurePolicy
	// Applies reports whether the factor participates for this input.
	// The pipeline skips non-applying factors with a SKIP log line.
	Applies(in *Input) bool
	// Apply reads in and mutates rc. Returning a non-nil error triggers
	// the factor's failure policy.
	Apply(ctx context.Context, in *Input, rc *RunContext) error
}

// Input is the immutable per-line pricing input. The engine resolves all of
// it before the pipeline starts; factors must not mutate it.
type Input struct {
	OrgID        string
	QuoteID      string
	LineID       string
	PartID       string
	Process      catalog.Process
	MaterialCode string
	Region       string
	Quantity     int
	Finishes     []string
	Features     map[string]any

	Profile    tolerance.Profile
	Tolerances tolerance.Map
	Summary    tolerance.Summary
	Matches    []catalog.Row

	Material *material.CatalogItem
	Geometry *geometry.Snapshot
	Risk     *riskmodel.Snapshot
}

// RunConfig carries the shop rate card the baseline factors price against.
type RunConfig struct {
	// MachineRatePerMin is $/machine-minute by process.
	MachineRatePerMin map[catalog.Process]float64
	// SetupMinutes is the per-lot setup time by process.
	SetupMinutes map[catalog.Process]float64
	// InspectionRatePerMin is $/inspection-minute.
	InspectionRatePerMin float64
	// OverheadRate is the fractional overhead applied to the subtotal.
	OverheadRate float64
}

// DefaultRunConfig returns the built-in shop rate card.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MachineRatePerMin: map[catalog.Process]float64{
			catalog.ProcessCNCMilling: 1.75,
			catalog.ProcessTurning:    1.50,
			catalog.ProcessSheet:      1.10,
		},
		SetupMinutes: map[catalog.Process]float64{
			catalog.ProcessCNCMilling: 45,
			catalog.ProcessTurning:    30,
			catalog.ProcessSheet:      20,
		},
		InspectionRatePerMin: 1.20,
		OverheadRate:         0.15,
	}
}

// BreakdownLine is one priced contribution in the run's cost breakdown.
type BreakdownLine struct {
	Key    string         `json:"key"`
	Label  string         `json:"label"`
	Amount float64        `json:"amount"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// RunContext is the mutable state a pipeline run accumulates. Cost amounts
// cover the whole quantity; Price is per unit.
type RunContext struct {
	Config RunConfig

	SubtotalCost float64
	TimeMinutes  float64
	LeadDays     int

	Breakdown []BreakdownLine
	Logs      []string
	Flags     []string

	price    float64
	priceSet bool
}

// AddCost adds a quantity-total cost contribution to the subtotal and the
// breakdown.
func (rc *RunContext) AddCost(key, label string, amount float64, meta map[string]any) {
	rc.SubtotalCost += amount
	rc.Breakdown = append(rc.Breakdown, BreakdownLine{
		Key:    key,
		Label:  label,
		Amount: amount,
		Meta:   meta,
	})
}

// AddLine appends an informational breakdown line without touching the
// subtotal. Price-stage factors use it to surface markups.
func (rc *RunContext) AddLine(key, label string, amount float64, meta map[string]any) {
	rc.Breakdown = append(rc.Breakdown, BreakdownLine{
		Key:    key,
		Label:  label,
		Amount: amount,
		Meta:   meta,
	})
}

// SetPrice sets the per-unit price. The last price-stage factor to call this
// wins; if none does, the run defaults to subtotal divided by quantity.
func (rc *RunContext) SetPrice(perUnit float64) {
	rc.price = perUnit
	rc.priceSet = true
}

// PriceSet reports whether a factor set an explicit per-unit price.
func (rc *RunContext) PriceSet() bool { return rc.priceSet }

// Price returns the per-unit price for quantity, defaulting to the subtotal
// spread across units when no price factor ran.
func (rc *RunContext) Price(quantity int) float64 {
	if rc.priceSet {
		return rc.price
	}
	if quantity < 1 {
		quantity = 1
	}
	return rc.SubtotalCost / float64(quantity)
}

// AddFlag records a run-level annotation (degraded collaborator, swallowed
// factor failure).
func (rc *RunContext) AddFlag(flag string) {
	for _, f := range rc.Flags {
		if f == flag {
			return
		}
	}
	rc.Flags = append(rc.Flags, flag)
}

// ExtendLead raises the lead time floor; it never shortens.
func (rc *RunContext) ExtendLead(days int) {
	if days > rc.LeadDays {
		rc.LeadDays = days
	}
}

// AddLeadDays adds serial lead time (finishing chains run after machining).
func (rc *RunContext) AddLeadDays(days int) {
	if days > 0 {
		rc.LeadDays += days
	}
}

func (rc *RunContext) logf(format string, args ...any) {
	rc.Logs = append(rc.Logs, fmt.Sprintf(format, args...))
}
