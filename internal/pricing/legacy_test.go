package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/factors"
	"github.com/mbd888/quotecore/internal/geometry"
	"github.com/mbd888/quotecore/internal/material"
	"github.com/mbd888/quotecore/internal/riskmodel"
	"github.com/mbd888/quotecore/internal/tolerance"
)

func TestLegacyConfig_MarginTiers(t *testing.T) {
	cfg := DefaultLegacyConfig()

	assert.Equal(t, 0.40, cfg.marginFor(5))
	assert.Equal(t, 0.35, cfg.marginFor(10))
	assert.Equal(t, 0.35, cfg.marginFor(100))
	assert.Equal(t, 0.30, cfg.marginFor(100.01))
	assert.Equal(t, 0.30, cfg.marginFor(5000))
}

func legacyEntry(t *testing.T, summary tolerance.Summary, risk *riskmodel.Snapshot,
	finishes []string, qty int) MatrixEntry {
	t.Helper()
	mat := &material.CatalogItem{Code: "AL_6061_T6", CostPerKg: 4.5, Density: 2700}
	geom := &geometry.Snapshot{StockVolumeCm3: 100, PartVolumeCm3: 60, SurfaceAreaCm2: 200}
	return legacyQuote(context.Background(), DefaultLegacyConfig(), factors.DefaultRunConfig(),
		catalog.ProcessCNCMilling, mat, geom, summary, risk, finishes, qty)
}

func breakdownKeys(entry MatrixEntry) []string {
	keys := make([]string, 0, len(entry.CostFactors))
	for _, cf := range entry.CostFactors {
		keys = append(keys, cf.Key)
	}
	return keys
}

func TestLegacyQuote_FullLadder(t *testing.T) {
	entry := legacyEntry(t, tolerance.Summary{}, nil, nil, 10)

	// material: 0.27kg × $4.5 × 10 = 12.15
	// machine: 30 min × $1.75 × 10 = 525
	// setup: 45 min × $1.75 = 78.75 once per lot
	// inspection: 1 sampled part × 5 min × $1.20 = 6
	// overhead: 15% of 621.90 = 93.285 → subtotal 715.185
	// margin: mid tier 35% → $96.549975/unit, then the qty-10 5% break.
	assert.True(t, entry.Legacy)
	assert.Equal(t, 10, entry.Quantity)
	assert.InDelta(t, 715.185, entry.SubtotalCost, 1e-9)
	assert.InDelta(t, 0.05, entry.Discount, 1e-9)
	assert.InDelta(t, 91.72, entry.UnitPrice, 1e-9)
	assert.InDelta(t, 917.20, entry.TotalPrice, 1e-9)
	assert.Contains(t, entry.Flags, "legacy_fallback")
	assert.Empty(t, entry.OrchestratorVersion)

	assert.Equal(t,
		[]string{"material", "machine_time", "setup", "inspection", "overhead", "margin"},
		breakdownKeys(entry))
}

func TestLegacyQuote_QuantityDiscountApplied(t *testing.T) {
	entry := legacyEntry(t, tolerance.Summary{}, nil, nil, 250)

	// subtotal: 303.75 + 13125 + 78.75 + 150 + 2048.625 = 15706.125
	// mid-tier margin, then the qty-250 20% break: $67.85/unit.
	require.InDelta(t, 0.20, entry.Discount, 1e-9)
	assert.InDelta(t, 67.85, entry.UnitPrice, 1e-9)

	undiscounted := legacyEntry(t, tolerance.Summary{}, nil, nil, 1)
	assert.Less(t, entry.UnitPrice, undiscounted.UnitPrice)
}

func TestLegacyQuote_RiskMarkupApplied(t *testing.T) {
	risk := &riskmodel.Snapshot{Severity: riskmodel.SeverityCritical, Markup: 1.25}
	entry := legacyEntry(t, tolerance.Summary{}, risk, nil, 10)

	// 715.185 × 1.25 markup × 1.35 margin / 10 × 0.95 break = $114.65/unit.
	assert.InDelta(t, 114.65, entry.UnitPrice, 1e-9)

	var markupLine *factors.BreakdownLine
	for i := range entry.CostFactors {
		if entry.CostFactors[i].Key == "risk_markup" {
			markupLine = &entry.CostFactors[i]
		}
	}
	require.NotNil(t, markupLine, "legacy breakdown must carry the risk markup line")
	assert.InDelta(t, 715.185*0.25, markupLine.Amount, 1e-9)

	baseline := legacyEntry(t, tolerance.Summary{}, nil, nil, 10)
	assert.InDelta(t, baseline.UnitPrice*1.25, entry.UnitPrice, 0.01)
}

func TestLegacyQuote_ToleranceMultipliersScaleCost(t *testing.T) {
	loose := legacyEntry(t, tolerance.Summary{}, nil, nil, 1)
	tight := legacyEntry(t, tolerance.Summary{
		MachineMultiplier:    1.35,
		SetupMultiplier:      1.25,
		InspectionMultiplier: 1.60,
	}, nil, nil, 1)

	assert.Greater(t, tight.UnitPrice, loose.UnitPrice)
	assert.Greater(t, tight.SubtotalCost, loose.SubtotalCost)
}

func TestLegacyQuote_FinishChainPriced(t *testing.T) {
	entry := legacyEntry(t, tolerance.Summary{}, nil, []string{"bead_blast"}, 10)

	// static rate card: 0.008 $/cm² × 200 cm² × 10 = $16, over the $15 lot
	// minimum; one added lead day.
	var finish float64
	for _, cf := range entry.CostFactors {
		if cf.Key == "finishing" {
			finish = cf.Amount
		}
	}
	assert.InDelta(t, 16.0, finish, 1e-9)
	assert.Equal(t, 1, entry.LeadDays)
}

func TestLegacyQuote_NoGeometryAssumesMass(t *testing.T) {
	entry := legacyQuote(context.Background(), DefaultLegacyConfig(), factors.DefaultRunConfig(),
		catalog.ProcessCNCMilling, nil, nil, tolerance.Summary{}, nil, nil, 1)

	// 0.5kg assumed at fallback $4.5/kg = 2.25 material.
	assert.InDelta(t, 2.25, entry.CostFactors[0].Amount, 1e-9)
	assert.Greater(t, entry.UnitPrice, 0.0)
}
