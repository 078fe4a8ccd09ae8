package pricing

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/factors"
	"github.com/mbd888/quotecore/internal/finishing"
	"github.com/mbd888/quotecore/internal/geometry"
	"github.com/mbd888/quotecore/internal/material"
	"github.com/mbd888/quotecore/internal/riskmodel"
	"github.com/mbd888/quotecore/internal/tax"
	"github.com/mbd888/quotecore/internal/tolerance"
)

type engineFixture struct {
	engine    *Engine
	catalog   *catalog.MemoryStore
	materials *material.MemoryStore
	risk      *riskmodel.MemoryStore
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := slog.Default()

	catStore := catalog.NewMemoryStore()
	matStore := material.NewMemoryStore()
	riskStore := riskmodel.NewMemoryStore()

	require.NoError(t, matStore.Upsert(context.Background(), &material.CatalogItem{
		ID:            "mat-al",
		Code:          "AL_6061_T6",
		Name:          "Aluminum 6061-T6",
		Category:      "aluminum",
		BaseCostPerKg: 4.5,
		Density:       2700,
		Available:     true,
		LeadTimeDays:  5,
	}))

	registry := factors.NewRegistry("2026.1", logger)
	factors.RegisterBaseline(registry, &finishing.StaticClient{})

	engine := NewEngine(
		registry,
		catalog.NewRepository(catStore, logger),
		material.NewResolver(matStore, logger),
		riskmodel.NewLoader(riskStore, logger),
		&geometry.StaticAnalyzer{Snapshot: geometry.Snapshot{
			PartVolumeCm3:  60,
			StockVolumeCm3: 100,
			SurfaceAreaCm2: 200,
			Complexity:     0.5,
		}},
		tax.ZeroCalculator{},
		logger,
	)

	return &engineFixture{engine: engine, catalog: catStore, materials: matStore, risk: riskStore}
}

func baseRequest() *Request {
	return &Request{
		OrgID:        "org1",
		QuoteID:      "q1",
		LineID:       "l1",
		PartID:       "part1",
		Process:      "cnc_milling",
		MaterialCode: "AL_6061_T6",
		Quantities:   []int{1, 10},
	}
}

func TestEngine_Calculate(t *testing.T) {
	f := newFixture(t)

	resp, err := f.engine.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)

	require.Len(t, resp.Matrix, 2)
	assert.Equal(t, 1, resp.Matrix[0].Quantity)
	assert.Equal(t, 10, resp.Matrix[1].Quantity)

	// qty 1: material 1.215 + machine 60.375 + setup 78.75 + inspection 6
	// = 146.34, +15% overhead = 168.291 → $168.29, no discount.
	q1 := resp.Matrix[0]
	assert.InDelta(t, 168.29, q1.UnitPrice, 1e-9)
	assert.InDelta(t, 168.29, q1.TotalPrice, 1e-9)
	assert.Zero(t, q1.Discount)
	assert.Equal(t, "2026.1", q1.OrchestratorVersion)
	assert.False(t, q1.Legacy)

	// qty 10: subtotal 805.7475, per-unit 80.57475, 5% break → $76.55.
	q10 := resp.Matrix[1]
	assert.InDelta(t, 0.05, q10.Discount, 1e-9)
	assert.InDelta(t, 76.55, q10.UnitPrice, 1e-9)
	assert.InDelta(t, 765.50, q10.TotalPrice, 1e-9)

	// Larger lots must price cheaper per unit.
	assert.Less(t, q10.UnitPrice, q1.UnitPrice)

	assert.Equal(t, "AL_6061_T6", resp.MaterialCode)
	assert.Equal(t, "Aluminum 6061-T6", resp.MaterialName)
	assert.Equal(t, "standard", resp.Tolerances.Band)
	assert.NotContains(t, resp.Flags, "material_fallback")
}

func TestEngine_TighterBandCostsMore(t *testing.T) {
	f := newFixture(t)

	std, err := f.engine.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)

	req := baseRequest()
	req.ToleranceBand = "precision"
	prec, err := f.engine.Calculate(context.Background(), req)
	require.NoError(t, err)

	req = baseRequest()
	req.ToleranceBand = "high_precision"
	high, err := f.engine.Calculate(context.Background(), req)
	require.NoError(t, err)

	assert.Greater(t, prec.Matrix[0].UnitPrice, std.Matrix[0].UnitPrice)
	assert.Greater(t, high.Matrix[0].UnitPrice, prec.Matrix[0].UnitPrice)
}

func TestEngine_CatalogRowRaisesMultiplier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base, err := f.engine.Calculate(ctx, baseRequest())
	require.NoError(t, err)

	require.NoError(t, f.catalog.InsertRow(ctx, &catalog.Row{
		Process:        catalog.ProcessCNCMilling,
		FeatureType:    tolerance.FeatureHole,
		AppliesTo:      tolerance.AppliesDiameter,
		Unit:           tolerance.UnitMM,
		TolFrom:        0.001,
		TolTo:          0.025,
		Multiplier:     1.5,
		Affects:        []catalog.Dimension{catalog.DimMachineTime, catalog.DimInspection},
		CatalogVersion: 1,
		Active:         true,
	}))

	req := baseRequest()
	// Pin the version: the repository caches "empty catalog" for a while
	// after the baseline calculation above.
	req.CatalogVersion = 1
	req.ToleranceEntries = []tolerance.Entry{{
		FeatureType: tolerance.FeatureHole,
		AppliesTo:   tolerance.AppliesDiameter,
		Unit:        "mm",
		Value:       0.01,
	}}

	resp, err := f.engine.Calculate(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int64(1), resp.CatalogVersion)
	assert.Equal(t, 1, resp.Tolerances.EntryCount)
	assert.Len(t, resp.Tolerances.MatchedRowIDs, 1)
	assert.Equal(t, 1.5, resp.Tolerances.Multipliers["machine"])
	assert.Greater(t, resp.Matrix[0].UnitPrice, base.Matrix[0].UnitPrice)
}

func TestEngine_DFMFindingsFeedToleranceParse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base, err := f.engine.Calculate(ctx, baseRequest())
	require.NoError(t, err)
	require.Zero(t, base.Tolerances.EntryCount)

	req := baseRequest()
	req.DFMFindings = []string{
		"thin wall near the boss, consider ribbing",
		"hold ±0.02mm on the bore to keep the press fit",
	}

	resp, err := f.engine.Calculate(ctx, req)
	require.NoError(t, err)

	// The callout buried in a DFM finding lands in the tolerance map and
	// tightens the price the same way an engineering note would.
	assert.GreaterOrEqual(t, resp.Tolerances.EntryCount, 1)
	assert.Greater(t, resp.Matrix[0].UnitPrice, base.Matrix[0].UnitPrice)
}

func TestRequest_FreeTextNotesJoinsSources(t *testing.T) {
	req := &Request{EngineeringNotes: "deburr all edges"}
	assert.Equal(t, "deburr all edges", req.FreeTextNotes())

	req.DFMFindings = []string{"wall below 1mm near slot", "±0.05 on flange holes"}
	assert.Equal(t,
		"deburr all edges\nwall below 1mm near slot\n±0.05 on flange holes",
		req.FreeTextNotes())

	req.EngineeringNotes = ""
	assert.Equal(t, "wall below 1mm near slot\n±0.05 on flange holes", req.FreeTextNotes())
}

func TestEngine_RiskMarkupApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base, err := f.engine.Calculate(ctx, baseRequest())
	require.NoError(t, err)

	require.NoError(t, f.risk.RecordResult(ctx, &riskmodel.Result{
		ID: "r1", OrgID: "org1", QuoteID: "q1", LineID: "l1",
		Vector:   map[string]float64{riskmodel.DimThinWalls: 0.9},
		Severity: riskmodel.SeverityHigh,
	}))

	resp, err := f.engine.Calculate(ctx, baseRequest())
	require.NoError(t, err)

	// high severity = 12% markup
	assert.InDelta(t, base.Matrix[0].UnitPrice*1.12, resp.Matrix[0].UnitPrice, 0.01)
}

func TestEngine_UnknownMaterialFallsBack(t *testing.T) {
	f := newFixture(t)

	req := baseRequest()
	req.MaterialCode = "UNOBTAINIUM"

	resp, err := f.engine.Calculate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "AL_6061_T6", resp.MaterialCode)
	assert.Contains(t, resp.Flags, "material_fallback")
}

func TestEngine_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := baseRequest()
	req.Process = "edm"
	_, err := f.engine.Calculate(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidProcess)

	req = baseRequest()
	req.Quantities = nil
	_, err = f.engine.Calculate(ctx, req)
	assert.ErrorIs(t, err, ErrNoQuantities)

	req = baseRequest()
	req.Quantities = []int{0}
	_, err = f.engine.Calculate(ctx, req)
	assert.Error(t, err)

	req = baseRequest()
	req.Quantities = make([]int, MaxQuantities+1)
	for i := range req.Quantities {
		req.Quantities[i] = i + 1
	}
	_, err = f.engine.Calculate(ctx, req)
	assert.Error(t, err)
}

// failingFactor aborts every pipeline run.
type failingFactor struct{}

func (failingFactor) Name() string                  { return "always_fails" }
func (failingFactor) Stage() factors.Stage          { return factors.StageCost }
func (failingFactor) Order() int                    { return 1 }
func (failingFactor) Policy() factors.FailurePolicy { return factors.PolicyPropagate }
func (failingFactor) Applies(*factors.Input) bool   { return true }
func (failingFactor) Apply(ctx context.Context, in *factors.Input, rc *factors.RunContext) error {
	return errors.New("pipeline down")
}

func TestEngine_LegacyFallback(t *testing.T) {
	f := newFixture(t)

	broken := factors.NewRegistry("2026.1", slog.Default())
	broken.MustRegister(failingFactor{})
	f.engine.registry = broken

	resp, err := f.engine.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)

	for _, entry := range resp.Matrix {
		assert.True(t, entry.Legacy)
		assert.Empty(t, entry.OrchestratorVersion)
		assert.Contains(t, entry.Flags, "legacy_fallback")
		assert.Greater(t, entry.UnitPrice, 0.0)

		// Same cost-factor shape as the pipeline path, full ladder.
		keys := make([]string, 0, len(entry.CostFactors))
		for _, cf := range entry.CostFactors {
			keys = append(keys, cf.Key)
		}
		assert.Equal(t,
			[]string{"material", "machine_time", "setup", "inspection", "overhead", "margin"},
			keys)
	}
}

func TestEngine_LegacyFallbackKeepsDiscountAndRisk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.risk.RecordResult(ctx, &riskmodel.Result{
		ID: "r1", OrgID: "org1", QuoteID: "q1", LineID: "l1",
		Vector:   map[string]float64{riskmodel.DimThinWalls: 0.95},
		Severity: riskmodel.SeverityCritical,
	}))

	broken := factors.NewRegistry("2026.1", slog.Default())
	broken.MustRegister(failingFactor{})
	f.engine.registry = broken

	req := baseRequest()
	req.Quantities = []int{1, 250}
	resp, err := f.engine.Calculate(ctx, req)
	require.NoError(t, err)
	require.Len(t, resp.Matrix, 2)

	q1, q250 := resp.Matrix[0], resp.Matrix[1]
	require.True(t, q250.Legacy)

	// The quantity break survives the fallback.
	assert.Zero(t, q1.Discount)
	assert.InDelta(t, 0.20, q250.Discount, 1e-9)
	assert.Less(t, q250.UnitPrice, q1.UnitPrice)

	// So does the persisted critical-risk markup (25%).
	for _, entry := range resp.Matrix {
		var markup float64
		for _, cf := range entry.CostFactors {
			if cf.Key == "risk_markup" {
				markup = cf.Amount
			}
		}
		assert.Greater(t, markup, 0.0, "legacy entries must carry the risk markup line")
	}
	assert.InDelta(t, q1.UnitPrice, unmarkedLegacyUnit(t)*1.25, 0.01)
}

// unmarkedLegacyUnit prices qty 1 through an equally broken pipeline with no
// persisted risk, for comparison against the marked-up run.
func unmarkedLegacyUnit(t *testing.T) float64 {
	t.Helper()
	clean := newFixture(t)
	broken := factors.NewRegistry("2026.1", slog.Default())
	broken.MustRegister(failingFactor{})
	clean.engine.registry = broken

	resp, err := clean.engine.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)
	return resp.Matrix[0].UnitPrice
}

type failingTax struct{}

func (failingTax) Calculate(ctx context.Context, addr tax.Address, items []tax.LineItem) (*tax.Result, error) {
	return nil, errors.New("tax provider down")
}

func TestEngine_TaxDegradesToZero(t *testing.T) {
	f := newFixture(t)
	f.engine.tax = failingTax{}

	req := baseRequest()
	req.ShipTo = &tax.Address{Country: "US", State: "CA", PostalCode: "94103"}
	req.SelectedQuantity = 10

	resp, err := f.engine.Calculate(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, resp.Tax)
	assert.Zero(t, resp.Tax.TaxCents)
	assert.Equal(t, int64(76550), resp.Tax.TotalCents) // $765.50 for qty 10
	assert.Contains(t, resp.Flags, "tax_unavailable")
}

func TestEngine_GeometryEstimateWhenUnavailable(t *testing.T) {
	f := newFixture(t)
	f.engine.geometry = nil

	resp, err := f.engine.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Contains(t, resp.Flags, "geometry_estimate")
	assert.Greater(t, resp.Matrix[0].UnitPrice, 0.0)
}
