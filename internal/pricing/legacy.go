package pricing

import (
	"context"
	"math"

	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/factors"
	"github.com/mbd888/quotecore/internal/finishing"
	"github.com/mbd888/quotecore/internal/geometry"
	"github.com/mbd888/quotecore/internal/material"
	"github.com/mbd888/quotecore/internal/riskmodel"
	"github.com/mbd888/quotecore/internal/tolerance"
)

// LegacyConfig tunes the pre-pipeline estimator the engine falls back to
// when the factor pipeline fails. Margin is tiered on per-unit cost.
type LegacyConfig struct {
	LowThreshold  float64 // unit cost below this gets LowMargin
	HighThreshold float64 // unit cost above this gets HighMargin
	LowMargin     float64
	MidMargin     float64
	HighMargin    float64
}

// DefaultLegacyConfig returns the historical margin policy.
func DefaultLegacyConfig() LegacyConfig {
	return LegacyConfig{
		LowThreshold:  10,
		HighThreshold: 100,
		LowMargin:     0.40,
		MidMargin:     0.35,
		HighMargin:    0.30,
	}
}

// marginFor picks the margin tier for a per-unit cost.
func (c LegacyConfig) marginFor(unitCost float64) float64 {
	switch {
	case unitCost < c.LowThreshold:
		return c.LowMargin
	case unitCost > c.HighThreshold:
		return c.HighMargin
	default:
		return c.MidMargin
	}
}

// legacy per-part machine minutes by process. The old estimator never looked
// at geometry beyond mass, so these are flat.
var legacyMachineMinutes = map[catalog.Process]float64{
	catalog.ProcessCNCMilling: 30,
	catalog.ProcessTurning:    20,
	catalog.ProcessSheet:      10,
}

// estimator defaults when no geometry snapshot is available.
const (
	legacyDefaultMassKg     = 0.5
	legacyDefaultSurfaceCm2 = 300.0
)

// closed-form inspection model: a 10% sample inspected at a per-part time
// that grows with the tolerance callout count.
const (
	legacyInspectBaseMinutes   = 5.0
	legacyInspectMinutesPerTol = 1.0
	legacyInspectSample        = 0.1
)

// legacyQuote prices one quantity the way the pre-pipeline estimator did: a
// closed-form pass over the same resolved snapshots the pipeline uses —
// material, machining, setup, finishing off the static rate card, inspection,
// overhead — then risk markup, cost-tiered margin, and the quantity discount.
// The breakdown keeps the same cost-factor shape the pipeline emits so
// downstream consumers never see two formats.
func legacyQuote(
	ctx context.Context,
	cfg LegacyConfig,
	runCfg factors.RunConfig,
	process catalog.Process,
	mat *material.CatalogItem,
	geom *geometry.Snapshot,
	summary tolerance.Summary,
	risk *riskmodel.Snapshot,
	finishes []string,
	quantity int,
) MatrixEntry {
	qty := quantity
	if qty < 1 {
		qty = 1
	}

	entry := MatrixEntry{
		Quantity: qty,
		Legacy:   true,
		Flags:    []string{"legacy_fallback"},
	}
	addCost := func(key, label string, amount float64, meta map[string]any) {
		entry.CostFactors = append(entry.CostFactors, factors.BreakdownLine{
			Key: key, Label: label, Amount: amount, Meta: meta,
		})
	}

	// Material.
	massKg := legacyDefaultMassKg
	if geom != nil && geom.StockVolumeCm3 > 0 && mat != nil {
		massKg = geom.StockVolumeCm3 * mat.Density / 1e6
	}
	costPerKg := material.Fallback().CostPerKg
	matCode := material.Fallback().Code
	leadDays := material.Fallback().LeadTimeDays
	if mat != nil {
		costPerKg = mat.CostPerKg
		matCode = mat.Code
		leadDays = mat.LeadTimeDays
	}
	materialCost := massKg * costPerKg * float64(qty)
	addCost("material", "Raw material ("+matCode+")", materialCost,
		map[string]any{"massKgPerPart": massKg, "costPerKg": costPerKg})

	// Machining: flat per-process minutes scaled by the tolerance multiplier.
	rate := runCfg.MachineRatePerMin[process]
	machineMult := summary.MachineMultiplier
	if machineMult < 1 {
		machineMult = 1
	}
	minutes := legacyMachineMinutes[process] * machineMult
	machineCost := minutes * rate * float64(qty)
	addCost("machine_time", "Machine time", machineCost,
		map[string]any{"minutesPerPart": minutes, "ratePerMin": rate})

	// Setup, once per lot.
	setupMult := summary.SetupMultiplier
	if setupMult < 1 {
		setupMult = 1
	}
	setupMinutes := runCfg.SetupMinutes[process] * setupMult
	setupCost := setupMinutes * rate
	addCost("setup", "Setup & programming", setupCost,
		map[string]any{"setupMinutes": setupMinutes})

	// Finishing off the static rate card; the remote estimator is part of
	// the pipeline that just failed.
	finishCost := 0.0
	if len(finishes) > 0 {
		area := legacyDefaultSurfaceCm2
		if geom != nil && geom.SurfaceAreaCm2 > 0 {
			area = geom.SurfaceAreaCm2
		}
		res, _ := (&finishing.StaticClient{}).EstimateChain(ctx, finishing.ChainInput{
			Process:        string(process),
			Finishes:       finishes,
			SurfaceAreaCm2: area,
			Quantity:       qty,
			BatchSize:      qty,
			MaterialCode:   matCode,
		})
		finishCost = res.Cost
		leadDays += res.AddedLeadDays
		addCost("finishing", "Surface finishing", finishCost,
			map[string]any{"finishes": finishes})
	}

	// Inspection on a sampled fraction of the lot.
	inspectMult := summary.InspectionMultiplier
	if inspectMult < 1 {
		inspectMult = 1
	}
	sampled := int(math.Ceil(float64(qty) * legacyInspectSample))
	if sampled < 1 {
		sampled = 1
	}
	perPart := (legacyInspectBaseMinutes + legacyInspectMinutesPerTol*float64(summary.EntryCount)) * inspectMult
	inspectionCost := perPart * float64(sampled) * runCfg.InspectionRatePerMin
	addCost("inspection", "Inspection", inspectionCost,
		map[string]any{"sampledParts": sampled, "minutesPerPart": perPart})

	subtotal := materialCost + machineCost + setupCost + finishCost + inspectionCost
	if runCfg.OverheadRate > 0 {
		overhead := subtotal * runCfg.OverheadRate
		addCost("overhead", "Shop overhead", overhead,
			map[string]any{"rate": runCfg.OverheadRate})
		subtotal += overhead
	}

	// Risk markup, then margin, then the quantity discount.
	markup := 1.0
	if risk != nil && risk.Markup > 0 {
		markup = risk.Markup
	}
	if summary.RiskMultiplier > 1 {
		markup *= summary.RiskMultiplier
	}
	if markup > 1 {
		addCost("risk_markup", "Risk markup", subtotal*(markup-1),
			map[string]any{"markup": markup})
	}

	margin := cfg.marginFor(subtotal / float64(qty))
	priced := subtotal * markup * (1 + margin)
	addCost("margin", "Margin", subtotal*markup*margin,
		map[string]any{"rate": margin})

	discount := DiscountFor(process, qty)
	unit := round2(priced / float64(qty) * (1 - discount))

	entry.UnitPrice = unit
	entry.TotalPrice = round2(unit * float64(qty))
	entry.Discount = discount
	entry.SubtotalCost = round2(subtotal)
	entry.LeadDays = leadDays
	return entry
}
