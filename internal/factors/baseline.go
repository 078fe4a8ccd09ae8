package factors

import (
	"context"
	"fmt"
	"math"

	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/finishing"
	"github.com/mbd888/quotecore/internal/geometry"
)

// descriptor carries the identity every baseline factor shares.
type descriptor struct {
	name   string
	stage  Stage
	order  int
	policy FailurePolicy
}

func (d descriptor) Name() string          { return d.name }
func (d descriptor) Stage() Stage          { return d.stage }
func (d descriptor) Order() int            { return d.order }
func (d descriptor) Policy() FailurePolicy { return d.policy }

// Applies defaults to unconditional; conditional factors override it.
func (d descriptor) Applies(*Input) bool { return true }

// RegisterBaseline wires the standard factor set into a registry. finClient
// prices finish chains; pass a finishing.StaticClient when no service is
// configured.
func RegisterBaseline(r *Registry, finClient finishing.Client) {
	r.MustRegister(
		&SetupAmortizationFactor{descriptor{"setup_amortization", StageSetup, 10, PolicyPropagate}},
		&MaterialCostFactor{descriptor{"material_cost", StageCost, 10, PolicyPropagate}},
		&MachineTimeFactor{descriptor{"machine_time", StageCost, 20, PolicyPropagate}},
		&FinishChainFactor{descriptor{"finish_chain_cost", StageCost, 40, PolicySwallow}, finClient},
		&InspectionCostFactor{descriptor{"inspection_cost", StagePostCost, 50, PolicyPropagate}},
		&OverheadFactor{descriptor{"overhead", StagePostCost, 55, PolicyPropagate}},
		&RiskMarkupFactor{descriptor{"risk_markup", StagePrice, 10, PolicyPropagate}},
	)
}

// MaterialCostFactor prices raw stock: stock volume times density times the
// region-adjusted cost per kg, for the whole quantity. It also floors the
// lead time at the material's lead time.
type MaterialCostFactor struct{ descriptor }

func (f *MaterialCostFactor) Apply(ctx context.Context, in *Input, rc *RunContext) error {
	if in.Material == nil {
		return fmt.Errorf("material not resolved")
	}
	if in.Geometry == nil {
		return fmt.Errorf("geometry snapshot required")
	}

	// cm³ × kg/m³ → kg
	massKg := in.Geometry.StockVolumeCm3 * in.Material.Density / 1e6
	cost := massKg * in.Material.CostPerKg * float64(in.Quantity)

	rc.AddCost("material", "Raw material ("+in.Material.Code+")", cost, map[string]any{
		"massKgPerPart": massKg,
		"costPerKg":     in.Material.CostPerKg,
		"fallback":      in.Material.IsFallback,
	})
	rc.ExtendLead(in.Material.LeadTimeDays)
	if in.Material.IsFallback {
		rc.AddFlag("material_fallback")
	}
	return nil
}

// MachineTimeFactor estimates per-part cycle time with a process-specific
// formula over the geometry snapshot's feature counts, scaled by the
// tolerance machine multiplier.
type MachineTimeFactor struct{ descriptor }

// Cycle time model constants, minutes.
const (
	millBaseMinutes          = 8.0
	millMinutesPerRemovedCm3 = 0.35
	millMinutesPerHole       = 0.5
	millMinutesPerPocket     = 2.0
	complexityMinutesAtWorst = 25.0

	turnBaseMinutes          = 6.0
	turnMinutesPerRemovedCm3 = 0.25
	turnMinutesPerOperation  = 1.5

	sheetBaseMinutes     = 4.0
	sheetMinutesPerBend  = 0.75
	sheetMinutesPerCut   = 0.05
	sheetComplexityScale = 12.0
)

// cycleMinutes is the per-part cutting time before tolerance scaling. Each
// process reads the feature counts that drive its cycle: holes and pockets
// for milling, operation count for turning, bends and pierces for sheet.
// Missing counts contribute zero, so a sparse snapshot still prices.
func cycleMinutes(process catalog.Process, g *geometry.Snapshot) float64 {
	counts := g.FeatureCounts
	switch process {
	case catalog.ProcessTurning:
		return turnBaseMinutes +
			turnMinutesPerRemovedCm3*g.RemovedVolumeCm3() +
			turnMinutesPerOperation*float64(counts["operations"]) +
			complexityMinutesAtWorst*g.Complexity
	case catalog.ProcessSheet:
		return sheetBaseMinutes +
			sheetMinutesPerBend*float64(counts["bends"]) +
			sheetMinutesPerCut*float64(counts["pierces"]) +
			sheetComplexityScale*g.Complexity
	default: // milling
		return millBaseMinutes +
			millMinutesPerRemovedCm3*g.RemovedVolumeCm3() +
			millMinutesPerHole*float64(counts["holes"]) +
			millMinutesPerPocket*float64(counts["pockets"]+counts["slots"]) +
			complexityMinutesAtWorst*g.Complexity
	}
}

func (f *MachineTimeFactor) Apply(ctx context.Context, in *Input, rc *RunContext) error {
	if in.Geometry == nil {
		return fmt.Errorf("geometry snapshot required")
	}
	rate, ok := rc.Config.MachineRatePerMin[in.Process]
	if !ok {
		return fmt.Errorf("no machine rate for process %s", in.Process)
	}

	perPart := cycleMinutes(in.Process, in.Geometry) * in.Summary.MachineMultiplier
	total := perPart * float64(in.Quantity)
	cost := total * rate

	rc.TimeMinutes += total
	rc.AddCost("machine_time", "Machine time", cost, map[string]any{
		"minutesPerPart":    perPart,
		"quantity":          in.Quantity,
		"totalMinutes":      total,
		"ratePerMin":        rate,
		"machineMultiplier": in.Summary.MachineMultiplier,
	})
	return nil
}

// SetupAmortizationFactor charges the per-lot setup once, scaled by the
// tolerance setup multiplier. Larger quantities amortize it across units.
type SetupAmortizationFactor struct{ descriptor }

func (f *SetupAmortizationFactor) Apply(ctx context.Context, in *Input, rc *RunContext) error {
	rate, ok := rc.Config.MachineRatePerMin[in.Process]
	if !ok {
		return fmt.Errorf("no machine rate for process %s", in.Process)
	}
	setupMin, ok := rc.Config.SetupMinutes[in.Process]
	if !ok {
		return fmt.Errorf("no setup time for process %s", in.Process)
	}

	minutes := setupMin * in.Summary.SetupMultiplier
	rc.TimeMinutes += minutes
	rc.AddCost("setup", "Setup & programming", minutes*rate, map[string]any{
		"setupMinutes":    minutes,
		"setupMultiplier": in.Summary.SetupMultiplier,
	})
	return nil
}

// FinishChainFactor prices the requested finish chain via the finishing
// service. It only applies when the line carries finishes. Failures are
// swallowed: the quote proceeds without finishing cost and carries a flag.
type FinishChainFactor struct {
	descriptor
	client finishing.Client
}

func (f *FinishChainFactor) Applies(in *Input) bool { return len(in.Finishes) > 0 }

func (f *FinishChainFactor) Apply(ctx context.Context, in *Input, rc *RunContext) error {
	if in.Geometry == nil {
		return fmt.Errorf("geometry snapshot required")
	}

	partClass, _ := in.Features["partClass"].(string)
	res, err := f.client.EstimateChain(ctx, finishing.ChainInput{
		OrgID:          in.OrgID,
		QuoteLineID:    in.QuoteID + ":" + in.LineID,
		Process:        string(in.Process),
		Finishes:       in.Finishes,
		SurfaceAreaCm2: in.Geometry.SurfaceAreaCm2,
		VolumeCm3:      in.Geometry.PartVolumeCm3,
		MaterialCode:   in.MaterialCode,
		Region:         in.Region,
		Quantity:       in.Quantity,
		BatchSize:      in.Quantity,
		PartClass:      partClass,
	})
	if err != nil {
		return fmt.Errorf("estimate finish chain: %w", err)
	}

	meta := map[string]any{"finishes": in.Finishes}
	if len(res.Steps) > 0 {
		meta["steps"] = res.Steps
	}
	rc.AddCost("finishing", "Surface finishing", res.Cost, meta)
	rc.AddLeadDays(res.AddedLeadDays)
	return nil
}

// InspectionCostFactor prices dimensional inspection on a 10% sample of the
// lot (minimum one part). Time per sampled part grows with the number of
// called-out tolerances and the band's inspection multiplier.
type InspectionCostFactor struct{ descriptor }

const (
	inspectionBaseMinutes    = 5.0
	inspectionMinutesPerTol  = 1.0
	inspectionSampleFraction = 0.1
)

func (f *InspectionCostFactor) Apply(ctx context.Context, in *Input, rc *RunContext) error {
	sampled := int(math.Ceil(float64(in.Quantity) * inspectionSampleFraction))
	if sampled < 1 {
		sampled = 1
	}

	perPart := (inspectionBaseMinutes + inspectionMinutesPerTol*float64(in.Summary.EntryCount)) *
		in.Summary.InspectionMultiplier
	minutes := perPart * float64(sampled)

	rc.TimeMinutes += minutes
	rc.AddCost("inspection", "Inspection", minutes*rc.Config.InspectionRatePerMin, map[string]any{
		"sampledParts":         sampled,
		"minutesPerPart":       perPart,
		"inspectionMultiplier": in.Summary.InspectionMultiplier,
	})
	return nil
}

// OverheadFactor applies the shop overhead rate to everything accumulated so
// far. It runs after all other cost factors.
type OverheadFactor struct{ descriptor }

func (f *OverheadFactor) Apply(ctx context.Context, in *Input, rc *RunContext) error {
	rate := rc.Config.OverheadRate
	if rate <= 0 {
		return nil
	}
	rc.AddCost("overhead", "Shop overhead", rc.SubtotalCost*rate, map[string]any{
		"rate": rate,
	})
	return nil
}

// RiskMarkupFactor converts the subtotal into a per-unit price, marked up by
// the manufacturability risk severity and the tolerance band's risk
// multiplier.
type RiskMarkupFactor struct{ descriptor }

func (f *RiskMarkupFactor) Apply(ctx context.Context, in *Input, rc *RunContext) error {
	qty := in.Quantity
	if qty < 1 {
		qty = 1
	}

	markup := 1.0
	if in.Risk != nil && in.Risk.Markup > 0 {
		markup = in.Risk.Markup
	}
	if in.Summary.RiskMultiplier > 1 {
		markup *= in.Summary.RiskMultiplier
	}

	price := rc.SubtotalCost * markup / float64(qty)
	rc.SetPrice(price)

	if markup > 1 {
		rc.AddLine("risk_markup", "Risk markup", rc.SubtotalCost*(markup-1), map[string]any{
			"markup": markup,
		})
	}
	return nil
}
