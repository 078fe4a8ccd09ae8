package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/factors"
	"github.com/mbd888/quotecore/internal/geometry"
	"github.com/mbd888/quotecore/internal/material"
	"github.com/mbd888/quotecore/internal/riskmodel"
	"github.com/mbd888/quotecore/internal/tax"
	"github.com/mbd888/quotecore/internal/tolerance"
	"github.com/mbd888/quotecore/internal/traces"
)

var (
	pricingCalcs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotecore",
		Subsystem: "pricing",
		Name:      "calculations_total",
		Help:      "Pricing calculations by outcome.",
	}, []string{"outcome"})

	legacyFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quotecore",
		Subsystem: "pricing",
		Name:      "legacy_fallbacks_total",
		Help:      "Quantity breaks priced by the legacy estimator after a pipeline failure.",
	})

	pricingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quotecore",
		Subsystem: "pricing",
		Name:      "calculation_seconds",
		Help:      "End-to-end pricing calculation latency.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)

func init() {
	prometheus.MustRegister(pricingCalcs, legacyFallbacks, pricingDuration)
}

// maxConcurrentQuantities bounds the per-request pipeline fan-out.
const maxConcurrentQuantities = 4

// Engine prices quote lines. It is safe for concurrent use.
type Engine struct {
	registry  *factors.Registry
	runCfg    factors.RunConfig
	legacyCfg LegacyConfig

	catalog   *catalog.Repository
	materials *material.Resolver
	risk      *riskmodel.Loader
	geometry  geometry.Analyzer
	tax       tax.Calculator

	logger *slog.Logger
}

// NewEngine wires a pricing engine from its collaborators.
func NewEngine(
	registry *factors.Registry,
	cat *catalog.Repository,
	materials *material.Resolver,
	risk *riskmodel.Loader,
	geom geometry.Analyzer,
	taxCalc tax.Calculator,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		registry:  registry,
		runCfg:    factors.DefaultRunConfig(),
		legacyCfg: DefaultLegacyConfig(),
		catalog:   cat,
		materials: materials,
		risk:      risk,
		geometry:  geom,
		tax:       taxCalc,
		logger:    logger,
	}
}

// WithRunConfig overrides the shop rate card.
func (e *Engine) WithRunConfig(cfg factors.RunConfig) *Engine {
	e.runCfg = cfg
	return e
}

// WithLegacyConfig overrides the fallback margin policy.
func (e *Engine) WithLegacyConfig(cfg LegacyConfig) *Engine {
	e.legacyCfg = cfg
	return e
}

// Calculate prices a quote line across its requested quantities.
func (e *Engine) Calculate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	defer func() { pricingDuration.Observe(time.Since(start).Seconds()) }()

	if err := req.Validate(); err != nil {
		pricingCalcs.WithLabelValues("invalid").Inc()
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "pricing.calculate",
		traces.QuoteID(req.QuoteID),
		traces.LineID(req.LineID),
		traces.Process(req.Process),
		traces.MaterialCode(req.MaterialCode),
	)
	defer span.End()

	process := catalog.Process(req.Process)
	var flags []string

	// Tolerance resolution is synchronous: everything downstream needs it.
	tolMap := tolerance.Parse(req.ToleranceEntries, req.FreeTextNotes(), tolerance.UnitMM)
	profile := tolerance.ProfileFor(req.ToleranceBand)

	version, err := e.resolveCatalogVersion(ctx, req)
	if err != nil {
		pricingCalcs.WithLabelValues("error").Inc()
		return nil, err
	}
	span.SetAttributes(traces.CatalogVersion(version))

	matches, err := e.findMatches(ctx, version, process, tolMap)
	if err != nil {
		pricingCalcs.WithLabelValues("error").Inc()
		return nil, err
	}
	summary := buildSummary(profile, tolMap, matches)

	// Material and geometry resolve concurrently; both degrade instead of
	// failing the request.
	var (
		mat  *material.CatalogItem
		geom *geometry.Snapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var rerr error
		mat, rerr = e.materials.Resolve(gctx, req.MaterialCode, req.Region)
		return rerr
	})
	g.Go(func() error {
		if e.geometry == nil {
			return nil
		}
		snap, aerr := e.geometry.Analyze(gctx, req.OrgID, req.PartID)
		if aerr != nil {
			e.logger.Warn("geometry unavailable, using estimate",
				"part", req.PartID, "error", aerr)
			return nil
		}
		geom = snap
		return nil
	})
	if err := g.Wait(); err != nil {
		pricingCalcs.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("pricing: resolve material: %w", err)
	}
	if mat.IsFallback {
		flags = append(flags, "material_fallback")
	}
	if geom == nil {
		geom = estimatedGeometry(mat)
		flags = append(flags, "geometry_estimate")
	}

	risk := e.loadRisk(ctx, req, summary)
	if risk == nil {
		flags = append(flags, "risk_unavailable")
	}

	matrix := e.priceQuantities(ctx, req, process, tolMap, summary, matches, mat, geom, risk)

	resp := &Response{
		QuoteID:        req.QuoteID,
		LineID:         req.LineID,
		Process:        req.Process,
		MaterialCode:   mat.Code,
		MaterialName:   mat.Name,
		Region:         req.Region,
		CatalogVersion: version,
		Matrix:         matrix,
		Currency:       "usd",
		Flags:          flags,
		Tolerances: ToleranceReport{
			Band:           profile.Band,
			EntryCount:     summary.EntryCount,
			TightestMM:     summary.TightestMM,
			ReviewRequired: summary.ReviewRequired,
			Entries:        tolMap,
			MatchedRowIDs:  summary.MatchedRowIDs,
			Multipliers: map[string]float64{
				"machine":    summary.MachineMultiplier,
				"setup":      summary.SetupMultiplier,
				"inspection": summary.InspectionMultiplier,
				"risk":       summary.RiskMultiplier,
			},
		},
	}

	e.applyTax(ctx, req, resp)

	pricingCalcs.WithLabelValues("ok").Inc()
	return resp, nil
}

func (e *Engine) resolveCatalogVersion(ctx context.Context, req *Request) (int64, error) {
	if req.CatalogVersion > 0 {
		return req.CatalogVersion, nil
	}
	v, err := e.catalog.CatalogVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("pricing: resolve catalog version: %w", err)
	}
	return v, nil
}

// findMatches looks up cost-book rows for every normalized tolerance entry.
func (e *Engine) findMatches(ctx context.Context, version int64, process catalog.Process, tols tolerance.Map) ([]catalog.Row, error) {
	var all []catalog.Row
	for _, n := range tols {
		rows, err := e.catalog.FindMatchesAt(ctx, version, process, n.FeatureType, n.AppliesTo, n.Unit, n.Value)
		if err != nil {
			return nil, fmt.Errorf("pricing: catalog lookup: %w", err)
		}
		all = append(all, rows...)
	}
	return all, nil
}

// loadRisk fetches the risk snapshot, degrading to nil on store failure.
func (e *Engine) loadRisk(ctx context.Context, req *Request, summary tolerance.Summary) *riskmodel.Snapshot {
	derived := riskmodel.DerivedTightTolerance(summary.MachineMultiplier)
	snap, err := e.risk.Load(ctx, req.OrgID, req.QuoteID, req.LineID, req.Process, derived)
	if err != nil {
		e.logger.Warn("risk snapshot unavailable, pricing without markup",
			"quote", req.QuoteID, "line", req.LineID, "error", err)
		return nil
	}
	return snap
}

// priceQuantities runs the factor pipeline for each quantity break in
// parallel. A pipeline failure downgrades that break to the legacy
// estimator rather than failing the request.
func (e *Engine) priceQuantities(
	ctx context.Context,
	req *Request,
	process catalog.Process,
	tols tolerance.Map,
	summary tolerance.Summary,
	matches []catalog.Row,
	mat *material.CatalogItem,
	geom *geometry.Snapshot,
	risk *riskmodel.Snapshot,
) []MatrixEntry {
	entries := make([]MatrixEntry, len(req.Quantities))

	var g errgroup.Group
	g.SetLimit(maxConcurrentQuantities)
	for i, qty := range req.Quantities {
		g.Go(func() error {
			in := &factors.Input{
				OrgID:        req.OrgID,
				QuoteID:      req.QuoteID,
				LineID:       req.LineID,
				PartID:       req.PartID,
				Process:      process,
				MaterialCode: req.MaterialCode,
				Region:       req.Region,
				Quantity:     qty,
				Finishes:     req.Finishes,
				Features:     req.Features,
				Profile:      summary.BaseProfile,
				Tolerances:   tols,
				Summary:      summary,
				Matches:      matches,
				Material:     mat,
				Geometry:     geom,
				Risk:         risk,
			}

			rc, err := e.registry.Run(ctx, in, e.runCfg)
			if err != nil {
				legacyFallbacks.Inc()
				e.logger.Error("factor pipeline failed, using legacy estimator",
					"quote", req.QuoteID, "line", req.LineID, "quantity", qty, "error", err)
				entries[i] = legacyQuote(ctx, e.legacyCfg, e.runCfg, process,
					mat, geom, summary, risk, req.Finishes, qty)
				return nil
			}

			discount := DiscountFor(process, qty)
			unit := round2(rc.Price(qty) * (1 - discount))
			entries[i] = MatrixEntry{
				Quantity:            qty,
				UnitPrice:           unit,
				TotalPrice:          round2(unit * float64(qty)),
				Discount:            discount,
				SubtotalCost:        round2(rc.SubtotalCost),
				LeadDays:            rc.LeadDays,
				CostFactors:         rc.Breakdown,
				Flags:               rc.Flags,
				OrchestratorVersion: e.registry.Version(),
			}
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors

	sort.Slice(entries, func(i, j int) bool { return entries[i].Quantity < entries[j].Quantity })
	return entries
}

// applyTax computes tax for the selected quantity break. Tax failures never
// block a quote: the response degrades to zero tax with a flag.
func (e *Engine) applyTax(ctx context.Context, req *Request, resp *Response) {
	if req.ShipTo == nil || e.tax == nil || len(resp.Matrix) == 0 {
		return
	}

	entry := resp.Matrix[0]
	if req.SelectedQuantity > 0 {
		for _, m := range resp.Matrix {
			if m.Quantity == req.SelectedQuantity {
				entry = m
				break
			}
		}
	}

	items := []tax.LineItem{{
		Reference:   req.QuoteID + ":" + req.LineID,
		AmountCents: int64(math.Round(entry.TotalPrice * 100)),
	}}

	res, err := e.tax.Calculate(ctx, *req.ShipTo, items)
	if err != nil {
		e.logger.Warn("tax calculation failed, quoting without tax",
			"quote", req.QuoteID, "error", err)
		res, _ = tax.ZeroCalculator{}.Calculate(ctx, *req.ShipTo, items)
		resp.Flags = append(resp.Flags, "tax_unavailable")
	}
	resp.Tax = res
}

// estimatedGeometry backs pricing when the geometry service is down: a
// conservative half-kilo part with mid-range complexity.
func estimatedGeometry(mat *material.CatalogItem) *geometry.Snapshot {
	density := mat.Density
	if density <= 0 {
		density = material.Fallback().Density
	}
	stockCm3 := legacyDefaultMassKg / density * 1e6
	return &geometry.Snapshot{
		PartVolumeCm3:  stockCm3 * 0.6,
		StockVolumeCm3: stockCm3,
		SurfaceAreaCm2: stockCm3, // rough: 1 cm² per cm³ of stock
		Complexity:     0.5,
	}
}

// round2 rounds money half-up to cents.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
