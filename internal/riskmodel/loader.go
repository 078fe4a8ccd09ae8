package riskmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Loader builds pricing risk snapshots from persisted results.
type Loader struct {
	store  Store
	markup map[Severity]float64
	logger *slog.Logger
}

// NewLoader creates a loader with the default severity markup policy.
func NewLoader(store Store, logger *slog.Logger) *Loader {
	return &Loader{store: store, markup: DefaultSeverityMarkup, logger: logger}
}

// WithMarkupTable overrides the severity → markup policy table.
func (l *Loader) WithMarkupTable(table map[Severity]float64) *Loader {
	l.markup = table
	return l
}

// DerivedTightTolerance maps the tolerance summary's machine multiplier to
// a tight-tolerance risk value in [0,1]. A multiplier of 1 carries no risk;
// 2.5 and above saturates.
func DerivedTightTolerance(machineMultiplier float64) float64 {
	v := (machineMultiplier - 1.0) / 1.5
	return clamp01(v)
}

// Load fetches the latest persisted risk result for a quote line and turns
// it into an immutable snapshot. A missing result is not an error: pricing
// proceeds with no markup. derivedTight is the locally computed
// tight-tolerance risk; it is combined with the persisted value via max so
// local computation never reduces an already-elevated score.
func (l *Loader) Load(ctx context.Context, orgID, quoteID, lineID, process string, derivedTight float64) (*Snapshot, error) {
	derivedTight = clamp01(derivedTight)

	result, err := l.store.LatestResult(ctx, orgID, quoteID, lineID)
	if errors.Is(err, ErrResultNotFound) {
		l.logger.Debug("no persisted risk result, pricing without markup",
			"org", orgID, "quote", quoteID, "line", lineID)
		return &Snapshot{
			Vector:   map[string]float64{DimTightTolerances: derivedTight},
			Severity: SeverityLow,
			Markup:   1,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("riskmodel: load result: %w", err)
	}

	vector := make(map[string]float64, len(Dimensions))
	for _, dim := range Dimensions {
		vector[dim] = clamp01(result.Vector[dim])
	}
	vector[DimTightTolerances] = math.Max(vector[DimTightTolerances], derivedTight)

	weights := l.loadWeights(ctx, result.ConfigID, process)

	return &Snapshot{
		Vector:        vector,
		Score:         result.Score,
		Severity:      result.Severity,
		Contributions: contributions(vector, weights),
		Markup:        1 + l.markup[result.Severity],
	}, nil
}

// loadWeights resolves dimension weights: the config the result was scored
// with when referenced, else the latest config for the process, else equal
// weights.
func (l *Loader) loadWeights(ctx context.Context, configID, process string) map[string]float64 {
	if configID != "" {
		cfg, err := l.store.GetConfig(ctx, configID)
		if err == nil {
			return cfg.Weights
		}
		l.logger.Debug("referenced risk config missing", "config", configID, "error", err)
	}

	cfg, err := l.store.LatestConfig(ctx, process)
	if err == nil {
		return cfg.Weights
	}
	l.logger.Debug("no risk config for process, using equal weights", "process", process)

	equal := make(map[string]float64, len(Dimensions))
	for _, dim := range Dimensions {
		equal[dim] = 1
	}
	return equal
}

// contributions computes each dimension's weighted share of the score:
// 100 * weight * value / sum(weights), with a zero-safe denominator.
func contributions(vector, weights map[string]float64) map[string]float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}

	out := make(map[string]float64, len(vector))
	for dim, v := range vector {
		if sum <= 0 {
			out[dim] = 0
			continue
		}
		out[dim] = 100 * weights[dim] * v / sum
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
