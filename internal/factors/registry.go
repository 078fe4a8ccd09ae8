package factors

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	factorRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotecore",
		Subsystem: "factors",
		Name:      "runs_total",
		Help:      "Factor executions by factor name and outcome.",
	}, []string{"factor", "outcome"})

	factorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quotecore",
		Subsystem: "factors",
		Name:      "duration_seconds",
		Help:      "Factor execution latency.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"factor"})
)

func init() {
	prometheus.MustRegister(factorRuns, factorDuration)
}

// Registry holds the registered factor set and runs the pipeline.
type Registry struct {
	version string
	factors []Factor
	byName  map[string]bool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. version tags every pipeline result
// so priced quotes can be traced to the factor set that produced them.
func NewRegistry(version string, logger *slog.Logger) *Registry {
	return &Registry{
		version: version,
		byName:  make(map[string]bool),
		logger:  logger,
	}
}

// Version returns the registry's version tag.
func (r *Registry) Version() string { return r.version }

// Register adds a factor. Duplicate names are rejected: the pipeline's
// deterministic ordering needs names to be unique tiebreakers.
func (r *Registry) Register(f Factor) error {
	if f.Name() == "" {
		return fmt.Errorf("factors: factor name required")
	}
	if r.byName[f.Name()] {
		return fmt.Errorf("factors: duplicate factor %q", f.Name())
	}
	r.byName[f.Name()] = true
	r.factors = append(r.factors, f)
	return nil
}

// MustRegister registers factors and panics on error. Wiring-time use only.
func (r *Registry) MustRegister(fs ...Factor) {
	for _, f := range fs {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
}

// ordered returns the factors sorted by stage, order, then name. The sort
// works on a copy so concurrent runs never race on the slice.
func (r *Registry) ordered() []Factor {
	out := make([]Factor, len(r.factors))
	copy(out, r.factors)
	sort.SliceStable(out, func(i, j int) bool {
		if a, b := stageRank(out[i].Stage()), stageRank(out[j].Stage()); a != b {
			return a < b
		}
		if a, b := out[i].Order(), out[j].Order(); a != b {
			return a < b
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Run executes the pipeline for one pricing input. A propagate-policy
// failure aborts and returns the error; swallow-policy failures flag the
// context and continue. The returned context is valid only when err is nil.
func (r *Registry) Run(ctx context.Context, in *Input, cfg RunConfig) (*RunContext, error) {
	rc := &RunContext{Config: cfg}

	for _, f := range r.ordered() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !f.Applies(in) {
			factorRuns.WithLabelValues(f.Name(), "skipped").Inc()
			rc.logf("SKIP factor=%s stage=%s", f.Name(), f.Stage())
			continue
		}

		rc.logf("START factor=%s stage=%s", f.Name(), f.Stage())
		start := time.Now()
		err := f.Apply(ctx, in, rc)
		factorDuration.WithLabelValues(f.Name()).Observe(time.Since(start).Seconds())

		if err != nil {
			if f.Policy() == PolicyPropagate {
				factorRuns.WithLabelValues(f.Name(), "error").Inc()
				r.logger.Error("pricing factor failed",
					"factor", f.Name(), "stage", string(f.Stage()),
					"quote", in.QuoteID, "line", in.LineID, "error", err)
				return nil, fmt.Errorf("factor %s: %w", f.Name(), err)
			}

			factorRuns.WithLabelValues(f.Name(), "swallowed").Inc()
			r.logger.Warn("pricing factor failed, continuing without it",
				"factor", f.Name(), "stage", string(f.Stage()),
				"quote", in.QuoteID, "line", in.LineID, "error", err)
			rc.AddFlag("factor_failed:" + f.Name())
			rc.logf("SKIP factor=%s error=%v", f.Name(), err)
			continue
		}

		factorRuns.WithLabelValues(f.Name(), "ok").Inc()
		rc.logf("END factor=%s subtotal=%.4f", f.Name(), rc.SubtotalCost)
	}

	return rc, nil
}
