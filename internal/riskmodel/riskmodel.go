// Package riskmodel loads persisted manufacturability risk results and
// converts them into the markup snapshot the pricing engine consumes.
//
// A risk result is a five-dimensional vector in [0,1] scored by the DFM
// analysis pipeline; severity bucketing is owned by that pipeline. This
// package only weights the vector and derives a price markup.
package riskmodel

import (
	"context"
	"errors"
	"time"
)

var (
	ErrResultNotFound = errors.New("riskmodel: result not found")
	ErrConfigNotFound = errors.New("riskmodel: config not found")
)

// Severity is the risk bucket assigned by the scoring pipeline.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Risk vector dimension names.
const (
	DimThinWalls        = "thin_walls"
	DimDeepPockets      = "deep_pockets"
	DimSmallHoles       = "small_holes"
	DimTightTolerances  = "tight_tolerances"
	DimMaterialHardness = "material_hardness"
)

// Dimensions lists the vector dimensions in canonical order.
var Dimensions = []string{
	DimThinWalls, DimDeepPockets, DimSmallHoles, DimTightTolerances, DimMaterialHardness,
}

// DefaultSeverityMarkup is the severity → markup policy table. The loader
// takes it as a constructor argument so the business can tune it without a
// code change.
var DefaultSeverityMarkup = map[Severity]float64{
	SeverityLow:      0,
	SeverityMedium:   0.05,
	SeverityHigh:     0.12,
	SeverityCritical: 0.25,
}

// Result is one persisted risk scoring outcome for a quote line.
type Result struct {
	ID        string             `json:"id"`
	OrgID     string             `json:"orgId"`
	QuoteID   string             `json:"quoteId"`
	LineID    string             `json:"lineId"`
	Vector    map[string]float64 `json:"vector"`
	Score     float64            `json:"score"`
	Severity  Severity           `json:"severity"`
	ConfigID  string             `json:"configId,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Config holds the dimension weights a risk vector is scored against.
type Config struct {
	ID        string             `json:"id"`
	Process   string             `json:"process"`
	Weights   map[string]float64 `json:"weights"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Snapshot is the per-pricing-call view of risk: immutable once built.
type Snapshot struct {
	Vector        map[string]float64 `json:"vector"`
	Score         float64            `json:"score"`
	Severity      Severity           `json:"severity"`
	Contributions map[string]float64 `json:"contributions"`
	Markup        float64            `json:"markup"`
}

// Store persists risk results and configs.
type Store interface {
	// LatestResult returns the most recent result for an (org, quote,
	// line) triple, or ErrResultNotFound.
	LatestResult(ctx context.Context, orgID, quoteID, lineID string) (*Result, error)
	// GetConfig fetches a config by id, or ErrConfigNotFound.
	GetConfig(ctx context.Context, id string) (*Config, error)
	// LatestConfig returns the most recent config for a process, or
	// ErrConfigNotFound.
	LatestConfig(ctx context.Context, process string) (*Config, error)
	// RecordResult persists a scoring outcome.
	RecordResult(ctx context.Context, result *Result) error
	// PutConfig persists a config (admin/test path).
	PutConfig(ctx context.Context, cfg *Config) error
}
