// Package catalog implements the versioned tolerance cost-book: range-keyed
// rows mapping a tolerance tuple to a cost multiplier, resolved through a
// two-tier cache keyed by catalog version.
package catalog

import (
	"context"
	"errors"

	"github.com/mbd888/quotecore/internal/tolerance"
)

var (
	// ErrNoRows means the backing store has no active rows at all; callers
	// treat an empty match list differently (no multiplier override).
	ErrNoRows = errors.New("catalog: no active rows")
)

// Process identifies the manufacturing process a row applies to.
type Process string

const (
	ProcessCNCMilling Process = "cnc_milling"
	ProcessTurning    Process = "turning"
	ProcessSheet      Process = "sheet"
)

// Processes lists the supported values, for validation.
var Processes = []Process{ProcessCNCMilling, ProcessTurning, ProcessSheet}

// ValidProcess reports whether p is a known process.
func ValidProcess(p Process) bool {
	for _, v := range Processes {
		if v == p {
			return true
		}
	}
	return false
}

// Dimension names a cost dimension a row's multiplier affects.
type Dimension string

const (
	DimMachineTime Dimension = "machine_time"
	DimSetupTime   Dimension = "setup_time"
	DimInspection  Dimension = "inspection"
	DimRisk        Dimension = "risk"
)

// Row is one immutable cost-book record. The tolerance range is half-open:
// a value matches when tolFrom <= value < tolTo. Published rows never
// mutate; a new catalog version supersedes them.
type Row struct {
	ID             int64                 `json:"id"`
	Process        Process               `json:"process"`
	FeatureType    tolerance.FeatureType `json:"featureType"`
	AppliesTo      tolerance.AppliesTo   `json:"appliesTo"`
	Unit           tolerance.Unit        `json:"unit"`
	TolFrom        float64               `json:"tolFrom"`
	TolTo          float64               `json:"tolTo"`
	Multiplier     float64               `json:"multiplier"`
	Affects        []Dimension           `json:"affects"`
	Notes          string                `json:"notes,omitempty"`
	CatalogVersion int64                 `json:"catalogVersion"`
	Active         bool                  `json:"active"`
}

// Contains reports whether a tolerance value falls in the row's half-open
// range.
func (r Row) Contains(value float64) bool {
	return value >= r.TolFrom && value < r.TolTo
}

// AffectsDimension reports whether the row's multiplier applies to the
// dimension.
func (r Row) AffectsDimension(d Dimension) bool {
	for _, a := range r.Affects {
		if a == d {
			return true
		}
	}
	return false
}

// RowQuery filters rows in the backing store. Zero values mean "any".
type RowQuery struct {
	CatalogVersion int64
	Process        Process
	FeatureType    tolerance.FeatureType
	AppliesTo      tolerance.AppliesTo
	Unit           tolerance.Unit
	ActiveOnly     bool
}

// Store is the persistence interface for cost-book rows.
type Store interface {
	// ListRows returns rows matching the query, sorted ascending by TolFrom.
	ListRows(ctx context.Context, q RowQuery) ([]Row, error)
	// MaxActiveVersion returns the highest catalog version among active
	// rows, or ErrNoRows when the catalog is empty.
	MaxActiveVersion(ctx context.Context) (int64, error)
	// InsertRow publishes a new row (admin/test path).
	InsertRow(ctx context.Context, row *Row) error
}
