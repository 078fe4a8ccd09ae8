// Package pricing is the quote pricing engine. It resolves materials,
// tolerances, geometry, and risk for a quote line, runs the factor pipeline
// per quantity, and produces a price matrix with quantity discounts.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/factors"
	"github.com/mbd888/quotecore/internal/tax"
	"github.com/mbd888/quotecore/internal/tolerance"
)

// MaxQuantities caps how many quantity breaks one request can price.
const MaxQuantities = 10

var (
	ErrInvalidProcess = errors.New("pricing: invalid process")
	ErrNoQuantities   = errors.New("pricing: at least one quantity required")
)

// Request is one quote-line pricing request.
type Request struct {
	OrgID        string `json:"orgId" binding:"required"`
	QuoteID      string `json:"quoteId" binding:"required"`
	LineID       string `json:"lineId" binding:"required"`
	PartID       string `json:"partId"`
	Process      string `json:"process" binding:"required"`
	MaterialCode string `json:"materialCode" binding:"required"`
	Region       string `json:"region"`

	Quantities []int    `json:"quantities" binding:"required"`
	Finishes   []string `json:"finishes"`

	ToleranceBand    string            `json:"toleranceBand"`
	ToleranceEntries []tolerance.Entry `json:"toleranceEntries"`
	EngineeringNotes string            `json:"engineeringNotes"`
	// DFMFindings are issue messages and recommendations from design-for-
	// manufacturability review; they are scanned for tolerance callouts
	// alongside the engineering notes.
	DFMFindings []string `json:"dfmFindings"`

	Features map[string]any `json:"features"`

	// CatalogVersion pins the cost-book version; zero means latest.
	CatalogVersion int64 `json:"catalogVersion"`

	// ShipTo enables tax calculation for the selected quantity.
	ShipTo *tax.Address `json:"shipTo"`
	// SelectedQuantity picks the matrix row tax applies to; zero means the
	// first requested quantity.
	SelectedQuantity int `json:"selectedQuantity"`
}

// FreeTextNotes joins every free-text tolerance source on the request:
// engineering notes first, then DFM findings.
func (r *Request) FreeTextNotes() string {
	if len(r.DFMFindings) == 0 {
		return r.EngineeringNotes
	}
	parts := make([]string, 0, len(r.DFMFindings)+1)
	if r.EngineeringNotes != "" {
		parts = append(parts, r.EngineeringNotes)
	}
	parts = append(parts, r.DFMFindings...)
	return strings.Join(parts, "\n")
}

// Validate normalizes and checks the request.
func (r *Request) Validate() error {
	if !catalog.ValidProcess(catalog.Process(r.Process)) {
		return fmt.Errorf("%w: %q", ErrInvalidProcess, r.Process)
	}
	if len(r.Quantities) == 0 {
		return ErrNoQuantities
	}
	if len(r.Quantities) > MaxQuantities {
		return fmt.Errorf("pricing: at most %d quantities per request", MaxQuantities)
	}
	for _, q := range r.Quantities {
		if q < 1 {
			return fmt.Errorf("pricing: quantity must be positive, got %d", q)
		}
	}
	return nil
}

// MatrixEntry is one priced quantity break.
type MatrixEntry struct {
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	TotalPrice   float64 `json:"totalPrice"`
	Discount     float64 `json:"discount"`
	SubtotalCost float64 `json:"subtotalCost"`
	LeadDays     int     `json:"leadDays"`

	CostFactors []factors.BreakdownLine `json:"costFactors"`
	Flags       []string                `json:"flags,omitempty"`

	// OrchestratorVersion is empty on the legacy fallback path.
	OrchestratorVersion string `json:"orchestratorVersion,omitempty"`
	Legacy              bool   `json:"legacy,omitempty"`
}

// ToleranceReport summarizes the tolerance resolution for the response.
type ToleranceReport struct {
	Band           string                          `json:"band"`
	EntryCount     int                             `json:"entryCount"`
	TightestMM     float64                         `json:"tightestMm,omitempty"`
	ReviewRequired bool                            `json:"reviewRequired"`
	Multipliers    map[string]float64              `json:"multipliers"`
	Entries        map[string]tolerance.Normalized `json:"entries,omitempty"`
	MatchedRowIDs  []int64                         `json:"matchedRowIds,omitempty"`
}

// Response is the priced quote line.
type Response struct {
	QuoteID        string `json:"quoteId"`
	LineID         string `json:"lineId"`
	Process        string `json:"process"`
	MaterialCode   string `json:"materialCode"`
	MaterialName   string `json:"materialName,omitempty"`
	Region         string `json:"region,omitempty"`
	CatalogVersion int64  `json:"catalogVersion"`

	Tolerances ToleranceReport `json:"tolerances"`
	Matrix     []MatrixEntry   `json:"matrix"`

	Tax      *tax.Result `json:"tax,omitempty"`
	Currency string      `json:"currency"`
	Flags    []string    `json:"flags,omitempty"`
}
