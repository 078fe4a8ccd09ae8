// Package material resolves a material code or id plus a shipping region to
// density, cost/kg, and a region cost multiplier, falling back to a default
// aluminum profile when the catalog has no answer.
package material

import (
	"context"
	"errors"

	"github.com/mbd888/quotecore/internal/catalog"
)

var (
	ErrNotFound      = errors.New("material: not found")
	ErrAliasNotFound = errors.New("material: alias not found")
)

// CatalogItem is a resolved material profile. CostPerKg already includes
// the region multiplier; BaseCostPerKg is the catalog value before it.
type CatalogItem struct {
	ID               string            `json:"id"`
	Code             string            `json:"code"`
	Name             string            `json:"name"`
	Category         string            `json:"category"`
	CostPerKg        float64           `json:"costPerKg"`
	BaseCostPerKg    float64           `json:"baseCostPerKg"`
	RegionMultiplier float64           `json:"regionMultiplier"`
	Density          float64           `json:"density"` // kg/m³
	Available        bool              `json:"available"`
	LeadTimeDays     int               `json:"leadTimeDays"`
	Processes        []catalog.Process `json:"processes,omitempty"`
	IsFallback       bool              `json:"isFallback"`
}

// SupportsProcess reports whether the material is rated for the process.
// An empty process list means "all".
func (c *CatalogItem) SupportsProcess(p catalog.Process) bool {
	if len(c.Processes) == 0 {
		return true
	}
	for _, v := range c.Processes {
		if v == p {
			return true
		}
	}
	return false
}

// Store is the persistence interface for the material catalog.
type Store interface {
	// Get looks a material up by id or code. Returns ErrNotFound on miss.
	Get(ctx context.Context, identifier string) (*CatalogItem, error)
	// ResolveAlias maps an alias to a canonical material id. Returns
	// ErrAliasNotFound on miss.
	ResolveAlias(ctx context.Context, alias string) (string, error)
	// RegionMultiplier returns the cost multiplier for a material in a
	// region; 1 when no row exists.
	RegionMultiplier(ctx context.Context, materialID, region string) (float64, error)
	// Upsert writes a catalog entry (admin/test path).
	Upsert(ctx context.Context, item *CatalogItem) error
	// AddAlias registers an alias for a material id.
	AddAlias(ctx context.Context, alias, materialID string) error
	// SetRegionMultiplier writes a region multiplier row.
	SetRegionMultiplier(ctx context.Context, materialID, region string, multiplier float64) error
}

// Fallback returns the hard-coded default profile used when catalog
// resolution fails entirely: aluminum 6061-T6, the shop's bread and butter.
func Fallback() *CatalogItem {
	return &CatalogItem{
		ID:               "fallback-al-6061-t6",
		Code:             "AL_6061_T6",
		Name:             "Aluminum 6061-T6",
		Category:         "aluminum",
		CostPerKg:        4.5,
		BaseCostPerKg:    4.5,
		RegionMultiplier: 1,
		Density:          2700,
		Available:        true,
		LeadTimeDays:     5,
		IsFallback:       true,
	}
}
