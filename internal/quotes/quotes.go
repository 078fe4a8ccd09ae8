// Package quotes persists priced quote lines so quotes can be audited and
// repriced against the catalog version they were originally quoted under.
package quotes

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/quotecore/internal/pricing"
)

var ErrNotFound = errors.New("quotes: record not found")

// Record is one persisted pricing calculation.
type Record struct {
	ID      string `json:"id"`
	OrgID   string `json:"orgId"`
	QuoteID string `json:"quoteId"`
	LineID  string `json:"lineId"`

	Process             string `json:"process"`
	MaterialCode        string `json:"materialCode"`
	Region              string `json:"region,omitempty"`
	CatalogVersion      int64  `json:"catalogVersion"`
	OrchestratorVersion string `json:"orchestratorVersion,omitempty"`

	Response *pricing.Response `json:"response"`

	CreatedAt time.Time `json:"createdAt"`
}

// Store persists pricing records.
type Store interface {
	// Insert persists a record.
	Insert(ctx context.Context, rec *Record) error
	// Get fetches a record by id, or ErrNotFound.
	Get(ctx context.Context, orgID, id string) (*Record, error)
	// ListByQuote returns all records for a quote, newest first.
	ListByQuote(ctx context.Context, orgID, quoteID string) ([]*Record, error)
}

// NewRecord builds a record from a priced response.
func NewRecord(id, orgID string, resp *pricing.Response) *Record {
	version := ""
	for _, m := range resp.Matrix {
		if m.OrchestratorVersion != "" {
			version = m.OrchestratorVersion
			break
		}
	}
	return &Record{
		ID:                  id,
		OrgID:               orgID,
		QuoteID:             resp.QuoteID,
		LineID:              resp.LineID,
		Process:             resp.Process,
		MaterialCode:        resp.MaterialCode,
		Region:              resp.Region,
		CatalogVersion:      resp.CatalogVersion,
		OrchestratorVersion: version,
		Response:            resp,
		CreatedAt:           time.Now().UTC(),
	}
}
