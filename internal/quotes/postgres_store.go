package quotes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mbd888/quotecore/internal/pricing"
)

// PostgresStore persists pricing records in PostgreSQL. The full response is
// stored as JSONB alongside the indexed columns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed quote store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec.Response)
	if err != nil {
		return fmt.Errorf("quotes: encode response: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quote_pricing
			(id, org_id, quote_id, line_id, process, material_code, region,
			 catalog_version, orchestrator_version, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
	`,
		rec.ID, rec.OrgID, rec.QuoteID, rec.LineID, rec.Process, rec.MaterialCode,
		rec.Region, rec.CatalogVersion, rec.OrchestratorVersion, payload, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("quotes: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orgID, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, quote_id, line_id, process, material_code,
		       COALESCE(region, ''), catalog_version,
		       COALESCE(orchestrator_version, ''), response, created_at
		FROM quote_pricing
		WHERE org_id = $1 AND id = $2
	`, orgID, id)
	return scanRecord(row)
}

func (s *PostgresStore) ListByQuote(ctx context.Context, orgID, quoteID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, quote_id, line_id, process, material_code,
		       COALESCE(region, ''), catalog_version,
		       COALESCE(orchestrator_version, ''), response, created_at
		FROM quote_pricing
		WHERE org_id = $1 AND quote_id = $2
		ORDER BY created_at DESC
	`, orgID, quoteID)
	if err != nil {
		return nil, fmt.Errorf("quotes: list: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var payload []byte
	err := row.Scan(&rec.ID, &rec.OrgID, &rec.QuoteID, &rec.LineID, &rec.Process,
		&rec.MaterialCode, &rec.Region, &rec.CatalogVersion,
		&rec.OrchestratorVersion, &payload, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("quotes: scan: %w", err)
	}

	rec.Response = &pricing.Response{}
	if err := json.Unmarshal(payload, rec.Response); err != nil {
		return nil, fmt.Errorf("quotes: decode response: %w", err)
	}
	return &rec, nil
}
