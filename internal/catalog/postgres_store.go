package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists cost-book rows in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed cost-book store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) ListRows(ctx context.Context, q RowQuery) ([]Row, error) {
	query := `
		SELECT id, process, feature_type, applies_to, unit, tol_from, tol_to,
		       multiplier, affects, notes, catalog_version, active
		FROM tolerance_cost_book
		WHERE ($1 = 0 OR catalog_version = $1)
		  AND ($2 = '' OR process = $2)
		  AND ($3 = '' OR feature_type = $3)
		  AND ($4 = '' OR applies_to = $4)
		  AND ($5 = '' OR unit = $5)
		  AND (NOT $6 OR active)
		ORDER BY tol_from ASC
	`
	rows, err := s.db.QueryContext(ctx, query,
		q.CatalogVersion,
		string(q.Process),
		string(q.FeatureType),
		string(q.AppliesTo),
		string(q.Unit),
		q.ActiveOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: list rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		var affects []string
		var notes sql.NullString
		if err := rows.Scan(&r.ID, &r.Process, &r.FeatureType, &r.AppliesTo, &r.Unit,
			&r.TolFrom, &r.TolTo, &r.Multiplier, pq.Array(&affects), &notes,
			&r.CatalogVersion, &r.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan row: %w", err)
		}
		for _, a := range affects {
			r.Affects = append(r.Affects, Dimension(a))
		}
		if notes.Valid {
			r.Notes = notes.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MaxActiveVersion(ctx context.Context) (int64, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(catalog_version) FROM tolerance_cost_book WHERE active
	`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("catalog: max active version: %w", err)
	}
	if !version.Valid {
		return 0, ErrNoRows
	}
	return version.Int64, nil
}

func (s *PostgresStore) InsertRow(ctx context.Context, row *Row) error {
	affects := make([]string, 0, len(row.Affects))
	for _, a := range row.Affects {
		affects = append(affects, string(a))
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tolerance_cost_book
			(process, feature_type, applies_to, unit, tol_from, tol_to,
			 multiplier, affects, notes, catalog_version, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`,
		string(row.Process), string(row.FeatureType), string(row.AppliesTo),
		string(row.Unit), row.TolFrom, row.TolTo, row.Multiplier,
		pq.Array(affects), row.Notes, row.CatalogVersion, row.Active,
	).Scan(&row.ID)
	if err != nil {
		return fmt.Errorf("catalog: insert row: %w", err)
	}
	return nil
}
