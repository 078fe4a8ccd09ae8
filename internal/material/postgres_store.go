package material

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/mbd888/quotecore/internal/catalog"
)

// PostgresStore persists the material catalog in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed material store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const materialColumns = `
	id, code, name, category, base_cost_per_kg, density,
	available, lead_time_days, processes
`

func (s *PostgresStore) Get(ctx context.Context, identifier string) (*CatalogItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+materialColumns+`
		FROM materials
		WHERE id = $1 OR code = $1
		LIMIT 1
	`, identifier)
	return scanMaterial(row)
}

func (s *PostgresStore) ResolveAlias(ctx context.Context, alias string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT material_id FROM material_aliases WHERE alias = $1
	`, alias).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrAliasNotFound
	}
	if err != nil {
		return "", fmt.Errorf("material: resolve alias: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) RegionMultiplier(ctx context.Context, materialID, region string) (float64, error) {
	var mult float64
	err := s.db.QueryRowContext(ctx, `
		SELECT multiplier FROM material_region_multipliers
		WHERE material_id = $1 AND region = $2
	`, materialID, strings.ToLower(region)).Scan(&mult)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 1, fmt.Errorf("material: region multiplier: %w", err)
	}
	return mult, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, item *CatalogItem) error {
	processes := make([]string, 0, len(item.Processes))
	for _, p := range item.Processes {
		processes = append(processes, string(p))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO materials
			(id, code, name, category, base_cost_per_kg, density,
			 available, lead_time_days, processes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			base_cost_per_kg = EXCLUDED.base_cost_per_kg,
			density = EXCLUDED.density,
			available = EXCLUDED.available,
			lead_time_days = EXCLUDED.lead_time_days,
			processes = EXCLUDED.processes
	`,
		item.ID, item.Code, item.Name, item.Category, item.BaseCostPerKg,
		item.Density, item.Available, item.LeadTimeDays, pq.Array(processes),
	)
	if err != nil {
		return fmt.Errorf("material: upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddAlias(ctx context.Context, alias, materialID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO material_aliases (alias, material_id)
		VALUES ($1, $2)
		ON CONFLICT (alias) DO UPDATE SET material_id = EXCLUDED.material_id
	`, alias, materialID)
	if err != nil {
		return fmt.Errorf("material: add alias: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetRegionMultiplier(ctx context.Context, materialID, region string, multiplier float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO material_region_multipliers (material_id, region, multiplier)
		VALUES ($1, $2, $3)
		ON CONFLICT (material_id, region) DO UPDATE SET multiplier = EXCLUDED.multiplier
	`, materialID, strings.ToLower(region), multiplier)
	if err != nil {
		return fmt.Errorf("material: set region multiplier: %w", err)
	}
	return nil
}

func scanMaterial(row *sql.Row) (*CatalogItem, error) {
	var item CatalogItem
	var processes []string
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Category,
		&item.BaseCostPerKg, &item.Density, &item.Available,
		&item.LeadTimeDays, pq.Array(&processes))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("material: scan: %w", err)
	}
	for _, p := range processes {
		item.Processes = append(item.Processes, catalog.Process(p))
	}
	return &item, nil
}
