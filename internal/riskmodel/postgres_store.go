package riskmodel

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore persists risk results and configs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed risk store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) LatestResult(ctx context.Context, orgID, quoteID, lineID string) (*Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, quote_id, line_id, vector, score, severity, config_id, created_at
		FROM risk_results
		WHERE org_id = $1 AND quote_id = $2 AND line_id = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, orgID, quoteID, lineID)

	var r Result
	var vectorJSON []byte
	var configID sql.NullString
	err := row.Scan(&r.ID, &r.OrgID, &r.QuoteID, &r.LineID, &vectorJSON,
		&r.Score, &r.Severity, &configID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("riskmodel: latest result: %w", err)
	}

	r.Vector = make(map[string]float64)
	if err := json.Unmarshal(vectorJSON, &r.Vector); err != nil {
		return nil, fmt.Errorf("riskmodel: decode vector: %w", err)
	}
	if configID.Valid {
		r.ConfigID = configID.String
	}
	return &r, nil
}

func (s *PostgresStore) GetConfig(ctx context.Context, id string) (*Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, process, weights, created_at FROM risk_configs WHERE id = $1
	`, id)
	return scanConfig(row)
}

func (s *PostgresStore) LatestConfig(ctx context.Context, process string) (*Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, process, weights, created_at
		FROM risk_configs
		WHERE process = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, process)
	return scanConfig(row)
}

func (s *PostgresStore) RecordResult(ctx context.Context, result *Result) error {
	vectorJSON, err := json.Marshal(result.Vector)
	if err != nil {
		return fmt.Errorf("riskmodel: encode vector: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_results
			(id, org_id, quote_id, line_id, vector, score, severity, config_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
	`,
		result.ID, result.OrgID, result.QuoteID, result.LineID, vectorJSON,
		result.Score, string(result.Severity), result.ConfigID, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("riskmodel: record result: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutConfig(ctx context.Context, cfg *Config) error {
	weightsJSON, err := json.Marshal(cfg.Weights)
	if err != nil {
		return fmt.Errorf("riskmodel: encode weights: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_configs (id, process, weights, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET weights = EXCLUDED.weights
	`, cfg.ID, cfg.Process, weightsJSON, cfg.CreatedAt)
	if err != nil {
		return fmt.Errorf("riskmodel: put config: %w", err)
	}
	return nil
}

func scanConfig(row *sql.Row) (*Config, error) {
	var cfg Config
	var weightsJSON []byte
	err := row.Scan(&cfg.ID, &cfg.Process, &weightsJSON, &cfg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("riskmodel: scan config: %w", err)
	}

	cfg.Weights = make(map[string]float64)
	if err := json.Unmarshal(weightsJSON, &cfg.Weights); err != nil {
		return nil, fmt.Errorf("riskmodel: decode weights: %w", err)
	}
	return &cfg, nil
}
