package riskmodel

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string][]*Result // org|quote|line -> results in insert order
	configs map[string]*Config
	byProc  map[string][]*Config
}

// NewMemoryStore creates an empty in-memory risk store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string][]*Result),
		configs: make(map[string]*Config),
		byProc:  make(map[string][]*Config),
	}
}

var _ Store = (*MemoryStore)(nil)

func resultKey(orgID, quoteID, lineID string) string {
	return orgID + "|" + quoteID + "|" + lineID
}

func (s *MemoryStore) LatestResult(ctx context.Context, orgID, quoteID, lineID string) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.results[resultKey(orgID, quoteID, lineID)]
	if len(all) == 0 {
		return nil, ErrResultNotFound
	}
	copied := *all[len(all)-1]
	copied.Vector = copyVector(copied.Vector)
	return &copied, nil
}

func (s *MemoryStore) GetConfig(ctx context.Context, id string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, ErrConfigNotFound
	}
	copied := *cfg
	copied.Weights = copyVector(copied.Weights)
	return &copied, nil
}

func (s *MemoryStore) LatestConfig(ctx context.Context, process string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byProc[process]
	if len(all) == 0 {
		return nil, ErrConfigNotFound
	}
	copied := *all[len(all)-1]
	copied.Weights = copyVector(copied.Weights)
	return &copied, nil
}

func (s *MemoryStore) RecordResult(ctx context.Context, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *result
	copied.Vector = copyVector(result.Vector)
	key := resultKey(result.OrgID, result.QuoteID, result.LineID)
	s.results[key] = append(s.results[key], &copied)
	return nil
}

func (s *MemoryStore) PutConfig(ctx context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cfg
	copied.Weights = copyVector(cfg.Weights)
	s.configs[cfg.ID] = &copied
	s.byProc[cfg.Process] = append(s.byProc[cfg.Process], &copied)
	return nil
}

func copyVector(v map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
