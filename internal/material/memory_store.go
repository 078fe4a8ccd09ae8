package material

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	byID        map[string]*CatalogItem
	byCode      map[string]string            // code -> id
	aliases     map[string]string            // alias -> id
	regionMults map[string]map[string]float64 // id -> region -> multiplier
}

// NewMemoryStore creates an empty in-memory material store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]*CatalogItem),
		byCode:      make(map[string]string),
		aliases:     make(map[string]string),
		regionMults: make(map[string]map[string]float64),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(ctx context.Context, identifier string) (*CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, ok := s.byID[identifier]; ok {
		copied := *item
		return &copied, nil
	}
	if id, ok := s.byCode[identifier]; ok {
		copied := *s.byID[id]
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ResolveAlias(ctx context.Context, alias string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.aliases[alias]; ok {
		return id, nil
	}
	return "", ErrAliasNotFound
}

func (s *MemoryStore) RegionMultiplier(ctx context.Context, materialID, region string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if mults, ok := s.regionMults[materialID]; ok {
		if m, ok := mults[strings.ToLower(region)]; ok {
			return m, nil
		}
	}
	return 1, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, item *CatalogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *item
	s.byID[item.ID] = &copied
	s.byCode[item.Code] = item.ID
	return nil
}

func (s *MemoryStore) AddAlias(ctx context.Context, alias, materialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[alias] = materialID
	return nil
}

func (s *MemoryStore) SetRegionMultiplier(ctx context.Context, materialID, region string, multiplier float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.regionMults[materialID] == nil {
		s.regionMults[materialID] = make(map[string]float64)
	}
	s.regionMults[materialID][strings.ToLower(region)] = multiplier
	return nil
}
