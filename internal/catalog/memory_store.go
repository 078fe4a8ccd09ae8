package catalog

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   []Row
	nextID int64

	// ListCalls counts backing-store reads, so repository cache tests can
	// assert hit/miss behavior.
	ListCalls atomic.Int64
}

// NewMemoryStore creates an empty in-memory cost-book store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) ListRows(ctx context.Context, q RowQuery) ([]Row, error) {
	s.ListCalls.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Row
	for _, r := range s.rows {
		if q.ActiveOnly && !r.Active {
			continue
		}
		if q.CatalogVersion != 0 && r.CatalogVersion != q.CatalogVersion {
			continue
		}
		if q.Process != "" && r.Process != q.Process {
			continue
		}
		if q.FeatureType != "" && r.FeatureType != q.FeatureType {
			continue
		}
		if q.AppliesTo != "" && r.AppliesTo != q.AppliesTo {
			continue
		}
		if q.Unit != "" && r.Unit != q.Unit {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TolFrom < out[j].TolFrom })
	return out, nil
}

func (s *MemoryStore) MaxActiveVersion(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max int64
	found := false
	for _, r := range s.rows {
		if r.Active && r.CatalogVersion > max {
			max = r.CatalogVersion
			found = true
		}
	}
	if !found {
		return 0, ErrNoRows
	}
	return max, nil
}

func (s *MemoryStore) InsertRow(ctx context.Context, row *Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.ID == 0 {
		row.ID = s.nextID
		s.nextID++
	}
	s.rows = append(s.rows, *row)
	return nil
}
