package quotes

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Record
	byQuote map[string][]*Record // org|quote -> records
}

// NewMemoryStore creates an empty in-memory quote store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Record),
		byQuote: make(map[string][]*Record),
	}
}

var _ Store = (*MemoryStore)(nil)

func quoteKey(orgID, quoteID string) string {
	return orgID + "|" + quoteID
}

func (s *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	s.byID[rec.OrgID+"|"+rec.ID] = &copied
	key := quoteKey(rec.OrgID, rec.QuoteID)
	s.byQuote[key] = append(s.byQuote[key], &copied)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, orgID, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[orgID+"|"+id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) ListByQuote(ctx context.Context, orgID, quoteID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byQuote[quoteKey(orgID, quoteID)]
	out := make([]*Record, 0, len(all))
	for _, rec := range all {
		copied := *rec
		out = append(out, &copied)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
