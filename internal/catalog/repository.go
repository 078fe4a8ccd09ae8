package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/quotecore/internal/cache"
	"github.com/mbd888/quotecore/internal/tolerance"
)

// Cache TTLs. The local tier is longer-lived than the version probe so a
// version bump rolls the cache key rather than waiting out the row TTL.
const (
	rowCacheTTL     = 900 * time.Second
	versionCacheTTL = 5 * time.Minute
)

var cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quotecore",
	Subsystem: "catalog",
	Name:      "cache_lookups_total",
	Help:      "Cost-book cache lookups by tier and result.",
}, []string{"tier", "result"})

func init() {
	prometheus.MustRegister(cacheLookups)
}

// Repository resolves cost-book matches through a local cache, then a
// distributed cache, then the backing store. Both caches hold the full row
// set per (version, process, featureType, appliesTo, unit) tuple, including
// empty sets so repeated misses stay cheap.
type Repository struct {
	store  Store
	local  cache.Cache
	dist   cache.Cache // nil when no distributed tier is configured
	logger *slog.Logger

	// versionOverride pins the active catalog version; 0 derives it from
	// the store.
	versionOverride int64

	versionMu  sync.Mutex
	version    int64
	versionExp time.Time
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithDistributedCache adds a distributed cache tier.
func WithDistributedCache(c cache.Cache) RepositoryOption {
	return func(r *Repository) { r.dist = c }
}

// WithVersionOverride pins the catalog version (config override).
func WithVersionOverride(v int64) RepositoryOption {
	return func(r *Repository) { r.versionOverride = v }
}

// NewRepository creates a cost-book repository over a store.
func NewRepository(store Store, logger *slog.Logger, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store:  store,
		local:  cache.NewMemory(1024),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CatalogVersion resolves the active catalog version: the config override
// when set, else the highest active version in the store, cached for five
// minutes. An empty catalog resolves to version 0.
func (r *Repository) CatalogVersion(ctx context.Context) (int64, error) {
	if r.versionOverride > 0 {
		return r.versionOverride, nil
	}

	r.versionMu.Lock()
	defer r.versionMu.Unlock()

	if time.Now().Before(r.versionExp) {
		return r.version, nil
	}

	v, err := r.store.MaxActiveVersion(ctx)
	if err == ErrNoRows {
		v = 0
	} else if err != nil {
		return 0, err
	}

	r.version = v
	r.versionExp = time.Now().Add(versionCacheTTL)
	return v, nil
}

// FindMatches returns the active rows whose half-open range contains value
// for the given tuple. An empty result is not an error: it means no
// multiplier override applies.
func (r *Repository) FindMatches(ctx context.Context, process Process, ft tolerance.FeatureType, at tolerance.AppliesTo, unit tolerance.Unit, value float64) ([]Row, error) {
	version, err := r.CatalogVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve version: %w", err)
	}
	return r.FindMatchesAt(ctx, version, process, ft, at, unit, value)
}

// FindMatchesAt is FindMatches pinned to an explicit catalog version, for
// requests that must reprice against the version they were quoted under.
func (r *Repository) FindMatchesAt(ctx context.Context, version int64, process Process, ft tolerance.FeatureType, at tolerance.AppliesTo, unit tolerance.Unit, value float64) ([]Row, error) {
	rows, err := r.loadRows(ctx, version, process, ft, at, unit)
	if err != nil {
		return nil, err
	}

	var matches []Row
	for _, row := range rows {
		if row.Contains(value) {
			matches = append(matches, row)
		}
	}
	return matches, nil
}

// loadRows fetches the full tuple row set through the cache tiers.
func (r *Repository) loadRows(ctx context.Context, version int64, process Process, ft tolerance.FeatureType, at tolerance.AppliesTo, unit tolerance.Unit) ([]Row, error) {
	key := fmt.Sprintf("tolrows:v%d:%s:%s:%s:%s", version, process, ft, at, unit)

	if payload, ok, err := r.local.Get(ctx, key); err == nil && ok {
		cacheLookups.WithLabelValues("local", "hit").Inc()
		return decodeRows(payload)
	}
	cacheLookups.WithLabelValues("local", "miss").Inc()

	if r.dist != nil {
		payload, ok, err := r.dist.Get(ctx, key)
		if err != nil {
			r.logger.Warn("distributed cache read failed", "key", key, "error", err)
		} else if ok {
			cacheLookups.WithLabelValues("distributed", "hit").Inc()
			_ = r.local.Set(ctx, key, payload, rowCacheTTL)
			return decodeRows(payload)
		}
		cacheLookups.WithLabelValues("distributed", "miss").Inc()
	}

	rows, err := r.store.ListRows(ctx, RowQuery{
		CatalogVersion: version,
		Process:        process,
		FeatureType:    ft,
		AppliesTo:      at,
		Unit:           unit,
		ActiveOnly:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: load rows: %w", err)
	}
	if rows == nil {
		rows = []Row{} // cache negative results too
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode rows: %w", err)
	}
	_ = r.local.Set(ctx, key, payload, rowCacheTTL)
	if r.dist != nil {
		if err := r.dist.Set(ctx, key, payload, rowCacheTTL); err != nil {
			r.logger.Warn("distributed cache write failed", "key", key, "error", err)
		}
	}

	return rows, nil
}

func decodeRows(payload []byte) ([]Row, error) {
	var rows []Row
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("catalog: decode cached rows: %w", err)
	}
	return rows, nil
}
