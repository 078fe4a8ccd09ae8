package material

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mbd888/quotecore/internal/cache"
)

const (
	resolveCacheTTL = 5 * time.Minute
	resolveCacheCap = 512
)

// Resolver resolves material identifiers to priced catalog profiles with a
// bounded per-(identifier, region) cache. Resolution never fails on a
// catalog miss: the fallback profile keeps pricing available.
type Resolver struct {
	store  Store
	cache  *cache.Memory
	logger *slog.Logger
}

// NewResolver creates a material resolver over a store.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		cache:  cache.NewMemory(resolveCacheCap),
		logger: logger,
	}
}

// Resolve maps a material id or code plus an optional region to a priced
// catalog item. Lookup order: direct id/code, then alias (case variants,
// one retry, no chaining), then the hard-coded fallback profile.
func (r *Resolver) Resolve(ctx context.Context, identifier, region string) (*CatalogItem, error) {
	key := cacheKey(identifier, region)

	if payload, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var item CatalogItem
		if err := json.Unmarshal(payload, &item); err == nil {
			return &item, nil
		}
	}

	item, err := r.resolve(ctx, identifier, region)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(item); err == nil {
		_ = r.cache.Set(ctx, key, payload, resolveCacheTTL)
	}
	return item, nil
}

func (r *Resolver) resolve(ctx context.Context, identifier, region string) (*CatalogItem, error) {
	item, err := r.store.Get(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		item, err = r.resolveViaAlias(ctx, identifier)
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAliasNotFound) {
		r.logger.Debug("material not in catalog, using fallback",
			"identifier", identifier, "region", region)
		return Fallback(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("material: resolve %q: %w", identifier, err)
	}

	mult, err := r.store.RegionMultiplier(ctx, item.ID, region)
	if err != nil {
		r.logger.Warn("region multiplier lookup failed, defaulting to 1",
			"material", item.ID, "region", region, "error", err)
		mult = 1
	}
	if mult <= 0 {
		mult = 1
	}

	item.RegionMultiplier = mult
	item.CostPerKg = item.BaseCostPerKg * mult
	return item, nil
}

// resolveViaAlias tries the alias table with case variants of the
// identifier. Exactly one retry against the canonical id; aliases do not
// chain.
func (r *Resolver) resolveViaAlias(ctx context.Context, identifier string) (*CatalogItem, error) {
	variants := []string{identifier, strings.ToLower(identifier), strings.ToUpper(identifier)}

	for _, v := range variants {
		id, err := r.store.ResolveAlias(ctx, v)
		if errors.Is(err, ErrAliasNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return r.store.Get(ctx, id)
	}
	return nil, ErrAliasNotFound
}

func cacheKey(identifier, region string) string {
	if region == "" {
		region = "default"
	}
	return strings.ToLower(identifier) + "|" + strings.ToLower(region)
}
