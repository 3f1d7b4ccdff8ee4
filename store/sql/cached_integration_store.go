package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-integrations/core"
)

const integrationCacheKeyPrefix = "go-integrations::integration::v1"

// CachedIntegrationStore caches catalog reads. The catalog is read on every
// status call and written only on first connects and popularity bumps, so
// reads are served from cache and invalidated on write.
type CachedIntegrationStore struct {
	base  core.IntegrationStore
	cache repositorycache.CacheService
}

func NewCachedIntegrationStore(
	base core.IntegrationStore,
	cacheService repositorycache.CacheService,
) (*CachedIntegrationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base integration store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: integration cache service is required")
	}
	return &CachedIntegrationStore{base: base, cache: cacheService}, nil
}

// IntegrationCacheKey returns the deterministic cache key for one catalog
// row: go-integrations::integration::v1::<name> with the name URL-path
// escaped after normalization.
func IntegrationCacheKey(name string) (string, error) {
	normalized := strings.TrimSpace(strings.ToLower(name))
	if normalized == "" {
		return "", fmt.Errorf("sqlstore: integration name is required")
	}
	return integrationCacheKeyPrefix + "::" + url.PathEscape(normalized), nil
}

func integrationListCacheKey() string {
	return integrationCacheKeyPrefix + "::__list__"
}

type cachedIntegrationEntry struct {
	Integration core.Integration
	Found       bool
}

func (s *CachedIntegrationStore) Ensure(ctx context.Context, name string) (core.Integration, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	integration, err := s.base.Ensure(ctx, name)
	if err != nil {
		return core.Integration{}, err
	}
	if err := s.invalidate(ctx, name); err != nil {
		return core.Integration{}, err
	}
	return integration, nil
}

func (s *CachedIntegrationStore) Get(ctx context.Context, name string) (core.Integration, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Integration{}, false, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	cacheKey, err := IntegrationCacheKey(name)
	if err != nil {
		return core.Integration{}, false, err
	}

	entry, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (cachedIntegrationEntry, error) {
		integration, found, fetchErr := s.base.Get(ctx, name)
		if fetchErr != nil {
			return cachedIntegrationEntry{}, fetchErr
		}
		return cachedIntegrationEntry{Integration: integration, Found: found}, nil
	})
	if err != nil {
		return core.Integration{}, false, err
	}
	return entry.Integration, entry.Found, nil
}

func (s *CachedIntegrationStore) IncrementPopularity(ctx context.Context, name string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	if err := s.base.IncrementPopularity(ctx, name); err != nil {
		return err
	}
	return s.invalidate(ctx, name)
}

func (s *CachedIntegrationStore) List(ctx context.Context) ([]core.Integration, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, integrationListCacheKey(), func(ctx context.Context) ([]core.Integration, error) {
		return s.base.List(ctx)
	})
}

func (s *CachedIntegrationStore) invalidate(ctx context.Context, name string) error {
	cacheKey, err := IntegrationCacheKey(name)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	return s.cache.Delete(ctx, integrationListCacheKey())
}

var _ core.IntegrationStore = (*CachedIntegrationStore)(nil)
