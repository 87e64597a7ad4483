package tenancy

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds tenant config staleness. Writes through the
// cached store invalidate the affected entries immediately.
const DefaultCacheTTL = 60 * time.Second

// CachedStore wraps a Store with a small TTL cache keyed by tenant id
// and api key. It is intended for the admission path, where every
// resolve performs a tenant lookup.
type CachedStore struct {
	inner Store
	ttl   time.Duration

	mu       sync.RWMutex
	byID     map[string]cacheEntry
	byAPIKey map[string]cacheEntry
}

type cacheEntry struct {
	cfg     Config
	expires time.Time
}

// NewCachedStore wraps inner with a TTL cache (DefaultCacheTTL if
// ttl <= 0, capped at 60 s).
func NewCachedStore(inner Store, ttl time.Duration) *CachedStore {
	if ttl <= 0 || ttl > DefaultCacheTTL {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		inner:    inner,
		ttl:      ttl,
		byID:     make(map[string]cacheEntry),
		byAPIKey: make(map[string]cacheEntry),
	}
}

// ByID returns the tenant, served from cache when fresh.
func (s *CachedStore) ByID(ctx context.Context, tenantID string) (Config, error) {
	s.mu.RLock()
	entry, ok := s.byID[tenantID]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.cfg, nil
	}

	cfg, err := s.inner.ByID(ctx, tenantID)
	if err != nil {
		return Config{}, err
	}
	s.remember(cfg)
	return cfg, nil
}

// ByAPIKey returns the tenant, served from cache when fresh.
func (s *CachedStore) ByAPIKey(ctx context.Context, apiKey string) (Config, error) {
	s.mu.RLock()
	entry, ok := s.byAPIKey[apiKey]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.cfg, nil
	}

	cfg, err := s.inner.ByAPIKey(ctx, apiKey)
	if err != nil {
		return Config{}, err
	}
	s.remember(cfg)
	return cfg, nil
}

// List always hits the underlying store.
func (s *CachedStore) List(ctx context.Context) ([]Config, error) {
	return s.inner.List(ctx)
}

// Upsert writes through and invalidates the cached entries.
func (s *CachedStore) Upsert(ctx context.Context, cfg Config) error {
	if err := s.inner.Upsert(ctx, cfg); err != nil {
		return err
	}
	s.invalidate(cfg.TenantID)
	return nil
}

// SoftDelete writes through and invalidates the cached entries.
func (s *CachedStore) SoftDelete(ctx context.Context, tenantID string) (bool, error) {
	deleted, err := s.inner.SoftDelete(ctx, tenantID)
	if err == nil {
		s.invalidate(tenantID)
	}
	return deleted, err
}

func (s *CachedStore) remember(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := cacheEntry{cfg: cfg, expires: time.Now().Add(s.ttl)}
	s.byID[cfg.TenantID] = entry
	s.byAPIKey[cfg.APIKey] = entry
}

func (s *CachedStore) invalidate(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.byID[tenantID]; ok {
		delete(s.byAPIKey, entry.cfg.APIKey)
	}
	delete(s.byID, tenantID)
}
