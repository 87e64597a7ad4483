package tenancy

import (
	"context"
	"sync"
	"time"

	"github.com/commercekit/intent-engine/pkg/apperrors"
)

// MemoryStore is the in-memory tenant store, seeded at boot. It is safe
// for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]Config
	byAPIKey map[string]string // api key -> tenant id
}

// NewMemoryStore creates a store seeded with the given tenants.
func NewMemoryStore(seed ...Config) *MemoryStore {
	s := &MemoryStore{
		byID:     make(map[string]Config),
		byAPIKey: make(map[string]string),
	}
	for _, cfg := range seed {
		s.put(cfg)
	}
	return s
}

func (s *MemoryStore) put(cfg Config) {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	if old, ok := s.byID[cfg.TenantID]; ok {
		delete(s.byAPIKey, old.APIKey)
	}
	s.byID[cfg.TenantID] = cfg
	s.byAPIKey[cfg.APIKey] = cfg.TenantID
}

// ByAPIKey returns the active tenant owning apiKey.
func (s *MemoryStore) ByAPIKey(_ context.Context, apiKey string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAPIKey[apiKey]
	if !ok {
		return Config{}, apperrors.New(apperrors.KindAuthInvalid, "unknown api key")
	}
	cfg := s.byID[id]
	if !cfg.IsActive {
		return Config{}, apperrors.Newf(apperrors.KindAuthInactive, "tenant %s is inactive", id)
	}
	return cfg, nil
}

// ByID returns the active tenant with the given id.
func (s *MemoryStore) ByID(_ context.Context, tenantID string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.byID[tenantID]
	if !ok {
		return Config{}, apperrors.Newf(apperrors.KindNotFound, "tenant %s not found", tenantID)
	}
	if !cfg.IsActive {
		return Config{}, apperrors.Newf(apperrors.KindAuthInactive, "tenant %s is inactive", tenantID)
	}
	return cfg, nil
}

// List returns all active tenants.
func (s *MemoryStore) List(_ context.Context) ([]Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Config, 0, len(s.byID))
	for _, cfg := range s.byID {
		if cfg.IsActive {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// Upsert inserts or replaces a tenant by id.
func (s *MemoryStore) Upsert(_ context.Context, cfg Config) error {
	if cfg.TenantID == "" {
		return apperrors.New(apperrors.KindValidation, "tenant_id is required")
	}
	if !cfg.Tier.Valid() {
		return apperrors.Newf(apperrors.KindValidation, "unknown tier %q", cfg.Tier)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.UpdatedAt = time.Now().UTC()
	s.put(cfg)
	return nil
}

// SoftDelete marks a tenant inactive. Returns false if the tenant does
// not exist or is already inactive.
func (s *MemoryStore) SoftDelete(_ context.Context, tenantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.byID[tenantID]
	if !ok || !cfg.IsActive {
		return false, nil
	}
	cfg.IsActive = false
	cfg.UpdatedAt = time.Now().UTC()
	s.byID[tenantID] = cfg
	return true, nil
}
