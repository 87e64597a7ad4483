// Package tenancy holds tenant configuration: subscription tiers with
// default limits, per-tenant overrides, and the store backends that
// persist them.
package tenancy

import (
	"context"
	"time"
)

// Tier is a tenant subscription level governing default limits and
// feature flags.
type Tier string

// Subscription tiers.
const (
	TierFree         Tier = "free"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// Limits are the per-tenant operational ceilings.
type Limits struct {
	RequestsPerMinute       int `json:"requests_per_minute"`
	BurstSize               int `json:"burst_size"`
	MaxBatchSize            int `json:"max_batch_size"`
	MaxWebsocketConnections int `json:"max_websocket_connections"`
}

// TierDefaults maps each tier to its default limits.
var TierDefaults = map[Tier]Limits{
	TierFree:         {RequestsPerMinute: 20, BurstSize: 5, MaxBatchSize: 10, MaxWebsocketConnections: 2},
	TierStarter:      {RequestsPerMinute: 60, BurstSize: 15, MaxBatchSize: 100, MaxWebsocketConnections: 10},
	TierProfessional: {RequestsPerMinute: 200, BurstSize: 50, MaxBatchSize: 500, MaxWebsocketConnections: 50},
	TierEnterprise:   {RequestsPerMinute: 1000, BurstSize: 200, MaxBatchSize: 2000, MaxWebsocketConnections: 500},
}

// Overrides are the optional per-tenant settings. Every field is a
// pointer: nil means "use the tier default". The set of keys is a closed
// whitelist; unknown keys are rejected at deserialization.
type Overrides struct {
	RequestsPerMinute       *int  `json:"requests_per_minute,omitempty"`
	BurstSize               *int  `json:"burst_size,omitempty"`
	MaxBatchSize            *int  `json:"max_batch_size,omitempty"`
	MaxWebsocketConnections *int  `json:"max_websocket_connections,omitempty"`
	FastPathEnabled         *bool `json:"fast_path_enabled,omitempty"`
	ReasoningPathEnabled    *bool `json:"reasoning_path_enabled,omitempty"`
	BatchProcessingEnabled  *bool `json:"batch_processing_enabled,omitempty"`
	WebsocketEnabled        *bool `json:"websocket_enabled,omitempty"`
}

// Config is one tenant's full configuration.
type Config struct {
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	APIKey    string    `json:"api_key" db:"api_key"`
	Tier      Tier      `json:"tier" db:"tier"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	Overrides Overrides `json:"settings"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RateLimit returns the effective requests-per-minute: override if set,
// else the tier default.
func (c Config) RateLimit() int {
	if c.Overrides.RequestsPerMinute != nil {
		return *c.Overrides.RequestsPerMinute
	}
	return TierDefaults[c.Tier].RequestsPerMinute
}

// BurstSize returns the effective burst size.
func (c Config) BurstSize() int {
	if c.Overrides.BurstSize != nil {
		return *c.Overrides.BurstSize
	}
	return TierDefaults[c.Tier].BurstSize
}

// MaxBatchSize returns the effective maximum batch size.
func (c Config) MaxBatchSize() int {
	if c.Overrides.MaxBatchSize != nil {
		return *c.Overrides.MaxBatchSize
	}
	return TierDefaults[c.Tier].MaxBatchSize
}

// MaxWebsocketConnections returns the effective WebSocket connection cap.
func (c Config) MaxWebsocketConnections() int {
	if c.Overrides.MaxWebsocketConnections != nil {
		return *c.Overrides.MaxWebsocketConnections
	}
	return TierDefaults[c.Tier].MaxWebsocketConnections
}

// FastPathEnabled defaults to true.
func (c Config) FastPathEnabled() bool {
	if c.Overrides.FastPathEnabled != nil {
		return *c.Overrides.FastPathEnabled
	}
	return true
}

// ReasoningPathEnabled defaults to true.
func (c Config) ReasoningPathEnabled() bool {
	if c.Overrides.ReasoningPathEnabled != nil {
		return *c.Overrides.ReasoningPathEnabled
	}
	return true
}

// BatchProcessingEnabled defaults to true.
func (c Config) BatchProcessingEnabled() bool {
	if c.Overrides.BatchProcessingEnabled != nil {
		return *c.Overrides.BatchProcessingEnabled
	}
	return true
}

// WebsocketEnabled defaults to true.
func (c Config) WebsocketEnabled() bool {
	if c.Overrides.WebsocketEnabled != nil {
		return *c.Overrides.WebsocketEnabled
	}
	return true
}

// Store is the tenant persistence capability. Lookups return only
// active tenants; SoftDelete deactivates without removing the row.
type Store interface {
	ByAPIKey(ctx context.Context, apiKey string) (Config, error)
	ByID(ctx context.Context, tenantID string) (Config, error)
	List(ctx context.Context) ([]Config, error)
	Upsert(ctx context.Context, cfg Config) error
	SoftDelete(ctx context.Context, tenantID string) (bool, error)
}
