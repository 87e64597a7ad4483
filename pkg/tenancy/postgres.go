package tenancy

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/commercekit/intent-engine/pkg/apperrors"
)

// PostgresStore persists tenants in the tenants table. Overrides live in
// the settings jsonb column, restricted to the Overrides whitelist —
// unknown keys are rejected when a row is decoded.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a tenant store over db.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type tenantRow struct {
	TenantID  string          `db:"tenant_id"`
	Name      string          `db:"name"`
	APIKey    string          `db:"api_key"`
	Tier      string          `db:"tier"`
	IsActive  bool            `db:"is_active"`
	Settings  json.RawMessage `db:"settings"`
	UpdatedAt sql.NullTime    `db:"updated_at"`
}

func (r tenantRow) toConfig() (Config, error) {
	cfg := Config{
		TenantID: r.TenantID,
		Name:     r.Name,
		APIKey:   r.APIKey,
		Tier:     Tier(r.Tier),
		IsActive: r.IsActive,
	}
	if r.UpdatedAt.Valid {
		cfg.UpdatedAt = r.UpdatedAt.Time
	}
	if len(r.Settings) > 0 && string(r.Settings) != "null" {
		dec := json.NewDecoder(bytes.NewReader(r.Settings))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg.Overrides); err != nil {
			return Config{}, apperrors.Wrap(apperrors.KindValidation,
				"tenant settings contain unknown or malformed keys", err)
		}
	}
	return cfg, nil
}

const tenantColumns = "tenant_id, name, api_key, tier, is_active, settings, updated_at"

// ByAPIKey returns the active tenant owning apiKey.
func (s *PostgresStore) ByAPIKey(ctx context.Context, apiKey string) (Config, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+tenantColumns+" FROM tenants WHERE api_key = $1 AND is_active = true", apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return Config{}, apperrors.New(apperrors.KindAuthInvalid, "unknown api key")
	}
	if err != nil {
		return Config{}, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "tenant lookup by api key", err)
	}
	return row.toConfig()
}

// ByID returns the active tenant with the given id.
func (s *PostgresStore) ByID(ctx context.Context, tenantID string) (Config, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+tenantColumns+" FROM tenants WHERE tenant_id = $1 AND is_active = true", tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a deactivated tenant from an unknown one.
		var exists bool
		if probeErr := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM tenants WHERE tenant_id = $1)", tenantID); probeErr == nil && exists {
			return Config{}, apperrors.Newf(apperrors.KindAuthInactive, "tenant %s is inactive", tenantID)
		}
		return Config{}, apperrors.Newf(apperrors.KindNotFound, "tenant %s not found", tenantID)
	}
	if err != nil {
		return Config{}, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "tenant lookup by id", err)
	}
	return row.toConfig()
}

// List returns all active tenants ordered by id.
func (s *PostgresStore) List(ctx context.Context) ([]Config, error) {
	var rows []tenantRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+tenantColumns+" FROM tenants WHERE is_active = true ORDER BY tenant_id")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "listing tenants", err)
	}
	out := make([]Config, 0, len(rows))
	for _, row := range rows {
		cfg, err := row.toConfig()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Upsert inserts or replaces a tenant by tenant_id.
func (s *PostgresStore) Upsert(ctx context.Context, cfg Config) error {
	if cfg.TenantID == "" {
		return apperrors.New(apperrors.KindValidation, "tenant_id is required")
	}
	if !cfg.Tier.Valid() {
		return apperrors.Newf(apperrors.KindValidation, "unknown tier %q", cfg.Tier)
	}
	settings, err := json.Marshal(cfg.Overrides)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "marshalling tenant settings", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenants (tenant_id, name, api_key, tier, is_active, settings, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			name = EXCLUDED.name,
			api_key = EXCLUDED.api_key,
			tier = EXCLUDED.tier,
			is_active = EXCLUDED.is_active,
			settings = EXCLUDED.settings,
			updated_at = NOW()`,
		cfg.TenantID, cfg.Name, cfg.APIKey, string(cfg.Tier), cfg.IsActive, settings)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "upserting tenant", err)
	}
	slog.Info("Tenant upserted", "tenant_id", cfg.TenantID, "tier", cfg.Tier)
	return nil
}

// SoftDelete sets is_active=false. Returns true if a row was updated.
func (s *PostgresStore) SoftDelete(ctx context.Context, tenantID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tenants SET is_active = false, updated_at = NOW() WHERE tenant_id = $1 AND is_active = true",
		tenantID)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "deactivating tenant", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
