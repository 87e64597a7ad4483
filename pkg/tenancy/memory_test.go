package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/intent-engine/pkg/apperrors"
)

func seedTenant(id, key string, active bool) Config {
	return Config{
		TenantID: id,
		Name:     "Tenant " + id,
		APIKey:   key,
		Tier:     TierStarter,
		IsActive: active,
	}
}

func TestMemoryStoreLookups(t *testing.T) {
	store := NewMemoryStore(
		seedTenant("t1", "key-1", true),
		seedTenant("t2", "key-2", false),
	)
	ctx := context.Background()

	cfg, err := store.ByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", cfg.TenantID)

	cfg, err = store.ByAPIKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", cfg.TenantID)

	// Inactive tenants are invisible to lookups.
	_, err = store.ByID(ctx, "t2")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthInactive))
	_, err = store.ByAPIKey(ctx, "key-2")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthInactive))

	_, err = store.ByID(ctx, "missing")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	_, err = store.ByAPIKey(ctx, "missing-key")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthInvalid))
}

func TestMemoryStoreListActiveOnly(t *testing.T) {
	store := NewMemoryStore(
		seedTenant("t1", "key-1", true),
		seedTenant("t2", "key-2", false),
		seedTenant("t3", "key-3", true),
	)
	tenants, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
}

func TestMemoryStoreUpsert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, seedTenant("t1", "key-1", true)))

	// Replacing the tenant with a new api key drops the old key mapping.
	updated := seedTenant("t1", "key-1-rotated", true)
	require.NoError(t, store.Upsert(ctx, updated))

	_, err := store.ByAPIKey(ctx, "key-1")
	assert.Error(t, err)
	cfg, err := store.ByAPIKey(ctx, "key-1-rotated")
	require.NoError(t, err)
	assert.Equal(t, "t1", cfg.TenantID)
}

func TestMemoryStoreUpsertValidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Upsert(ctx, Config{TenantID: "", Tier: TierFree})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	err = store.Upsert(ctx, Config{TenantID: "t", Tier: Tier("gold")})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestMemoryStoreSoftDelete(t *testing.T) {
	store := NewMemoryStore(seedTenant("t1", "key-1", true))
	ctx := context.Background()

	deleted, err := store.SoftDelete(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.ByID(ctx, "t1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthInactive))

	// Second delete is a no-op.
	deleted, err = store.SoftDelete(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = store.SoftDelete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCachedStoreServesFromCacheAndInvalidates(t *testing.T) {
	inner := NewMemoryStore(seedTenant("t1", "key-1", true))
	cached := NewCachedStore(inner, 0)
	ctx := context.Background()

	first, err := cached.ByID(ctx, "t1")
	require.NoError(t, err)

	// Mutate the inner store directly; the cache still serves the old
	// config until invalidated.
	require.NoError(t, inner.Upsert(ctx, Config{
		TenantID: "t1", Name: "renamed", APIKey: "key-1", Tier: TierStarter, IsActive: true,
	}))
	stale, err := cached.ByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, first.Name, stale.Name)

	// Writing through the cached store invalidates.
	require.NoError(t, cached.Upsert(ctx, Config{
		TenantID: "t1", Name: "fresh", APIKey: "key-1", Tier: TierStarter, IsActive: true,
	}))
	fresh, err := cached.ByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", fresh.Name)
}

func TestCachedStoreSoftDeleteInvalidates(t *testing.T) {
	inner := NewMemoryStore(seedTenant("t1", "key-1", true))
	cached := NewCachedStore(inner, 0)
	ctx := context.Background()

	_, err := cached.ByID(ctx, "t1")
	require.NoError(t, err)

	deleted, err := cached.SoftDelete(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = cached.ByID(ctx, "t1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthInactive))
}
