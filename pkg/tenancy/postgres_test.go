package tenancy

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/intent-engine/pkg/apperrors"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "sqlmock")), mock
}

func tenantRows(settings string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"tenant_id", "name", "api_key", "tier", "is_active", "settings", "updated_at",
	}).AddRow("t1", "Acme", "ak_live_1", "professional", true, []byte(settings), nil)
}

func TestPostgresByIDDecodesOverrides(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM tenants WHERE tenant_id").
		WithArgs("t1").
		WillReturnRows(tenantRows(`{"requests_per_minute": 500, "fast_path_enabled": false}`))

	cfg, err := store.ByID(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, TierProfessional, cfg.Tier)
	assert.Equal(t, 500, cfg.RateLimit())
	assert.False(t, cfg.FastPathEnabled())
	// Non-overridden limits fall back to the professional tier defaults.
	assert.Equal(t, 50, cfg.BurstSize())
}

func TestPostgresByIDRejectsUnknownSettingsKeys(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM tenants WHERE tenant_id").
		WithArgs("t1").
		WillReturnRows(tenantRows(`{"requests_per_minute": 500, "free_gpus": true}`))

	_, err := store.ByID(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestPostgresByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM tenants WHERE tenant_id").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.ByID(context.Background(), "ghost")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestPostgresByIDInactive(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM tenants WHERE tenant_id").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := store.ByID(context.Background(), "t1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthInactive))
}

func TestPostgresUpsert(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO tenants").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Upsert(context.Background(), Config{
		TenantID: "t1", Name: "Acme", APIKey: "ak", Tier: TierStarter, IsActive: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertRejectsUnknownTier(t *testing.T) {
	store, _ := newMockStore(t)
	err := store.Upsert(context.Background(), Config{TenantID: "t1", Tier: Tier("gold")})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestPostgresSoftDelete(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE tenants SET is_active = false").
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tenants SET is_active = false").
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := store.SoftDelete(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.SoftDelete(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, deleted)
}
