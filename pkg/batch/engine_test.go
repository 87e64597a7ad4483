package batch

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/intent-engine/pkg/apperrors"
	"github.com/commercekit/intent-engine/pkg/tenancy"
)

func newMockEngine(t *testing.T, tenants ...tenancy.Config) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := NewStore(sqlx.NewDb(db, "sqlmock"))
	return NewEngine(store, tenancy.NewMemoryStore(tenants...), EngineConfig{}), mock
}

func freeTenant() tenancy.Config {
	return tenancy.Config{
		TenantID: "t-free", Name: "Free", APIKey: "k", Tier: tenancy.TierFree, IsActive: true,
	}
}

func items(n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{Text: "where is my order?"}
	}
	return out
}

func expectSubmitWrites(mock sqlmock.Sqlmock, itemCount int) {
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM batch_jobs WHERE status").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO batch_jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	for i := 0; i < itemCount; i++ {
		mock.ExpectExec("INSERT INTO batch_job_items").WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
}

func TestSubmitSingleItem(t *testing.T) {
	engine, mock := newMockEngine(t, freeTenant())
	expectSubmitWrites(mock, 1)

	jobID, err := engine.Submit(context.Background(), SubmitInput{
		TenantID: "t-free",
		Items:    items(1),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitAtTenantLimit(t *testing.T) {
	engine, mock := newMockEngine(t, freeTenant())
	// FREE tier allows exactly 10 items.
	expectSubmitWrites(mock, 10)

	_, err := engine.Submit(context.Background(), SubmitInput{
		TenantID: "t-free",
		Items:    items(10),
	})
	require.NoError(t, err)
}

func TestSubmitOverTenantLimit(t *testing.T) {
	engine, _ := newMockEngine(t, freeTenant())

	_, err := engine.Submit(context.Background(), SubmitInput{
		TenantID: "t-free",
		Items:    items(11),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBatchTooLarge))
}

func TestSubmitEmptyBatch(t *testing.T) {
	engine, _ := newMockEngine(t, freeTenant())
	_, err := engine.Submit(context.Background(), SubmitInput{TenantID: "t-free"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestSubmitOverHardLimit(t *testing.T) {
	enterprise := tenancy.Config{
		TenantID: "t-ent", Name: "Ent", APIKey: "k2", Tier: tenancy.TierEnterprise, IsActive: true,
	}
	engine, _ := newMockEngine(t, enterprise)

	_, err := engine.Submit(context.Background(), SubmitInput{
		TenantID: "t-ent",
		Items:    items(MaxBatchItems + 1),
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBatchTooLarge))
}

func TestSubmitUnknownPriority(t *testing.T) {
	engine, _ := newMockEngine(t, freeTenant())
	_, err := engine.Submit(context.Background(), SubmitInput{
		TenantID: "t-free",
		Items:    items(1),
		Priority: Priority("urgent"),
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestSubmitUnknownTenant(t *testing.T) {
	engine, _ := newMockEngine(t)
	_, err := engine.Submit(context.Background(), SubmitInput{
		TenantID: "ghost",
		Items:    items(1),
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestSubmitBackpressure(t *testing.T) {
	engine, mock := newMockEngine(t, freeTenant())
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM batch_jobs WHERE status").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(DefaultBackpressureDepth))

	_, err := engine.Submit(context.Background(), SubmitInput{
		TenantID: "t-free",
		Items:    items(1),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBatchBackpressure))
	assert.Greater(t, apperrors.RetryAfterOf(err), time.Duration(0))
}

func TestSubmitBatchDisabledForTenant(t *testing.T) {
	off := false
	tenant := freeTenant()
	tenant.Overrides.BatchProcessingEnabled = &off
	engine, _ := newMockEngine(t, tenant)

	_, err := engine.Submit(context.Background(), SubmitInput{
		TenantID: "t-free",
		Items:    items(1),
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestCancelIdempotentOnTerminalJob(t *testing.T) {
	engine, mock := newMockEngine(t, freeTenant())
	jobRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"job_id", "tenant_id", "status", "priority", "total_items", "processed_items",
			"failed_items", "webhook_url", "webhook_secret", "webhook_delivery",
			"cancel_requested", "error_message", "created_at", "started_at", "completed_at",
		}).AddRow("j1", "t-free", "completed", "normal", 3, 3, 0, "", "", "", false, "", time.Now(), nil, nil)
	}
	mock.ExpectQuery("SELECT .+ FROM batch_jobs WHERE job_id").WillReturnRows(jobRows())
	mock.ExpectExec("UPDATE batch_jobs SET cancel_requested").
		WillReturnResult(sqlmock.NewResult(0, 0))

	flagged, err := engine.Cancel(context.Background(), "j1")
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestCancelUnknownJob(t *testing.T) {
	engine, mock := newMockEngine(t, freeTenant())
	mock.ExpectQuery("SELECT .+ FROM batch_jobs WHERE job_id").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}))

	_, err := engine.Cancel(context.Background(), "ghost")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestJobProgressFraction(t *testing.T) {
	job := Job{TotalItems: 4, ProcessedItems: 1, FailedItems: 1}
	assert.InDelta(t, 0.5, job.Progress(), 1e-9)
	assert.Zero(t, Job{}.Progress())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusRunning.Terminal())
}
