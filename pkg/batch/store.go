package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/commercekit/intent-engine/pkg/apperrors"
	"github.com/commercekit/intent-engine/pkg/models"
)

// Store persists batch jobs and their per-item results in PostgreSQL.
// Job claiming uses FOR UPDATE SKIP LOCKED so multiple pods can share
// one queue without double-claiming.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a job store over db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `job_id, tenant_id, status, priority, total_items, processed_items,
	failed_items, webhook_url, webhook_secret, webhook_delivery, cancel_requested,
	error_message, created_at, started_at, completed_at`

// CreateJob persists a queued job and its items in one transaction.
func (s *Store) CreateJob(ctx context.Context, job Job, items []Item) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "beginning job transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batch_jobs (job_id, tenant_id, status, priority, total_items,
			webhook_url, webhook_secret, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.JobID, job.TenantID, job.Status, job.Priority, job.TotalItems,
		job.WebhookURL, job.WebhookSecret, job.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "inserting job", err)
	}

	for i, item := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batch_job_items (job_id, item_index, item_id, input_text)
			VALUES ($1, $2, $3, $4)`,
			job.JobID, i, item.ItemID, item.Text)
		if err != nil {
			return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "inserting job item", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "committing job", err)
	}
	return nil
}

// ClaimNextJob atomically claims the oldest queued job in the highest
// priority class and marks it running. Returns ErrNoJobsAvailable when
// the queue is empty.
func (s *Store) ClaimNextJob(ctx context.Context) (Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Job{}, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "beginning claim transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var job Job
	err = tx.GetContext(ctx, &job, `
		SELECT `+jobColumns+`
		FROM batch_jobs
		WHERE status = $1
		ORDER BY
			CASE priority WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0 END DESC,
			created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, StatusQueued)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNoJobsAvailable
	}
	if err != nil {
		return Job{}, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "querying queued jobs", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE batch_jobs SET status = $1, started_at = $2 WHERE job_id = $3",
		StatusRunning, now, job.JobID)
	if err != nil {
		return Job{}, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "claiming job", err)
	}
	if err := tx.Commit(); err != nil {
		return Job{}, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "committing claim", err)
	}

	job.Status = StatusRunning
	job.StartedAt = &now
	return job, nil
}

// GetJob returns one job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (Job, error) {
	var job Job
	err := s.db.GetContext(ctx, &job,
		"SELECT "+jobColumns+" FROM batch_jobs WHERE job_id = $1", jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, apperrors.Newf(apperrors.KindNotFound, "job %s not found", jobID)
	}
	if err != nil {
		return Job{}, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "loading job", err)
	}
	return job, nil
}

// ListJobs returns a page of a tenant's jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, tenantID string, page, pageSize int) ([]Job, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var total int
	if err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM batch_jobs WHERE tenant_id = $1", tenantID); err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "counting jobs", err)
	}
	var jobs []Job
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT `+jobColumns+` FROM batch_jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, tenantID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "listing jobs", err)
	}
	return jobs, total, nil
}

// UpdateProgress writes the current item counters.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, processed, failed int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE batch_jobs SET processed_items = $1, failed_items = $2 WHERE job_id = $3",
		processed, failed, jobID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "updating job progress", err)
	}
	return nil
}

// FinalizeJob writes the terminal status, counters, and completion time.
func (s *Store) FinalizeJob(ctx context.Context, jobID string, status Status, processed, failed int, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE batch_jobs
		SET status = $1, processed_items = $2, failed_items = $3,
		    error_message = $4, completed_at = $5
		WHERE job_id = $6`,
		status, processed, failed, errMsg, time.Now().UTC(), jobID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "finalizing job", err)
	}
	return nil
}

// RequestCancel sets the cancel flag on a non-terminal job. Returns
// false when the job is already terminal (or unknown), making Cancel
// idempotent.
func (s *Store) RequestCancel(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE batch_jobs SET cancel_requested = true
		WHERE job_id = $1 AND status IN ($2, $3)`,
		jobID, StatusQueued, StatusRunning)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "requesting cancel", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// CancelRequested reads the job's cancel flag.
func (s *Store) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var flag bool
	err := s.db.GetContext(ctx, &flag,
		"SELECT cancel_requested FROM batch_jobs WHERE job_id = $1", jobID)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "reading cancel flag", err)
	}
	return flag, nil
}

// MarkWebhookDelivery records the webhook callback outcome.
func (s *Store) MarkWebhookDelivery(ctx context.Context, jobID string, delivery WebhookDelivery) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE batch_jobs SET webhook_delivery = $1 WHERE job_id = $2", delivery, jobID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "recording webhook delivery", err)
	}
	return nil
}

// QueueDepth counts queued jobs across all tenants.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	err := s.db.GetContext(ctx, &depth,
		"SELECT COUNT(*) FROM batch_jobs WHERE status = $1", StatusQueued)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "counting queued jobs", err)
	}
	return depth, nil
}

// itemRow is the storage shape of one batch item.
type itemRow struct {
	ItemIndex   int             `db:"item_index"`
	ItemID      string          `db:"item_id"`
	InputText   string          `db:"input_text"`
	Success     sql.NullBool    `db:"success"`
	Result      []byte          `db:"result"`
	ErrorMsg    sql.NullString  `db:"error_message"`
	ErrorKind   sql.NullString  `db:"error_kind"`
	ProcessedAt sql.NullTime    `db:"processed_at"`
}

// PendingItems returns the job's unprocessed items in submission order.
func (s *Store) PendingItems(ctx context.Context, jobID string) ([]Item, []int, error) {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT item_index, item_id, input_text, success, result, error_message, error_kind, processed_at
		FROM batch_job_items
		WHERE job_id = $1 AND processed_at IS NULL
		ORDER BY item_index`, jobID)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "loading pending items", err)
	}
	items := make([]Item, len(rows))
	indexes := make([]int, len(rows))
	for i, row := range rows {
		items[i] = Item{ItemID: row.ItemID, Text: row.InputText}
		indexes[i] = row.ItemIndex
	}
	return items, indexes, nil
}

// WriteItemResult records one item's outcome.
func (s *Store) WriteItemResult(ctx context.Context, jobID string, itemIndex int, result ResultItem) error {
	var raw []byte
	if result.Result != nil {
		var err error
		raw, err = json.Marshal(result.Result)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, "marshalling item result", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE batch_job_items
		SET success = $1, result = $2, error_message = $3, error_kind = $4, processed_at = $5
		WHERE job_id = $6 AND item_index = $7`,
		result.Success, raw, nullString(result.Error), nullString(result.ErrorKind),
		time.Now().UTC(), jobID, itemIndex)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "writing item result", err)
	}
	return nil
}

// Results returns all item results in submission order. Unprocessed
// items (e.g. after cancellation) appear with Success=false and no
// result.
func (s *Store) Results(ctx context.Context, jobID string) ([]ResultItem, error) {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT item_index, item_id, input_text, success, result, error_message, error_kind, processed_at
		FROM batch_job_items
		WHERE job_id = $1
		ORDER BY item_index`, jobID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "loading job results", err)
	}

	out := make([]ResultItem, len(rows))
	for i, row := range rows {
		item := ResultItem{ItemID: row.ItemID}
		if row.Success.Valid {
			item.Success = row.Success.Bool
		}
		if row.ErrorMsg.Valid {
			item.Error = row.ErrorMsg.String
		}
		if row.ErrorKind.Valid {
			item.ErrorKind = row.ErrorKind.String
		}
		if row.ProcessedAt.Valid {
			t := row.ProcessedAt.Time
			item.ProcessedAt = &t
		}
		if len(row.Result) > 0 {
			var output models.ResolveOutput
			if err := json.Unmarshal(row.Result, &output); err != nil {
				return nil, apperrors.Wrap(apperrors.KindInternal, "decoding item result", err)
			}
			item.Result = &output
		}
		out[i] = item
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
