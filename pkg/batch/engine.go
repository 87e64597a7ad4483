package batch

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/intent-engine/pkg/apperrors"
	"github.com/commercekit/intent-engine/pkg/models"
	"github.com/commercekit/intent-engine/pkg/tenancy"
)

// Submission limits.
const (
	MinBatchItems = 1
	MaxBatchItems = 2000
)

// DefaultBackpressureDepth is the queued-job count at or above which new
// submissions are rejected with a retry hint.
const DefaultBackpressureDepth = 100

// EngineConfig tunes the submission surface.
type EngineConfig struct {
	// BackpressureDepth caps the global queued-job count
	// (DefaultBackpressureDepth if <= 0).
	BackpressureDepth int
	// BackpressureRetryAfter is the hint returned on backpressure.
	BackpressureRetryAfter time.Duration
}

// Engine is the batch submission and inspection surface. Execution is
// the worker pool's job.
type Engine struct {
	store   *Store
	tenants tenancy.Store
	cfg     EngineConfig
}

// NewEngine creates a batch engine.
func NewEngine(store *Store, tenants tenancy.Store, cfg EngineConfig) *Engine {
	if cfg.BackpressureDepth <= 0 {
		cfg.BackpressureDepth = DefaultBackpressureDepth
	}
	if cfg.BackpressureRetryAfter <= 0 {
		cfg.BackpressureRetryAfter = 30 * time.Second
	}
	return &Engine{store: store, tenants: tenants, cfg: cfg}
}

// SubmitInput is one batch submission.
type SubmitInput struct {
	TenantID      string
	Items         []Item
	Priority      Priority
	WebhookURL    string
	WebhookSecret string
}

// Submit validates the submission against the tenant's limits and
// persists a queued job. Returns the new job id.
func (e *Engine) Submit(ctx context.Context, input SubmitInput) (string, error) {
	tenant, err := e.tenants.ByID(ctx, input.TenantID)
	if err != nil {
		return "", err
	}
	if !tenant.BatchProcessingEnabled() {
		return "", apperrors.Newf(apperrors.KindValidation,
			"batch processing is disabled for tenant %s", tenant.TenantID)
	}

	if len(input.Items) < MinBatchItems {
		return "", apperrors.New(apperrors.KindValidation, "batch must contain at least one item")
	}
	if len(input.Items) > MaxBatchItems {
		return "", apperrors.Newf(apperrors.KindBatchTooLarge,
			"batch of %d exceeds the hard limit of %d", len(input.Items), MaxBatchItems)
	}
	if max := tenant.MaxBatchSize(); len(input.Items) > max {
		return "", apperrors.Newf(apperrors.KindBatchTooLarge,
			"batch of %d exceeds tenant limit of %d", len(input.Items), max)
	}
	switch input.Priority {
	case PriorityHigh, PriorityNormal, PriorityLow:
	case "":
		input.Priority = PriorityNormal
	default:
		return "", apperrors.Newf(apperrors.KindValidation, "unknown priority %q", input.Priority)
	}

	depth, err := e.store.QueueDepth(ctx)
	if err != nil {
		return "", err
	}
	if depth >= e.cfg.BackpressureDepth {
		return "", apperrors.Backpressure("batch queue is full", e.cfg.BackpressureRetryAfter)
	}

	items := make([]Item, len(input.Items))
	copy(items, input.Items)
	for i := range items {
		if items[i].ItemID == "" {
			items[i].ItemID = "item-" + strconv.Itoa(i)
		}
	}

	job := Job{
		JobID:         uuid.New().String(),
		TenantID:      tenant.TenantID,
		Status:        StatusQueued,
		Priority:      input.Priority,
		TotalItems:    len(items),
		WebhookURL:    input.WebhookURL,
		WebhookSecret: input.WebhookSecret,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.CreateJob(ctx, job, items); err != nil {
		return "", err
	}

	slog.Info("Batch job submitted",
		"job_id", job.JobID, "tenant_id", job.TenantID,
		"items", job.TotalItems, "priority", job.Priority)
	return job.JobID, nil
}

// Cancel flags a job for cancellation. In-flight items run to
// completion and no new items start. Returns false (without error) when
// the job is already terminal, making cancellation idempotent.
func (e *Engine) Cancel(ctx context.Context, jobID string) (bool, error) {
	if _, err := e.store.GetJob(ctx, jobID); err != nil {
		return false, err
	}
	flagged, err := e.store.RequestCancel(ctx, jobID)
	if err != nil {
		return false, err
	}
	if flagged {
		slog.Info("Batch job cancellation requested", "job_id", jobID)
	}
	return flagged, nil
}

// Get returns one job.
func (e *Engine) Get(ctx context.Context, jobID string) (Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// Results returns the job plus its per-item results in submission order.
func (e *Engine) Results(ctx context.Context, jobID string) (Job, []ResultItem, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, nil, err
	}
	results, err := e.store.Results(ctx, jobID)
	if err != nil {
		return Job{}, nil, err
	}
	return job, results, nil
}

// List returns a page of a tenant's jobs, newest first, plus the total
// count.
func (e *Engine) List(ctx context.Context, tenantID string, page, pageSize int) ([]Job, int, error) {
	return e.store.ListJobs(ctx, tenantID, page, pageSize)
}

// resolveItemInput adapts one batch item to a pipeline input.
func resolveItemInput(job Job, item Item) models.ResolveInput {
	return models.ResolveInput{
		RequestID: job.JobID + "/" + item.ItemID,
		TenantID:  job.TenantID,
		RawText:   item.Text,
	}
}
