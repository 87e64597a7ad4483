// Package batch processes ordered lists of messages against the
// resolution pipeline: a persistent FIFO job queue, a worker pool with
// bounded per-job concurrency, progress tracking, cancellation, and
// webhook completion callbacks.
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/commercekit/intent-engine/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates no queued jobs are ready to claim.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrAtCapacity indicates the concurrent job limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// Status is a batch job lifecycle state.
type Status string

// Job statuses. A job is terminal in COMPLETED, FAILED, or CANCELLED.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority orders jobs in the queue. Within a priority class jobs run
// FIFO by creation time.
type Priority string

// Job priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Item is one message in a batch submission. ItemID is optional; when
// empty the engine assigns one from the submission index.
type Item struct {
	ItemID string `json:"item_id,omitempty"`
	Text   string `json:"text"`
}

// ResultItem is the outcome of one item, in submission order.
type ResultItem struct {
	ItemID      string                `json:"item_id"`
	Success     bool                  `json:"success"`
	Result      *models.ResolveOutput `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	ErrorKind   string                `json:"error_kind,omitempty"`
	ProcessedAt *time.Time            `json:"processed_at,omitempty"`
}

// WebhookDelivery records the outcome of the completion callback.
type WebhookDelivery string

// Webhook delivery outcomes.
const (
	WebhookNone      WebhookDelivery = ""
	WebhookDelivered WebhookDelivery = "delivered"
	WebhookFailed    WebhookDelivery = "failed"
)

// Job is one batch job. The engine owns it until a terminal status,
// after which it is read-only.
type Job struct {
	JobID           string          `json:"job_id" db:"job_id"`
	TenantID        string          `json:"tenant_id" db:"tenant_id"`
	Status          Status          `json:"status" db:"status"`
	Priority        Priority        `json:"priority" db:"priority"`
	TotalItems      int             `json:"total_items" db:"total_items"`
	ProcessedItems  int             `json:"processed_items" db:"processed_items"`
	FailedItems     int             `json:"failed_items" db:"failed_items"`
	WebhookURL      string          `json:"webhook_url,omitempty" db:"webhook_url"`
	WebhookSecret   string          `json:"-" db:"webhook_secret"`
	WebhookDelivery WebhookDelivery `json:"webhook_delivery,omitempty" db:"webhook_delivery"`
	CancelRequested bool            `json:"cancel_requested" db:"cancel_requested"`
	ErrorMessage    string          `json:"error,omitempty" db:"error_message"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// Progress returns the completed fraction in [0,1].
func (j Job) Progress() float64 {
	if j.TotalItems == 0 {
		return 0
	}
	return float64(j.ProcessedItems+j.FailedItems) / float64(j.TotalItems)
}

// DurationSeconds returns the wall-clock run time for terminal jobs, or
// 0 when the job has not finished.
func (j Job) DurationSeconds() float64 {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt).Seconds()
}

// ItemResolver is the pipeline capability the batch engine consumes.
type ItemResolver interface {
	Resolve(ctx context.Context, input models.ResolveInput) (models.ResolveOutput, error)
}

// PoolHealth reports worker pool state for health surfaces.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	PodID         string         `json:"pod_id"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepth    int            `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth reports one worker's state.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
