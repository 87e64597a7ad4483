package batch

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/commercekit/intent-engine/pkg/apperrors"
)

type workerStatus string

const (
	workerStatusIdle    workerStatus = "idle"
	workerStatusWorking workerStatus = "working"
)

// progressFlushItems forces a progress write every N completed items;
// the time-based flusher covers the rest.
const progressFlushItems = 10

// Worker claims jobs from the queue and fans their items out against
// the resolver with bounded concurrency.
type Worker struct {
	id       string
	store    *Store
	resolver ItemResolver
	notifier *WebhookNotifier
	config   PoolConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        workerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a batch worker.
func NewWorker(id string, store *Store, resolver ItemResolver, notifier *WebhookNotifier, cfg PoolConfig) *Worker {
	return &Worker{
		id:           id,
		store:        store,
		resolver:     resolver,
		notifier:     notifier,
		config:       cfg,
		stopCh:       make(chan struct{}),
		status:       workerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. Safe to
// call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the worker's current state.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Batch worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Batch worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, batch worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing batch job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.store.ClaimNextJob(ctx)
	if err != nil {
		return err
	}

	log := slog.With("job_id", job.JobID, "worker_id", w.id)
	log.Info("Batch job claimed", "items", job.TotalItems, "priority", job.Priority)

	w.setStatus(workerStatusWorking, job.JobID)
	defer w.setStatus(workerStatusIdle, "")

	status, processed, failed, runErr := w.processJob(ctx, job)

	// Terminal updates use a background context: the worker may be
	// stopping, but the job record must still be finalized.
	finalizeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := w.store.FinalizeJob(finalizeCtx, job.JobID, status, processed, failed, errMsg); err != nil {
		log.Error("Failed to finalize batch job", "error", err)
		return err
	}
	log.Info("Batch job finished", "status", status, "processed", processed, "failed", failed)

	w.deliverWebhook(finalizeCtx, job, status, processed, failed)

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
	return nil
}

// processJob fans the job's items out with bounded concurrency. Item
// errors are captured per item and never fail the job; only store
// unreachability does. The cancel flag is polled between items: items
// already running finish, no new items start.
func (w *Worker) processJob(ctx context.Context, job Job) (Status, int, int, error) {
	items, indexes, err := w.store.PendingItems(ctx, job.JobID)
	if err != nil {
		return StatusFailed, 0, 0, err
	}

	var processed, failed atomic.Int64
	var storeErr atomic.Value
	cancelled := &atomic.Bool{}

	// Progress flusher: at least every second, plus the every-N-items
	// flush below. It also refreshes the cancel flag so the dispatch
	// loop sees cancellations without a per-item store round-trip.
	flushCtx, stopFlusher := context.WithCancel(ctx)
	var flusherDone sync.WaitGroup
	flusherDone.Add(1)
	go func() {
		defer flusherDone.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-flushCtx.Done():
				return
			case <-ticker.C:
				w.flushProgress(flushCtx, job.JobID, &processed, &failed)
				if flag, err := w.store.CancelRequested(flushCtx, job.JobID); err == nil && flag {
					cancelled.Store(true)
				}
			}
		}
	}()

	// Honor a cancel requested while the job was still queued.
	if flag, err := w.store.CancelRequested(ctx, job.JobID); err == nil && flag {
		cancelled.Store(true)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.ItemConcurrency)

	for i := range items {
		if cancelled.Load() {
			break
		}
		select {
		case <-w.stopCh:
			cancelled.Store(true)
		case <-gctx.Done():
		default:
		}
		if cancelled.Load() || gctx.Err() != nil {
			break
		}

		item := items[i]
		itemIndex := indexes[i]
		g.Go(func() error {
			result := w.resolveItem(gctx, job, item)
			if result.Success {
				processed.Add(1)
			} else {
				failed.Add(1)
			}
			if err := w.store.WriteItemResult(gctx, job.JobID, itemIndex, result); err != nil {
				storeErr.Store(err)
				return err
			}
			if n := processed.Load() + failed.Load(); n%progressFlushItems == 0 {
				w.flushProgress(gctx, job.JobID, &processed, &failed)
			}
			return nil
		})
	}

	waitErr := g.Wait()
	stopFlusher()
	flusherDone.Wait()

	p, f := int(processed.Load()), int(failed.Load())
	if err, ok := storeErr.Load().(error); ok {
		return StatusFailed, p, f, err
	}
	if waitErr != nil {
		return StatusFailed, p, f, waitErr
	}
	if cancelled.Load() {
		return StatusCancelled, p, f, nil
	}
	return StatusCompleted, p, f, nil
}

// resolveItem runs one item through the pipeline, capturing any error as
// a per-item failure.
func (w *Worker) resolveItem(ctx context.Context, job Job, item Item) ResultItem {
	itemCtx, cancel := context.WithTimeout(ctx, w.config.ItemTimeout)
	defer cancel()

	output, err := w.resolver.Resolve(itemCtx, resolveItemInput(job, item))
	if err != nil {
		return ResultItem{
			ItemID:    item.ItemID,
			Success:   false,
			Error:     err.Error(),
			ErrorKind: string(apperrors.KindOf(err)),
		}
	}
	return ResultItem{ItemID: item.ItemID, Success: true, Result: &output}
}

func (w *Worker) flushProgress(ctx context.Context, jobID string, processed, failed *atomic.Int64) {
	if err := w.store.UpdateProgress(ctx, jobID, int(processed.Load()), int(failed.Load())); err != nil {
		slog.Warn("Progress update failed", "job_id", jobID, "error", err)
	}
}

func (w *Worker) deliverWebhook(ctx context.Context, job Job, status Status, processed, failed int) {
	if w.notifier == nil || job.WebhookURL == "" {
		return
	}
	finished, err := w.store.GetJob(ctx, job.JobID)
	if err != nil {
		slog.Warn("Failed to reload job for webhook", "job_id", job.JobID, "error", err)
		finished = job
		finished.Status = status
		finished.ProcessedItems = processed
		finished.FailedItems = failed
	}
	delivery := w.notifier.Notify(ctx, finished)
	if err := w.store.MarkWebhookDelivery(ctx, job.JobID, delivery); err != nil {
		slog.Warn("Failed to record webhook delivery", "job_id", job.JobID, "error", err)
	}
}

func (w *Worker) setStatus(status workerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
