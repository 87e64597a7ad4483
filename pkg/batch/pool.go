package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	// WorkerCount is the number of concurrent jobs this pod processes.
	WorkerCount int
	// ItemConcurrency bounds concurrent items within one job (default 8).
	ItemConcurrency int
	// PollInterval is the idle poll cadence; a jitter of up to
	// PollIntervalJitter is applied per poll.
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	// ItemTimeout bounds one item's resolve call.
	ItemTimeout time.Duration
}

// DefaultPoolConfig returns production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		WorkerCount:        2,
		ItemConcurrency:    8,
		PollInterval:       time.Second,
		PollIntervalJitter: 250 * time.Millisecond,
		ItemTimeout:        30 * time.Second,
	}
}

func (c *PoolConfig) applyDefaults() {
	d := DefaultPoolConfig()
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.ItemConcurrency <= 0 {
		c.ItemConcurrency = d.ItemConcurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = d.ItemTimeout
	}
}

// WorkerPool manages the batch workers on one pod.
type WorkerPool struct {
	podID    string
	store    *Store
	resolver ItemResolver
	notifier *WebhookNotifier
	config   PoolConfig

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewWorkerPool creates a worker pool. notifier may be nil (webhook
// callbacks disabled).
func NewWorkerPool(podID string, store *Store, resolver ItemResolver, notifier *WebhookNotifier, cfg PoolConfig) *WorkerPool {
	cfg.applyDefaults()
	return &WorkerPool{
		podID:    podID,
		store:    store,
		resolver: resolver,
		notifier: notifier,
		config:   cfg,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("Starting batch worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		worker := NewWorker(workerID(p.podID, i), p.store, p.resolver, p.notifier, p.config)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
}

// Stop signals all workers to stop and waits for them to exit. A job in
// progress dispatches no further items, lets its in-flight items finish,
// and is finalized as cancelled.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping batch worker pool", "pod_id", p.podID)
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	slog.Info("Batch worker pool stopped")
}

// Health returns current pool state.
func (p *WorkerPool) Health(ctx context.Context) PoolHealth {
	depth, err := p.store.QueueDepth(ctx)
	if err != nil {
		slog.Error("Failed to query queue depth for health check", "pod_id", p.podID, "error", err)
	}

	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, worker := range p.workers {
		stats[i] = worker.Health()
		if stats[i].Status == string(workerStatusWorking) {
			active++
		}
	}
	return PoolHealth{
		IsHealthy:     len(p.workers) > 0 && err == nil,
		PodID:         p.podID,
		ActiveWorkers: active,
		TotalWorkers:  len(p.workers),
		QueueDepth:    depth,
		WorkerStats:   stats,
	}
}

func workerID(podID string, n int) string {
	return fmt.Sprintf("%s-worker-%d", podID, n)
}
