package offlinequeue

import (
	"context"
	"time"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/internal/config"
	"github.com/ghanavoice/ledger/internal/errs"
	"github.com/ghanavoice/ledger/internal/logging"
	"github.com/ghanavoice/ledger/pkg/store"
)

// Queue wraps the persisted offline_operations table with the bounded-size
// and retention policy: enqueue-time eviction on overflow, grace-window
// reaping of completed work, and the longer-horizon GC sweep.
type Queue struct {
	store *store.Store
	cfg   config.QueueConfig
	clock clock.Clock
	log   logging.Logger
}

// New builds a Queue over st, governed by cfg.
func New(st *store.Store, cfg config.QueueConfig, c clock.Clock, log logging.Logger) *Queue {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Queue{store: st, cfg: cfg, clock: c, log: log}
}

// Enqueue persists op, evicting the oldest COMPLETED operation (or, failing
// that, the oldest LOW-priority PENDING one) first if the queue is already
// at MaxQueueSize. Returns errs.ErrQueueFull if neither eviction candidate
// exists and the queue is still full.
func (q *Queue) Enqueue(ctx context.Context, op store.OfflineOperation) (string, error) {
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = q.clock.Now()
	}

	n, err := q.store.CountOperations(ctx)
	if err != nil {
		return "", err
	}
	if n >= q.cfg.MaxQueueSize {
		if err := q.evictOne(ctx); err != nil {
			return "", err
		}
	}
	return q.store.Enqueue(ctx, op)
}

func (q *Queue) evictOne(ctx context.Context) error {
	if id, err := q.store.OldestCompletedOperation(ctx); err == nil {
		q.log.Debug("offlinequeue: evicting oldest completed operation", "id", id)
		return q.store.DeleteOperation(ctx, id)
	}

	id, err := q.store.OldestLowPriorityPending(ctx)
	if err != nil {
		return errs.ErrQueueFull
	}
	q.log.Warn("offlinequeue: evicting oldest low-priority pending operation", "id", id)
	return q.store.DeleteOperation(ctx, id)
}

// ReapCompleted deletes COMPLETED operations older than the configured
// grace window, keeping the table small between GC sweeps.
func (q *Queue) ReapCompleted(ctx context.Context) (int64, error) {
	cutoff := q.clock.Now().Add(-q.cfg.CompletedGrace)
	return q.store.DeleteCompletedOlderThan(ctx, cutoff)
}

// GarbageCollect deletes COMPLETED operations older than CompletedMaxAge and
// any operation at all, regardless of status, older than AbsoluteMaxAge.
func (q *Queue) GarbageCollect(ctx context.Context) (int64, error) {
	now := q.clock.Now()

	completed, err := q.store.DeleteCompletedOlderThan(ctx, now.Add(-q.cfg.CompletedMaxAge))
	if err != nil {
		return 0, err
	}
	expired, err := q.store.DeleteOlderThanAbsolute(ctx, now.Add(-q.cfg.AbsoluteMaxAge))
	if err != nil {
		return completed, err
	}

	total := completed + expired
	if total > 0 {
		q.log.Info("offlinequeue: garbage collection swept operations", "completed", completed, "expired", expired)
	}
	return total, nil
}

// RunReaper calls ReapCompleted every interval until ctx is cancelled. It is
// meant to run alongside the Worker's drain loop, clearing COMPLETED rows
// well before they reach the GC sweep's much longer horizon.
func (q *Queue) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.ReapCompleted(ctx); err != nil {
				q.log.Error("offlinequeue: reap failed", "err", err)
			}
		}
	}
}

// RunGC calls GarbageCollect every interval until ctx is cancelled.
func (q *Queue) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.GarbageCollect(ctx); err != nil {
				q.log.Error("offlinequeue: garbage collection failed", "err", err)
			}
		}
	}
}
