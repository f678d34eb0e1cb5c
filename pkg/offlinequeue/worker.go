package offlinequeue

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/internal/config"
	"github.com/ghanavoice/ledger/internal/logging"
	"github.com/ghanavoice/ledger/pkg/store"
)

// Sender delivers one offline operation to its remote destination. A
// sync client implements this per operation type.
type Sender interface {
	Send(ctx context.Context, op store.OfflineOperation) error
}

// drainLimit bounds how many operations a single DrainOnce call considers,
// keeping one tick's work predictable regardless of queue depth.
const drainLimit = 50

// Worker drains the queue on demand, honoring the current SyncStrategy and
// the fixed retry_count*unit backoff between FAILED attempts.
type Worker struct {
	store  *store.Store
	sender Sender
	cfg    config.QueueConfig
	clock  clock.Clock
	log    logging.Logger
}

// NewWorker builds a Worker over st, delivering eligible operations to
// sender.
func NewWorker(st *store.Store, sender Sender, cfg config.QueueConfig, c clock.Clock, log logging.Logger) *Worker {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Worker{store: st, sender: sender, cfg: cfg, clock: c, log: log}
}

// linearBackOff implements backoff.BackOff with a fixed retry_count*unit
// delay rather than the library's default exponential curve.
type linearBackOff struct {
	unit    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.unit * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

var _ backoff.BackOff = (*linearBackOff)(nil)

// backoffDelay computes the wait before retry attempt retryCount is due.
func backoffDelay(unit time.Duration, retryCount int) time.Duration {
	b := &linearBackOff{unit: unit}
	var d time.Duration
	for i := 0; i < retryCount; i++ {
		d = b.NextBackOff()
	}
	return d
}

// DrainOnce selects the operations eligible under strategy and attempts
// each whose retry backoff has elapsed, returning how many were sent
// successfully.
func (w *Worker) DrainOnce(ctx context.Context, strategy SyncStrategy) (int, error) {
	if strategy == StrategyOfflineOnly {
		return 0, nil
	}

	ops, err := w.store.NextOperations(ctx, w.cfg.MaxRetryAttempts, drainLimit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, op := range ops {
		if !AllowsPriority(strategy, op.Priority) {
			continue
		}
		if !w.due(op) {
			continue
		}
		if err := w.attempt(ctx, op); err != nil {
			w.log.Warn("offlinequeue: operation attempt failed", "id", op.ID, "type", string(op.Type), "err", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (w *Worker) due(op store.OfflineOperation) bool {
	if op.Status != store.StatusFailed || op.RetryCount == 0 {
		return true
	}
	if !op.HasLastAttempt {
		return true
	}
	return w.clock.Since(op.LastAttempt) >= backoffDelay(w.cfg.RetryDelayUnit, op.RetryCount)
}

func (w *Worker) attempt(ctx context.Context, op store.OfflineOperation) error {
	if err := w.store.MarkProcessing(ctx, op.ID); err != nil {
		return err
	}

	now := w.clock.Now()
	if sendErr := w.sender.Send(ctx, op); sendErr != nil {
		if err := w.store.MarkFailed(ctx, op.ID, sendErr.Error(), now); err != nil {
			return err
		}
		return sendErr
	}
	return w.store.MarkCompleted(ctx, op.ID, now)
}

// Run drains the queue every interval, reassessing the sync strategy from
// networkFn on each tick, until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration, networkFn func() NetworkStatus) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			strategy := DetermineStrategy(networkFn())
			if _, err := w.DrainOnce(ctx, strategy); err != nil {
				w.log.Error("offlinequeue: drain failed", "err", err)
			}
		}
	}
}
