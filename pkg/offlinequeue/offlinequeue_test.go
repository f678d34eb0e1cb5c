package offlinequeue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/internal/config"
	"github.com/ghanavoice/ledger/internal/errs"
	"github.com/ghanavoice/ledger/pkg/store"
)

func testQueueConfig(maxSize int) config.QueueConfig {
	return config.QueueConfig{
		MaxQueueSize:     maxSize,
		MaxRetryAttempts: 3,
		RetryDelayUnit:   30 * time.Second,
		CompletedGrace:   5 * time.Second,
		CompletedMaxAge:  30 * 24 * time.Hour,
		AbsoluteMaxAge:   60 * 24 * time.Hour,
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir()+"/ledger.db", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestQueueEnqueueEvictsOldestCompletedOnOverflow(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	q := New(st, testQueueConfig(2), c, nil)

	id1, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityNormal})
	if err != nil {
		t.Fatalf("enqueue op1: %v", err)
	}
	if _, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityNormal}); err != nil {
		t.Fatalf("enqueue op2: %v", err)
	}
	if err := st.MarkProcessing(ctx, id1); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := st.MarkCompleted(ctx, id1, c.Now()); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	if _, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityNormal}); err != nil {
		t.Fatalf("enqueue op3: %v", err)
	}

	n, err := st.CountOperations(ctx)
	if err != nil {
		t.Fatalf("count operations: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 operations after eviction, got %d", n)
	}
	if _, err := st.OldestCompletedOperation(ctx); err == nil {
		t.Fatalf("expected completed op1 to have been evicted")
	}
}

func TestQueueEnqueueEvictsLowPriorityPendingWhenNoCompleted(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	q := New(st, testQueueConfig(1), c, nil)

	if _, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpBackup, Priority: store.PriorityLow}); err != nil {
		t.Fatalf("enqueue low-priority op: %v", err)
	}
	if _, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityNormal}); err != nil {
		t.Fatalf("enqueue normal-priority op: %v", err)
	}

	n, err := st.CountOperations(ctx)
	if err != nil {
		t.Fatalf("count operations: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 operation after eviction, got %d", n)
	}
	if _, err := st.OldestLowPriorityPending(ctx); err == nil {
		t.Fatalf("expected low-priority pending op to have been evicted")
	}
}

func TestQueueEnqueueReturnsErrQueueFullWhenNothingToEvict(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	q := New(st, testQueueConfig(1), c, nil)

	if _, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityNormal}); err != nil {
		t.Fatalf("enqueue op1: %v", err)
	}

	_, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityNormal})
	if !errors.Is(err, errs.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueueReapCompletedRemovesOnlyPastGrace(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	q := New(st, testQueueConfig(100), c, nil)

	id, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityNormal})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := st.MarkProcessing(ctx, id); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := st.MarkCompleted(ctx, id, c.Now()); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	c.Advance(3 * time.Second)
	if n, err := q.ReapCompleted(ctx); err != nil || n != 0 {
		t.Fatalf("expected no reap before grace elapses, got n=%d err=%v", n, err)
	}

	c.Advance(3 * time.Second) // total 6s, past the 5s grace
	n, err := q.ReapCompleted(ctx)
	if err != nil {
		t.Fatalf("reap completed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 operation reaped, got %d", n)
	}
}

func TestQueueGarbageCollectRemovesOldCompletedAndAbsoluteExpired(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	q := New(st, testQueueConfig(100), c, nil)

	oldCompleted, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityNormal})
	if err != nil {
		t.Fatalf("enqueue old completed: %v", err)
	}
	if err := st.MarkProcessing(ctx, oldCompleted); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := st.MarkCompleted(ctx, oldCompleted, c.Now()); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	ancientPending, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpBackup, Priority: store.PriorityLow})
	if err != nil {
		t.Fatalf("enqueue ancient pending: %v", err)
	}

	c.Advance(61 * 24 * time.Hour)

	recent, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityNormal})
	if err != nil {
		t.Fatalf("enqueue recent: %v", err)
	}

	c.Advance(time.Hour)

	removed, err := q.GarbageCollect(ctx)
	if err != nil {
		t.Fatalf("garbage collect: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 operations removed, got %d", removed)
	}

	n, err := st.CountOperations(ctx)
	if err != nil {
		t.Fatalf("count operations: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 surviving operation, got %d", n)
	}

	ops, err := st.NextOperations(ctx, 10, 10)
	if err != nil {
		t.Fatalf("next operations: %v", err)
	}
	if len(ops) != 1 || ops[0].ID != recent {
		t.Fatalf("expected only %q to survive, got %+v", recent, ops)
	}
	_ = ancientPending
	_ = oldCompleted
}

func TestDetermineStrategy(t *testing.T) {
	cases := []struct {
		name   string
		status NetworkStatus
		want   SyncStrategy
	}{
		{"unavailable", NetworkStatus{Available: false}, StrategyOfflineOnly},
		{"poor quality", NetworkStatus{Available: true, Quality: QualityPoor}, StrategyCriticalOnly},
		{"metered fair", NetworkStatus{Available: true, Metered: true, Quality: QualityFair}, StrategyMinimalSync},
		{"metered excellent still minimal", NetworkStatus{Available: true, Metered: true, Quality: QualityExcellent}, StrategyMinimalSync},
		{"unmetered good", NetworkStatus{Available: true, Metered: false, Quality: QualityGood}, StrategyNormalSync},
		{"unmetered excellent", NetworkStatus{Available: true, Metered: false, Quality: QualityExcellent}, StrategyFullSync},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetermineStrategy(tc.status); got != tc.want {
				t.Fatalf("DetermineStrategy(%+v) = %v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestAllowsPriority(t *testing.T) {
	if AllowsPriority(StrategyCriticalOnly, store.PriorityHigh) {
		t.Fatalf("CRITICAL_ONLY must not allow HIGH")
	}
	if !AllowsPriority(StrategyMinimalSync, store.PriorityHigh) {
		t.Fatalf("MINIMAL_SYNC must allow HIGH")
	}
	if AllowsPriority(StrategyMinimalSync, store.PriorityNormal) {
		t.Fatalf("MINIMAL_SYNC must not allow NORMAL")
	}
	if AllowsPriority(StrategyNormalSync, store.PriorityLow) {
		t.Fatalf("NORMAL_SYNC must not allow LOW")
	}
	if !AllowsPriority(StrategyFullSync, store.PriorityLow) {
		t.Fatalf("FULL_SYNC must allow LOW")
	}
}

type fakeSender struct {
	fail  map[string]error
	calls []string
}

func (f *fakeSender) Send(ctx context.Context, op store.OfflineOperation) error {
	f.calls = append(f.calls, op.ID)
	return f.fail[op.ID]
}

func TestWorkerDrainOnceSendsEligibleOperationsAndMarksCompleted(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := testQueueConfig(100)
	q := New(st, cfg, c, nil)

	id, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityCritical})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	sender := &fakeSender{fail: map[string]error{}}
	w := NewWorker(st, sender, cfg, c, nil)

	processed, err := w.DrainOnce(ctx, StrategyCriticalOnly)
	if err != nil {
		t.Fatalf("drain once: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed, got %d", processed)
	}
	if len(sender.calls) != 1 || sender.calls[0] != id {
		t.Fatalf("expected sender called with %q, got %v", id, sender.calls)
	}

	ops, err := st.NextOperations(ctx, cfg.MaxRetryAttempts, 10)
	if err != nil {
		t.Fatalf("next operations: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected completed operation to no longer be eligible, got %+v", ops)
	}
}

func TestWorkerDrainOnceSkipsOperationsNotAllowedByStrategy(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := testQueueConfig(100)
	q := New(st, cfg, c, nil)

	if _, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpBackup, Priority: store.PriorityLow}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	sender := &fakeSender{fail: map[string]error{}}
	w := NewWorker(st, sender, cfg, c, nil)

	processed, err := w.DrainOnce(ctx, StrategyCriticalOnly)
	if err != nil {
		t.Fatalf("drain once: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected 0 processed under CRITICAL_ONLY, got %d", processed)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("expected sender not called, got %v", sender.calls)
	}
}

func TestWorkerDrainOnceNoopsForOfflineOnly(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := testQueueConfig(100)
	q := New(st, cfg, c, nil)

	if _, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityCritical}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	sender := &fakeSender{fail: map[string]error{}}
	w := NewWorker(st, sender, cfg, c, nil)

	processed, err := w.DrainOnce(ctx, StrategyOfflineOnly)
	if err != nil {
		t.Fatalf("drain once: %v", err)
	}
	if processed != 0 || len(sender.calls) != 0 {
		t.Fatalf("expected no-op under OFFLINE_ONLY, got processed=%d calls=%v", processed, sender.calls)
	}
}

func TestWorkerDrainOnceMarksFailedAndRetriesAfterBackoff(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := testQueueConfig(100)
	q := New(st, cfg, c, nil)

	id, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityCritical})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	boom := errors.New("connection reset")
	sender := &fakeSender{fail: map[string]error{id: boom}}
	w := NewWorker(st, sender, cfg, c, nil)

	processed, err := w.DrainOnce(ctx, StrategyCriticalOnly)
	if err != nil {
		t.Fatalf("drain once: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected 0 processed on failure, got %d", processed)
	}

	// Retry is not due yet: backoff is RetryDelayUnit * retry_count = 30s.
	c.Advance(10 * time.Second)
	if _, err := w.DrainOnce(ctx, StrategyCriticalOnly); err != nil {
		t.Fatalf("drain once: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("expected no retry before backoff elapses, got %d calls", len(sender.calls))
	}

	sender.fail = map[string]error{} // let the retry succeed
	c.Advance(25 * time.Second)       // total 35s since the failed attempt, past the 30s backoff
	processed, err = w.DrainOnce(ctx, StrategyCriticalOnly)
	if err != nil {
		t.Fatalf("drain once: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected retry to succeed once backoff elapses, got processed=%d", processed)
	}
}

func TestWorkerDrainOnceGivesUpAfterMaxRetryAttempts(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := testQueueConfig(100)
	cfg.MaxRetryAttempts = 2
	q := New(st, cfg, c, nil)

	id, err := q.Enqueue(ctx, store.OfflineOperation{Type: store.OpTransactionSync, Priority: store.PriorityCritical})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	boom := errors.New("always fails")
	sender := &fakeSender{fail: map[string]error{id: boom}}
	w := NewWorker(st, sender, cfg, c, nil)

	for i := 0; i < cfg.MaxRetryAttempts; i++ {
		if _, err := w.DrainOnce(ctx, StrategyCriticalOnly); err != nil {
			t.Fatalf("drain once: %v", err)
		}
		c.Advance(time.Duration(cfg.MaxRetryAttempts+1) * cfg.RetryDelayUnit)
	}

	ops, err := st.NextOperations(ctx, cfg.MaxRetryAttempts, 10)
	if err != nil {
		t.Fatalf("next operations: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected operation to fall out of eligibility after exhausting retries, got %+v", ops)
	}
}
