package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghanavoice/ledger/internal/logging"
	"github.com/ghanavoice/ledger/pkg/speaker"
	"github.com/ghanavoice/ledger/pkg/transaction"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(context.Background(), path, logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRunsMigrations(t *testing.T) {
	s := openTestStore(t)
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != len(migrations) {
		t.Fatalf("expected schema version %d, got %d", len(migrations), version)
	}
}

func TestSaveAndGetTransaction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	tx := transaction.Transaction{
		Timestamp:   ts,
		DateKey:     "2026-07-31",
		Amount:      15,
		Currency:    "GHS",
		Product:     "Tilapia",
		Confidence:  0.9,
		FinalPrice:  15,
		NeedsReview: false,
	}

	id, err := s.SaveTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("save transaction: %v", err)
	}

	got, err := s.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if got.Product != "Tilapia" || got.Amount != 15 || got.DateKey != "2026-07-31" {
		t.Fatalf("unexpected transaction: %+v", got)
	}
}

func TestListTransactionsByDateOrdersByTimestamp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	for i, product := range []string{"Cassava", "Plantain", "Tomatoes"} {
		tx := transaction.Transaction{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			DateKey:    "2026-07-31",
			Amount:     float64(10 + i),
			Currency:   "GHS",
			Product:    product,
			Confidence: 0.9,
			FinalPrice: float64(10 + i),
		}
		if _, err := s.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("save transaction %d: %v", i, err)
		}
	}

	got, err := s.ListTransactionsByDate(ctx, "2026-07-31")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(got))
	}
	if got[0].Product != "Cassava" || got[2].Product != "Tomatoes" {
		t.Fatalf("expected chronological order, got %+v", got)
	}
}

func TestMarkTransactionSyncedExcludesFromUnsyncedList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.SaveTransaction(ctx, transaction.Transaction{
		Timestamp: time.Now(), DateKey: "2026-07-31", Amount: 5, Currency: "GHS",
		Product: "Onion", Confidence: 0.9, FinalPrice: 5,
	})
	if err != nil {
		t.Fatalf("save transaction: %v", err)
	}

	unsynced, err := s.ListUnsyncedTransactions(ctx)
	if err != nil || len(unsynced) != 1 {
		t.Fatalf("expected 1 unsynced transaction, got %d (err %v)", len(unsynced), err)
	}

	if err := s.MarkTransactionSynced(ctx, id); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	unsynced, err = s.ListUnsyncedTransactions(ctx)
	if err != nil || len(unsynced) != 0 {
		t.Fatalf("expected 0 unsynced transactions after marking, got %d (err %v)", len(unsynced), err)
	}
}

func TestSpeakerProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := SpeakerProfileRecord{
		Profile: speaker.Profile{
			ID:         "seller-1",
			Role:       speaker.Seller,
			Embedding:  speaker.Embedding{0.6, 0.8},
			Samples:    3,
			VisitCount: 1,
			LastSeen:   time.Now().UTC().Truncate(time.Millisecond),
		},
		ConfidenceThreshold: 0.85,
	}

	if err := s.SaveSpeakerProfile(ctx, rec); err != nil {
		t.Fatalf("save speaker profile: %v", err)
	}

	got, err := s.GetSpeakerProfile(ctx, "seller-1")
	if err != nil {
		t.Fatalf("get speaker profile: %v", err)
	}
	if got.Role != speaker.Seller || len(got.Embedding) != 2 || got.VisitCount != 1 {
		t.Fatalf("unexpected profile: %+v", got)
	}

	all, err := s.ListSpeakerProfiles(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected 1 profile, got %d (err %v)", len(all), err)
	}
}

func TestVocabularyUpsertAndIncrementFrequency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.UpsertProduct(ctx, VocabularyEntry{
		CanonicalName: "Tomatoes",
		Variants:      []string{"tomato"},
	})
	if err != nil {
		t.Fatalf("upsert product: %v", err)
	}

	if err := s.IncrementFrequency(ctx, "Tomatoes"); err != nil {
		t.Fatalf("increment frequency: %v", err)
	}
	if err := s.IncrementFrequency(ctx, "Tomatoes"); err != nil {
		t.Fatalf("increment frequency: %v", err)
	}

	entries, err := s.ListProducts(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected 1 product, got %d (err %v)", len(entries), err)
	}
	if entries[0].Frequency != 2 {
		t.Fatalf("expected frequency 2, got %d", entries[0].Frequency)
	}
}

func TestIncrementFrequencyUnknownProductErrors(t *testing.T) {
	s := openTestStore(t)
	if err := s.IncrementFrequency(context.Background(), "Nonexistent"); err == nil {
		t.Fatalf("expected error incrementing unknown product")
	}
}

func TestOfflineOperationLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := s.Enqueue(ctx, OfflineOperation{
		Type:        OpTransactionSync,
		PayloadJSON: `{"id":"tx-1"}`,
		EnqueuedAt:  now,
		Priority:    PriorityHigh,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ops, err := s.NextOperations(ctx, 3, 10)
	if err != nil || len(ops) != 1 {
		t.Fatalf("expected 1 pending operation, got %d (err %v)", len(ops), err)
	}

	if err := s.MarkProcessing(ctx, id); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := s.MarkFailed(ctx, id, "network unreachable", now); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	ops, err = s.NextOperations(ctx, 3, 10)
	if err != nil || len(ops) != 1 || ops[0].RetryCount != 1 {
		t.Fatalf("expected 1 retryable failed operation, got %+v (err %v)", ops, err)
	}

	if err := s.MarkCompleted(ctx, id, now); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	n, err := s.CountOperations(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 queued operation, got %d (err %v)", n, err)
	}

	oldestCompleted, err := s.OldestCompletedOperation(ctx)
	if err != nil || oldestCompleted != id {
		t.Fatalf("expected oldest completed to be %s, got %s (err %v)", id, oldestCompleted, err)
	}

	if err := s.DeleteOperation(ctx, id); err != nil {
		t.Fatalf("delete operation: %v", err)
	}
	n, err = s.CountOperations(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected 0 queued operations after delete, got %d (err %v)", n, err)
	}
}

func TestSaveTransactionAndEnqueueIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	txID, opID, err := s.SaveTransactionAndEnqueue(ctx,
		transaction.Transaction{
			Timestamp: time.Now(), DateKey: "2026-07-31", Amount: 8, Currency: "GHS",
			Product: "Okra", Confidence: 0.9, FinalPrice: 8,
		},
		OfflineOperation{Type: OpTransactionSync, PayloadJSON: "{}", EnqueuedAt: time.Now(), Priority: PriorityNormal},
	)
	if err != nil {
		t.Fatalf("save transaction and enqueue: %v", err)
	}
	if txID == "" || opID == "" {
		t.Fatalf("expected non-empty ids, got tx=%q op=%q", txID, opID)
	}

	if _, err := s.GetTransaction(ctx, txID); err != nil {
		t.Fatalf("expected transaction to be persisted: %v", err)
	}
	ops, err := s.NextOperations(ctx, 3, 10)
	if err != nil || len(ops) != 1 {
		t.Fatalf("expected enqueued operation alongside transaction, got %d (err %v)", len(ops), err)
	}
}

func TestDailySummaryUpsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sum := DailySummary{
		DateKey:          "2026-07-31",
		TotalSales:       123.5,
		TransactionCount: 4,
		TopProducts:      []ProductSales{{Product: "Tilapia", Total: 60, Count: 2}},
		HourlyBreakdown:  map[int]float64{9: 40, 10: 83.5},
		GeneratedAt:      time.Now().UTC(),
	}
	if err := s.UpsertDailySummary(ctx, sum); err != nil {
		t.Fatalf("upsert daily summary: %v", err)
	}

	got, err := s.GetDailySummary(ctx, "2026-07-31")
	if err != nil {
		t.Fatalf("get daily summary: %v", err)
	}
	if got.TotalSales != 123.5 || got.TransactionCount != 4 || len(got.TopProducts) != 1 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if got.HourlyBreakdown[10] != 83.5 {
		t.Fatalf("expected hourly breakdown to round-trip, got %+v", got.HourlyBreakdown)
	}

	if err := s.MarkSummarySynced(ctx, "2026-07-31"); err != nil {
		t.Fatalf("mark summary synced: %v", err)
	}
	got, _ = s.GetDailySummary(ctx, "2026-07-31")
	if !got.Synced {
		t.Fatalf("expected summary synced flag to be set")
	}
}

func TestPendingConflictLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := s.InsertPendingConflict(ctx, PendingConflict{
		EntityType: "SpeakerProfile",
		EntityID:   "seller-1",
		LocalJSON:  "{}",
		RemoteJSON: "{}",
		LocalTS:    now,
		RemoteTS:   now,
		CreatedAt:  now,
	})
	if err != nil {
		t.Fatalf("insert pending conflict: %v", err)
	}

	conflicts, err := s.ListPendingConflicts(ctx, "SpeakerProfile")
	if err != nil || len(conflicts) != 1 {
		t.Fatalf("expected 1 pending conflict, got %d (err %v)", len(conflicts), err)
	}

	if err := s.ResolveConflict(ctx, id); err != nil {
		t.Fatalf("resolve conflict: %v", err)
	}
	conflicts, err = s.ListPendingConflicts(ctx, "")
	if err != nil || len(conflicts) != 0 {
		t.Fatalf("expected 0 conflicts after resolving, got %d (err %v)", len(conflicts), err)
	}
}

func TestAudioMetadataInsertAndPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	recent := time.Now().UTC()

	if err := s.InsertAudioMetadata(ctx, AudioMetadata{Timestamp: old, VADScore: 0.9, SpeechDetected: true, DurationMillis: 500, ProcessingTimeMillis: 50}); err != nil {
		t.Fatalf("insert old metadata: %v", err)
	}
	if err := s.InsertAudioMetadata(ctx, AudioMetadata{Timestamp: recent, VADScore: 0.9, SpeechDetected: true, DurationMillis: 500, ProcessingTimeMillis: 50}); err != nil {
		t.Fatalf("insert recent metadata: %v", err)
	}

	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	n, err := s.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row purged, got %d", n)
	}
}
