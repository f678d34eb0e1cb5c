package summary

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/internal/config"
	"github.com/ghanavoice/ledger/internal/errs"
	"github.com/ghanavoice/ledger/internal/logging"
	"github.com/ghanavoice/ledger/pkg/offlinequeue"
	"github.com/ghanavoice/ledger/pkg/store"
)

// Service recomputes and persists DailySummary rows and enqueues them for
// sync, gated by the enable_daily_summaries feature toggle.
type Service struct {
	store    *store.Store
	queue    *offlinequeue.Queue
	clock    clock.Clock
	log      logging.Logger
	features config.FeatureToggles
}

// NewService builds a Service over st, enqueueing sync work through q.
func NewService(st *store.Store, q *offlinequeue.Queue, c clock.Clock, log logging.Logger, features config.FeatureToggles) *Service {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Service{store: st, queue: q, clock: c, log: log, features: features}
}

// Recompute rebuilds dateKey's DailySummary from its transactions, persists
// it, and enqueues it for remote sync. It no-ops when daily summaries are
// disabled.
func (s *Service) Recompute(ctx context.Context, dateKey string) (store.DailySummary, error) {
	if !s.features.EnableDailySummaries {
		return store.DailySummary{}, nil
	}

	txs, err := s.store.ListTransactionsByDate(ctx, dateKey)
	if err != nil {
		return store.DailySummary{}, err
	}

	sum := Compute(dateKey, txs, s.clock.Now())
	if err := s.store.UpsertDailySummary(ctx, sum); err != nil {
		return store.DailySummary{}, err
	}

	payload, err := json.Marshal(sum)
	if err != nil {
		return store.DailySummary{}, errs.Wrap(errs.Validation, "marshal daily summary", false, err)
	}

	op := store.OfflineOperation{
		ID:          uuid.NewString(),
		Type:        store.OpSummarySync,
		PayloadJSON: string(payload),
		Priority:    store.PriorityNormal,
		Status:      store.StatusPending,
	}
	if _, err := s.queue.Enqueue(ctx, op); err != nil {
		return store.DailySummary{}, err
	}

	s.log.Info("summary: recomputed daily summary", "date_key", dateKey, "transaction_count", sum.TransactionCount)
	return sum, nil
}

// RecomputeToday recomputes the summary for the current local date.
func (s *Service) RecomputeToday(ctx context.Context) (store.DailySummary, error) {
	return s.Recompute(ctx, clock.DateKey(s.clock.Now()))
}
