package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ghanavoice/ledger/internal/errs"
)

// ProductSales is one entry of a DailySummary's top-products list.
type ProductSales struct {
	Product string
	Total   float64
	Count   int
}

// DailySummary is the persisted, recomputable daily aggregate over
// transactions, partitioned by date_key.
type DailySummary struct {
	DateKey          string
	TotalSales       float64
	TransactionCount int
	TopProducts      []ProductSales
	HourlyBreakdown  map[int]float64 // hour 0-23 -> sales total
	GeneratedAt      time.Time
	Synced           bool
}

// UpsertDailySummary replaces the summary row for DateKey, the only write
// path summaries take: they are always fully recomputed, never patched.
func (s *Store) UpsertDailySummary(ctx context.Context, sum DailySummary) error {
	topJSON, err := json.Marshal(sum.TopProducts)
	if err != nil {
		return wrapStoreErr("marshal top products", err)
	}
	hourlyJSON, err := json.Marshal(sum.HourlyBreakdown)
	if err != nil {
		return wrapStoreErr("marshal hourly breakdown", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO daily_summaries (date_key, total_sales, transaction_count, top_products_json, hourly_breakdown_json, generated_at_unix_ms, synced)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(date_key) DO UPDATE SET
				total_sales = excluded.total_sales,
				transaction_count = excluded.transaction_count,
				top_products_json = excluded.top_products_json,
				hourly_breakdown_json = excluded.hourly_breakdown_json,
				generated_at_unix_ms = excluded.generated_at_unix_ms,
				synced = excluded.synced`,
			sum.DateKey, sum.TotalSales, sum.TransactionCount, string(topJSON), string(hourlyJSON),
			sum.GeneratedAt.UnixMilli(), sum.Synced,
		)
		return wrapStoreErr("upsert daily summary", err)
	})
}

// GetDailySummary fetches the summary for dateKey.
func (s *Store) GetDailySummary(ctx context.Context, dateKey string) (DailySummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date_key, total_sales, transaction_count, top_products_json, hourly_breakdown_json, generated_at_unix_ms, synced
		FROM daily_summaries WHERE date_key = ?`, dateKey)

	var sum DailySummary
	var topJSON, hourlyJSON string
	var generatedAt int64

	err := row.Scan(&sum.DateKey, &sum.TotalSales, &sum.TransactionCount, &topJSON, &hourlyJSON, &generatedAt, &sum.Synced)
	if errors.Is(err, sql.ErrNoRows) {
		return DailySummary{}, errs.New(errs.StoreError, "daily summary not found: "+dateKey, true)
	}
	if err != nil {
		return DailySummary{}, wrapStoreErr("get daily summary", err)
	}

	if err := json.Unmarshal([]byte(topJSON), &sum.TopProducts); err != nil {
		return DailySummary{}, wrapStoreErr("unmarshal top products", err)
	}
	if err := json.Unmarshal([]byte(hourlyJSON), &sum.HourlyBreakdown); err != nil {
		return DailySummary{}, wrapStoreErr("unmarshal hourly breakdown", err)
	}
	sum.GeneratedAt = time.UnixMilli(generatedAt).UTC()
	return sum, nil
}

// MarkSummarySynced flips the synced flag for dateKey.
func (s *Store) MarkSummarySynced(ctx context.Context, dateKey string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE daily_summaries SET synced = 1 WHERE date_key = ?`, dateKey)
		return wrapStoreErr("mark summary synced", err)
	})
}
