// Package summary computes the DailySummary aggregate from persisted
// transactions. A summary is always wholesale recomputed, never patched,
// so merge conflicts resolve by recomputing rather than reconciling field
// by field.
package summary

import (
	"sort"
	"time"

	"github.com/ghanavoice/ledger/pkg/store"
	"github.com/ghanavoice/ledger/pkg/transaction"
)

// topProductsLimit bounds how many products the summary's top_products
// list carries; the full per-product breakdown still lives in the
// transactions table.
const topProductsLimit = 10

// Compute rebuilds dateKey's DailySummary from txs, stamped with now as
// generated_at.
func Compute(dateKey string, txs []transaction.Transaction, now time.Time) store.DailySummary {
	totals := make(map[string]*store.ProductSales)
	hourly := make(map[int]float64)
	var totalSales float64

	for _, tx := range txs {
		totalSales += tx.FinalPrice
		hourly[tx.Timestamp.Local().Hour()] += tx.FinalPrice

		p, ok := totals[tx.Product]
		if !ok {
			p = &store.ProductSales{Product: tx.Product}
			totals[tx.Product] = p
		}
		p.Total += tx.FinalPrice
		p.Count++
	}

	top := make([]store.ProductSales, 0, len(totals))
	for _, p := range totals {
		top = append(top, *p)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Total != top[j].Total {
			return top[i].Total > top[j].Total
		}
		return top[i].Product < top[j].Product
	})
	if len(top) > topProductsLimit {
		top = top[:topProductsLimit]
	}

	return store.DailySummary{
		DateKey:          dateKey,
		TotalSales:       totalSales,
		TransactionCount: len(txs),
		TopProducts:      top,
		HourlyBreakdown:  hourly,
		GeneratedAt:      now,
		Synced:           false,
	}
}
