package conflict

import "github.com/ghanavoice/ledger/pkg/store"

// ResolveDailySummary always merges: a summary is a cache over local
// transactions, so the remote copy contributes nothing but its existence —
// local wholesale replaces it, including local's own generated_at.
func ResolveDailySummary(local, remote store.DailySummary) (store.DailySummary, Strategy) {
	return local, Merge
}
