package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ghanavoice/ledger/internal/errs"
	"github.com/ghanavoice/ledger/pkg/conflict"
	"github.com/ghanavoice/ledger/pkg/transaction"
)

// PullTransactions fetches every transaction the remote has updated since
// since, writing through any that have no unsynced local counterpart and
// resolving the rest as edit conflicts (conflict.ResolveTransaction with
// isCreate false, so the later timestamp wins).
// Returns how many rows it wrote locally.
func (r *Reconciler) PullTransactions(ctx context.Context, since time.Time) (int, error) {
	body, err := r.client.PullTransactionsSince(ctx, since)
	if err != nil {
		return 0, err
	}

	var remoteTxs []transaction.Transaction
	if err := json.Unmarshal(body, &remoteTxs); err != nil {
		return 0, errs.Wrap(errs.Validation, "decode pulled transactions", false, err)
	}

	applied := 0
	for _, remote := range remoteTxs {
		wrote, err := r.applyPulledTransaction(ctx, remote)
		if err != nil {
			return applied, err
		}
		if wrote {
			applied++
		}
	}
	return applied, nil
}

func (r *Reconciler) applyPulledTransaction(ctx context.Context, remote transaction.Transaction) (bool, error) {
	local, err := r.store.GetTransaction(ctx, remote.ID)
	if err != nil {
		remote.Synced = true
		return true, r.store.UpsertTransaction(ctx, remote)
	}
	if local.Synced {
		remote.Synced = true
		return true, r.store.UpsertTransaction(ctx, remote)
	}

	meta := conflict.Metadata{
		EntityType: "Transaction",
		EntityID:   remote.ID,
		LocalTS:    local.Timestamp,
		RemoteTS:   remote.Timestamp,
	}
	resolved, strategy := conflict.ResolveTransaction(local, remote, meta, false)
	resolved.Synced = !localWinsTransaction(strategy, meta)
	r.log.Info("sync: resolved pulled transaction conflict", "id", remote.ID, "strategy", string(strategy))
	return true, r.store.UpsertTransaction(ctx, resolved)
}
