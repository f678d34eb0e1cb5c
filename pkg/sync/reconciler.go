package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/internal/errs"
	"github.com/ghanavoice/ledger/internal/logging"
	"github.com/ghanavoice/ledger/pkg/conflict"
	"github.com/ghanavoice/ledger/pkg/store"
	"github.com/ghanavoice/ledger/pkg/transaction"
)

// Reconciler adapts Client to offlinequeue.Sender: it decodes a queued
// operation's payload, pushes it, and resolves any 409 conflict before
// reporting success back to the queue.
type Reconciler struct {
	client *Client
	store  *store.Store
	clock  clock.Clock
	log    logging.Logger
}

// NewReconciler builds a Reconciler pushing through client and persisting
// resolved conflicts to st.
func NewReconciler(client *Client, st *store.Store, c clock.Clock, log logging.Logger) *Reconciler {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Reconciler{client: client, store: st, clock: c, log: log}
}

// Send implements offlinequeue.Sender.
func (r *Reconciler) Send(ctx context.Context, op store.OfflineOperation) error {
	switch op.Type {
	case store.OpTransactionSync:
		return r.sendTransaction(ctx, op)
	case store.OpSummarySync:
		return r.sendSummary(ctx, op)
	case store.OpSpeakerProfileSync:
		return r.sendSpeakerProfile(ctx, op)
	case store.OpDelete:
		return r.sendDelete(ctx, op)
	case store.OpBackup:
		return fmt.Errorf("sync: backup operations are not remote-syncable")
	default:
		return fmt.Errorf("sync: unknown operation type %q", op.Type)
	}
}

// localWinsTransaction reports whether the resolution strategy kept the
// local copy, meaning it still needs pushing back to converge the remote.
func localWinsTransaction(strategy conflict.Strategy, meta conflict.Metadata) bool {
	return strategy == conflict.LocalWins ||
		(strategy == conflict.TimestampWins && !meta.RemoteTS.After(meta.LocalTS))
}

func (r *Reconciler) sendTransaction(ctx context.Context, op store.OfflineOperation) error {
	var local transaction.Transaction
	if err := json.Unmarshal([]byte(op.PayloadJSON), &local); err != nil {
		return errs.Wrap(errs.Validation, "decode queued transaction payload", false, err)
	}

	result, err := r.client.PushTransaction(ctx, []byte(op.PayloadJSON))
	if err != nil {
		return err
	}
	if !result.Conflict {
		return r.store.MarkTransactionSynced(ctx, local.ID)
	}

	var remote transaction.Transaction
	if err := json.Unmarshal(result.RemoteJSON, &remote); err != nil {
		return errs.Wrap(errs.Validation, "decode remote transaction conflict body", false, err)
	}

	meta := conflict.Metadata{
		EntityType: "Transaction",
		EntityID:   local.ID,
		LocalTS:    local.Timestamp,
		RemoteTS:   remote.Timestamp,
	}
	resolved, strategy := conflict.ResolveTransaction(local, remote, meta, !local.Synced)
	r.log.Info("sync: resolved transaction conflict", "id", local.ID, "strategy", string(strategy))

	resolved.Synced = !localWinsTransaction(strategy, meta)
	if err := r.store.UpsertTransaction(ctx, resolved); err != nil {
		return err
	}
	if !resolved.Synced {
		payload, err := json.Marshal(resolved)
		if err != nil {
			return errs.Wrap(errs.Validation, "marshal resolved transaction", false, err)
		}
		if _, err := r.client.PushTransaction(ctx, payload); err != nil {
			return err
		}
		return r.store.MarkTransactionSynced(ctx, resolved.ID)
	}
	return nil
}

func (r *Reconciler) sendSummary(ctx context.Context, op store.OfflineOperation) error {
	var local store.DailySummary
	if err := json.Unmarshal([]byte(op.PayloadJSON), &local); err != nil {
		return errs.Wrap(errs.Validation, "decode queued summary payload", false, err)
	}

	result, err := r.client.PushSummary(ctx, local.DateKey, []byte(op.PayloadJSON))
	if err != nil {
		return err
	}
	if !result.Conflict {
		return r.store.MarkSummarySynced(ctx, local.DateKey)
	}

	var remote store.DailySummary
	if err := json.Unmarshal(result.RemoteJSON, &remote); err != nil {
		return errs.Wrap(errs.Validation, "decode remote summary conflict body", false, err)
	}

	resolved, strategy := conflict.ResolveDailySummary(local, remote)
	r.log.Info("sync: resolved summary conflict", "date_key", local.DateKey, "strategy", string(strategy))

	payload, err := json.Marshal(resolved)
	if err != nil {
		return errs.Wrap(errs.Validation, "marshal resolved summary", false, err)
	}
	if _, err := r.client.PushSummary(ctx, resolved.DateKey, payload); err != nil {
		return err
	}
	return r.store.MarkSummarySynced(ctx, resolved.DateKey)
}

func (r *Reconciler) sendSpeakerProfile(ctx context.Context, op store.OfflineOperation) error {
	var local store.SpeakerProfileRecord
	if err := json.Unmarshal([]byte(op.PayloadJSON), &local); err != nil {
		return errs.Wrap(errs.Validation, "decode queued speaker profile payload", false, err)
	}

	result, err := r.client.PushSpeakerProfile(ctx, local.ID, []byte(op.PayloadJSON))
	if err != nil {
		return err
	}
	if !result.Conflict {
		return nil
	}

	var remote store.SpeakerProfileRecord
	if err := json.Unmarshal(result.RemoteJSON, &remote); err != nil {
		return errs.Wrap(errs.Validation, "decode remote speaker profile conflict body", false, err)
	}

	merged, strategy, mergeErr := conflict.ResolveSpeakerProfile(local, remote)
	if mergeErr != nil {
		return r.routeToManual(ctx, "SpeakerProfile", local.ID, local.LastSeen, remote.LastSeen, local, remote, mergeErr)
	}

	r.log.Info("sync: resolved speaker profile conflict", "id", local.ID, "strategy", string(strategy))
	if err := r.store.SaveSpeakerProfile(ctx, merged); err != nil {
		return err
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return errs.Wrap(errs.Validation, "marshal merged speaker profile", false, err)
	}
	_, err = r.client.PushSpeakerProfile(ctx, merged.ID, payload)
	return err
}

func (r *Reconciler) sendDelete(ctx context.Context, op store.OfflineOperation) error {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(op.PayloadJSON), &payload); err != nil {
		return errs.Wrap(errs.Validation, "decode queued delete payload", false, err)
	}
	_, err := r.client.DeleteTransaction(ctx, payload.ID)
	return err
}

// routeToManual records a conflict that could not be auto-resolved as a
// PendingConflict: a failed MERGE falls back to MANUAL rather than blocking
// the queue.
func (r *Reconciler) routeToManual(ctx context.Context, entityType, entityID string, localTS, remoteTS time.Time, local, remote any, cause error) error {
	meta := conflict.Metadata{EntityType: entityType, EntityID: entityID, LocalTS: localTS, RemoteTS: remoteTS}
	pc, err := conflict.ToPendingConflict(meta, local, remote, r.clock.Now())
	if err != nil {
		return err
	}
	if _, err := r.store.InsertPendingConflict(ctx, pc); err != nil {
		return err
	}
	r.log.Warn("sync: conflict routed to manual review", "entity_type", entityType, "entity_id", entityID, "err", cause)
	return nil
}
