package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ghanavoice/ledger/internal/errs"
)

// OperationType is the kind of sync work an OfflineOperation describes.
type OperationType string

const (
	OpTransactionSync    OperationType = "TRANSACTION_SYNC"
	OpSummarySync        OperationType = "SUMMARY_SYNC"
	OpSpeakerProfileSync OperationType = "SPEAKER_PROFILE_SYNC"
	OpBackup             OperationType = "BACKUP"
	OpDelete             OperationType = "DELETE"
)

// OperationPriority orders queued operations within the worker's selection.
type OperationPriority string

const (
	PriorityLow      OperationPriority = "LOW"
	PriorityNormal   OperationPriority = "NORMAL"
	PriorityHigh     OperationPriority = "HIGH"
	PriorityCritical OperationPriority = "CRITICAL"
)

// OperationStatus is the current lifecycle state of a queued operation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "PENDING"
	StatusProcessing OperationStatus = "PROCESSING"
	StatusCompleted  OperationStatus = "COMPLETED"
	StatusFailed     OperationStatus = "FAILED"
)

// OfflineOperation is one persisted unit of sync work.
type OfflineOperation struct {
	ID            string
	Type          OperationType
	PayloadJSON   string
	EnqueuedAt    time.Time
	Priority      OperationPriority
	Status        OperationStatus
	RetryCount    int
	LastError     string
	HasLastAttempt bool
	LastAttempt   time.Time
}

// EnqueueOperation inserts a new PENDING operation, assigning a uuid if none
// was set. Call it inside the same withTx as the write it describes when the
// two must be atomic (see Store.SaveTransactionAndEnqueue).
func (s *Store) EnqueueOperation(ctx context.Context, tx *sql.Tx, op OfflineOperation) (string, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Status == "" {
		op.Status = StatusPending
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO offline_operations (id, type, payload_json, enqueued_at_unix_ms, priority, status, retry_count, last_error, last_attempt_unix_ms)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		op.ID, string(op.Type), op.PayloadJSON, op.EnqueuedAt.UnixMilli(), string(op.Priority), string(op.Status),
		op.RetryCount, nullString(op.LastError), nullTimeMillis(op.HasLastAttempt, op.LastAttempt),
	)
	return op.ID, wrapStoreErr("enqueue offline operation", err)
}

// Enqueue is EnqueueOperation's standalone form, wrapping its own
// transaction for callers with no accompanying write to make atomic.
func (s *Store) Enqueue(ctx context.Context, op OfflineOperation) (string, error) {
	var id string
	err := s.withTx(ctx, func(sqlTx *sql.Tx) error {
		var err error
		id, err = s.EnqueueOperation(ctx, sqlTx, op)
		return err
	})
	return id, err
}

// NextOperations selects up to limit operations eligible for the worker to
// process: PENDING, or FAILED with retry_count below maxRetries, ordered by
// (priority desc, enqueued_at asc).
func (s *Store) NextOperations(ctx context.Context, maxRetries, limit int) ([]OfflineOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, payload_json, enqueued_at_unix_ms, priority, status, retry_count, last_error, last_attempt_unix_ms
		FROM offline_operations
		WHERE status = 'PENDING' OR (status = 'FAILED' AND retry_count < ?)
		ORDER BY
			CASE priority WHEN 'CRITICAL' THEN 0 WHEN 'HIGH' THEN 1 WHEN 'NORMAL' THEN 2 ELSE 3 END ASC,
			enqueued_at_unix_ms ASC
		LIMIT ?`, maxRetries, limit)
	if err != nil {
		return nil, wrapStoreErr("select next offline operations", err)
	}
	defer rows.Close()

	var out []OfflineOperation
	for rows.Next() {
		op, err := scanOfflineOperation(rows)
		if err != nil {
			return nil, wrapStoreErr("scan offline operation", err)
		}
		out = append(out, op)
	}
	return out, wrapStoreErr("select next offline operations", rows.Err())
}

// MarkProcessing transitions op to PROCESSING.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE offline_operations SET status = 'PROCESSING' WHERE id = ?`, id)
		return wrapStoreErr("mark operation processing", err)
	})
}

// MarkCompleted transitions op to COMPLETED.
func (s *Store) MarkCompleted(ctx context.Context, id string, attemptedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE offline_operations SET status = 'COMPLETED', last_attempt_unix_ms = ? WHERE id = ?`,
			attemptedAt.UnixMilli(), id)
		return wrapStoreErr("mark operation completed", err)
	})
}

// MarkFailed transitions op to FAILED, incrementing retry_count and
// recording lastErr and the attempt time.
func (s *Store) MarkFailed(ctx context.Context, id string, lastErr string, attemptedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE offline_operations SET status = 'FAILED', retry_count = retry_count + 1, last_error = ?, last_attempt_unix_ms = ? WHERE id = ?`,
			lastErr, attemptedAt.UnixMilli(), id)
		return wrapStoreErr("mark operation failed", err)
	})
}

// DeleteOperation removes an operation by id, used for overflow eviction.
func (s *Store) DeleteOperation(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM offline_operations WHERE id = ?`, id)
		return wrapStoreErr("delete offline operation", err)
	})
}

// CountOperations reports how many operations are currently queued,
// enforced against MAX_QUEUE_SIZE by the caller.
func (s *Store) CountOperations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_operations`).Scan(&n)
	return n, wrapStoreErr("count offline operations", err)
}

// OldestCompletedOperation returns the id of the longest-queued COMPLETED
// operation, used for overflow eviction.
func (s *Store) OldestCompletedOperation(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM offline_operations WHERE status = 'COMPLETED' ORDER BY enqueued_at_unix_ms ASC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.New(errs.StoreError, "no completed operation to evict", true)
	}
	return id, wrapStoreErr("find oldest completed operation", err)
}

// OldestLowPriorityPending returns the id of the longest-queued LOW-priority
// PENDING operation, the second eviction tier on overflow.
func (s *Store) OldestLowPriorityPending(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM offline_operations WHERE status = 'PENDING' AND priority = 'LOW' ORDER BY enqueued_at_unix_ms ASC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.New(errs.StoreError, "no low-priority pending operation to evict", true)
	}
	return id, wrapStoreErr("find oldest low-priority pending operation", err)
}

// DeleteCompletedOlderThan deletes COMPLETED operations that completed
// before cutoff (the grace-window sweep), returning the count removed. The
// completion time is the last attempt time MarkCompleted records; a row
// without one falls back to its enqueue time.
func (s *Store) DeleteCompletedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM offline_operations WHERE status = 'COMPLETED' AND COALESCE(last_attempt_unix_ms, enqueued_at_unix_ms) < ?`, cutoff.UnixMilli())
		if err != nil {
			return wrapStoreErr("delete completed operations", err)
		}
		affected, err = res.RowsAffected()
		return wrapStoreErr("delete completed operations", err)
	})
	return affected, err
}

// DeleteOlderThanAbsolute deletes any operation older than cutoff regardless
// of status, the 60-day absolute ceiling.
func (s *Store) DeleteOlderThanAbsolute(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM offline_operations WHERE enqueued_at_unix_ms < ?`, cutoff.UnixMilli())
		if err != nil {
			return wrapStoreErr("delete expired operations", err)
		}
		affected, err = res.RowsAffected()
		return wrapStoreErr("delete expired operations", err)
	})
	return affected, err
}

func scanOfflineOperation(row scanner) (OfflineOperation, error) {
	var op OfflineOperation
	var typ, priority, status string
	var enqueuedAt int64
	var lastError sql.NullString
	var lastAttempt sql.NullInt64

	err := row.Scan(&op.ID, &typ, &op.PayloadJSON, &enqueuedAt, &priority, &status, &op.RetryCount, &lastError, &lastAttempt)
	if err != nil {
		return OfflineOperation{}, err
	}

	op.Type = OperationType(typ)
	op.Priority = OperationPriority(priority)
	op.Status = OperationStatus(status)
	op.EnqueuedAt = time.UnixMilli(enqueuedAt).UTC()
	op.LastError = lastError.String
	if lastAttempt.Valid {
		op.HasLastAttempt = true
		op.LastAttempt = time.UnixMilli(lastAttempt.Int64).UTC()
	}
	return op, nil
}

func nullTimeMillis(has bool, t time.Time) any {
	if !has {
		return nil
	}
	return t.UnixMilli()
}
