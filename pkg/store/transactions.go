package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ghanavoice/ledger/internal/errs"
	"github.com/ghanavoice/ledger/pkg/transaction"
)

// SaveTransaction inserts tx, assigning a uuid if it has no id yet. Returns
// the id actually stored.
func (s *Store) SaveTransaction(ctx context.Context, tx transaction.Transaction) (string, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	err := s.withTx(ctx, func(sqlTx *sql.Tx) error {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO transactions (
				id, timestamp_unix_ms, date_key, amount, currency, product,
				quantity, has_quantity, unit, customer_id, confidence,
				transcript_snippet, needs_review, synced,
				original_price, has_original_price, final_price
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			tx.ID, tx.Timestamp.UnixMilli(), tx.DateKey, tx.Amount, tx.Currency, tx.Product,
			nullFloat(tx.HasQuantity, tx.Quantity), tx.HasQuantity, tx.Unit, nullString(tx.CustomerID), tx.Confidence,
			nullString(tx.TranscriptSnippet), tx.NeedsReview, tx.Synced,
			nullFloat(tx.HasOriginalPrice, tx.OriginalPrice), tx.HasOriginalPrice, tx.FinalPrice,
		)
		return err
	})
	if err != nil {
		return "", wrapStoreErr("save transaction", err)
	}
	return tx.ID, nil
}

// UpsertTransaction replaces the row for tx.ID if one exists, inserting it
// otherwise. Used by the sync reconciler to write a conflict's resolved
// copy over the row that produced the conflict.
func (s *Store) UpsertTransaction(ctx context.Context, tx transaction.Transaction) error {
	return s.withTx(ctx, func(sqlTx *sql.Tx) error {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO transactions (
				id, timestamp_unix_ms, date_key, amount, currency, product,
				quantity, has_quantity, unit, customer_id, confidence,
				transcript_snippet, needs_review, synced,
				original_price, has_original_price, final_price
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				timestamp_unix_ms = excluded.timestamp_unix_ms,
				date_key = excluded.date_key,
				amount = excluded.amount,
				currency = excluded.currency,
				product = excluded.product,
				quantity = excluded.quantity,
				has_quantity = excluded.has_quantity,
				unit = excluded.unit,
				customer_id = excluded.customer_id,
				confidence = excluded.confidence,
				transcript_snippet = excluded.transcript_snippet,
				needs_review = excluded.needs_review,
				synced = excluded.synced,
				original_price = excluded.original_price,
				has_original_price = excluded.has_original_price,
				final_price = excluded.final_price`,
			tx.ID, tx.Timestamp.UnixMilli(), tx.DateKey, tx.Amount, tx.Currency, tx.Product,
			nullFloat(tx.HasQuantity, tx.Quantity), tx.HasQuantity, tx.Unit, nullString(tx.CustomerID), tx.Confidence,
			nullString(tx.TranscriptSnippet), tx.NeedsReview, tx.Synced,
			nullFloat(tx.HasOriginalPrice, tx.OriginalPrice), tx.HasOriginalPrice, tx.FinalPrice,
		)
		return wrapStoreErr("upsert transaction", err)
	})
}

// GetTransaction fetches a single transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (transaction.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp_unix_ms, date_key, amount, currency, product,
		       quantity, has_quantity, unit, customer_id, confidence,
		       transcript_snippet, needs_review, synced,
		       original_price, has_original_price, final_price
		FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return transaction.Transaction{}, errs.New(errs.StoreError, "transaction not found: "+id, false)
	}
	if err != nil {
		return transaction.Transaction{}, wrapStoreErr("get transaction", err)
	}
	return tx, nil
}

// ListTransactionsByDate returns all transactions recorded under dateKey,
// oldest first.
func (s *Store) ListTransactionsByDate(ctx context.Context, dateKey string) ([]transaction.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp_unix_ms, date_key, amount, currency, product,
		       quantity, has_quantity, unit, customer_id, confidence,
		       transcript_snippet, needs_review, synced,
		       original_price, has_original_price, final_price
		FROM transactions WHERE date_key = ? ORDER BY timestamp_unix_ms ASC`, dateKey)
	if err != nil {
		return nil, wrapStoreErr("list transactions by date", err)
	}
	defer rows.Close()

	var out []transaction.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapStoreErr("scan transaction", err)
		}
		out = append(out, tx)
	}
	return out, wrapStoreErr("list transactions by date", rows.Err())
}

// ListUnsyncedTransactions returns every transaction not yet marked synced.
func (s *Store) ListUnsyncedTransactions(ctx context.Context) ([]transaction.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp_unix_ms, date_key, amount, currency, product,
		       quantity, has_quantity, unit, customer_id, confidence,
		       transcript_snippet, needs_review, synced,
		       original_price, has_original_price, final_price
		FROM transactions WHERE synced = 0 ORDER BY timestamp_unix_ms ASC`)
	if err != nil {
		return nil, wrapStoreErr("list unsynced transactions", err)
	}
	defer rows.Close()

	var out []transaction.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapStoreErr("scan transaction", err)
		}
		out = append(out, tx)
	}
	return out, wrapStoreErr("list unsynced transactions", rows.Err())
}

// MarkTransactionSynced flips the synced flag for id.
func (s *Store) MarkTransactionSynced(ctx context.Context, id string) error {
	return s.withTx(ctx, func(sqlTx *sql.Tx) error {
		_, err := sqlTx.ExecContext(ctx, `UPDATE transactions SET synced = 1 WHERE id = ?`, id)
		return wrapStoreErr("mark transaction synced", err)
	})
}

// DeleteTransaction removes a transaction by id.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.withTx(ctx, func(sqlTx *sql.Tx) error {
		_, err := sqlTx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
		return wrapStoreErr("delete transaction", err)
	})
}

// SaveTransactionAndEnqueue persists tx and enqueues op in the same
// transaction, so a transaction write and its sync enqueue are atomic.
func (s *Store) SaveTransactionAndEnqueue(ctx context.Context, tx transaction.Transaction, op OfflineOperation) (string, string, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	var opID string
	err := s.withTx(ctx, func(sqlTx *sql.Tx) error {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO transactions (
				id, timestamp_unix_ms, date_key, amount, currency, product,
				quantity, has_quantity, unit, customer_id, confidence,
				transcript_snippet, needs_review, synced,
				original_price, has_original_price, final_price
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			tx.ID, tx.Timestamp.UnixMilli(), tx.DateKey, tx.Amount, tx.Currency, tx.Product,
			nullFloat(tx.HasQuantity, tx.Quantity), tx.HasQuantity, tx.Unit, nullString(tx.CustomerID), tx.Confidence,
			nullString(tx.TranscriptSnippet), tx.NeedsReview, tx.Synced,
			nullFloat(tx.HasOriginalPrice, tx.OriginalPrice), tx.HasOriginalPrice, tx.FinalPrice,
		)
		if err != nil {
			return err
		}
		opID, err = s.EnqueueOperation(ctx, sqlTx, op)
		return err
	})
	if err != nil {
		return "", "", wrapStoreErr("save transaction and enqueue", err)
	}
	return tx.ID, opID, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (transaction.Transaction, error) {
	var tx transaction.Transaction
	var ts int64
	var quantity sql.NullFloat64
	var unit, customerID, snippet sql.NullString
	var originalPrice sql.NullFloat64

	err := row.Scan(
		&tx.ID, &ts, &tx.DateKey, &tx.Amount, &tx.Currency, &tx.Product,
		&quantity, &tx.HasQuantity, &unit, &customerID, &tx.Confidence,
		&snippet, &tx.NeedsReview, &tx.Synced,
		&originalPrice, &tx.HasOriginalPrice, &tx.FinalPrice,
	)
	if err != nil {
		return transaction.Transaction{}, err
	}

	tx.Timestamp = time.UnixMilli(ts).UTC()
	tx.Quantity = quantity.Float64
	tx.Unit = unit.String
	tx.CustomerID = customerID.String
	tx.TranscriptSnippet = snippet.String
	tx.OriginalPrice = originalPrice.Float64
	return tx, nil
}

func nullFloat(has bool, v float64) any {
	if !has {
		return nil
	}
	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
