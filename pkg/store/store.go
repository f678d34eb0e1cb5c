// Package store is the sqlite-backed ACID persistence layer: one DAO guarding
// the transactions, daily_summaries, speaker_profiles, product_vocabulary,
// audio_metadata, offline_operations and pending_conflicts tables behind
// short, serialized transactions, with forward-only migrations run at open.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/ghanavoice/ledger/internal/errs"
	"github.com/ghanavoice/ledger/internal/logging"
)

// Store is the single cross-task mutable resource: every write goes through
// one of its DAO methods, each wrapped in a short transaction.
type Store struct {
	db  *sql.DB
	log logging.Logger
	mu  sync.Mutex
}

// Open opens (creating if absent) the sqlite database at path, enables WAL
// and foreign keys, and runs any pending migrations.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.StoreError, "open sqlite database", false, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.StoreError, "enable WAL journal mode", false, err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.StoreError, "enable foreign keys", false, err)
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a single serialized transaction, committing on
// success and rolling back on any error fn returns.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.StoreError, "begin transaction", true, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("store: rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.StoreError, "commit transaction", true, err)
	}
	return nil
}

func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.StoreError, fmt.Sprintf("store: %s", op), true, err)
}
