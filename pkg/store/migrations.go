package store

import (
	"context"
	"fmt"

	"github.com/ghanavoice/ledger/internal/errs"
)

// migration is one forward-only schema step. Migrations never run out of
// order and never roll back; a new column or table is always a new,
// higher-numbered step appended to the list.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE transactions (
				id TEXT PRIMARY KEY,
				timestamp_unix_ms INTEGER NOT NULL,
				date_key TEXT NOT NULL,
				amount REAL NOT NULL,
				currency TEXT NOT NULL,
				product TEXT NOT NULL,
				quantity REAL,
				has_quantity INTEGER NOT NULL DEFAULT 0,
				unit TEXT,
				customer_id TEXT,
				confidence REAL NOT NULL,
				transcript_snippet TEXT,
				needs_review INTEGER NOT NULL DEFAULT 0,
				synced INTEGER NOT NULL DEFAULT 0,
				original_price REAL,
				has_original_price INTEGER NOT NULL DEFAULT 0,
				final_price REAL NOT NULL
			)`,
			`CREATE INDEX idx_transactions_date_key ON transactions(date_key)`,
			`CREATE INDEX idx_transactions_synced ON transactions(synced)`,

			`CREATE TABLE daily_summaries (
				date_key TEXT PRIMARY KEY,
				total_sales REAL NOT NULL,
				transaction_count INTEGER NOT NULL,
				top_products_json TEXT NOT NULL,
				hourly_breakdown_json TEXT NOT NULL,
				generated_at_unix_ms INTEGER NOT NULL,
				synced INTEGER NOT NULL DEFAULT 0
			)`,

			`CREATE TABLE speaker_profiles (
				id TEXT PRIMARY KEY,
				role TEXT NOT NULL,
				name TEXT,
				embedding_json TEXT NOT NULL,
				confidence_threshold REAL NOT NULL,
				visit_count INTEGER NOT NULL DEFAULT 0,
				last_seen_unix_ms INTEGER NOT NULL
			)`,

			`CREATE TABLE product_vocabulary (
				id TEXT PRIMARY KEY,
				canonical_name TEXT NOT NULL UNIQUE,
				variants_json TEXT NOT NULL,
				category TEXT,
				typical_price_min REAL,
				typical_price_max REAL,
				frequency INTEGER NOT NULL DEFAULT 0
			)`,

			`CREATE TABLE audio_metadata (
				chunk_id TEXT PRIMARY KEY,
				timestamp_unix_ms INTEGER NOT NULL,
				vad_score REAL NOT NULL,
				speech_detected INTEGER NOT NULL,
				speaker_id TEXT,
				speaker_confidence REAL,
				duration_ms INTEGER NOT NULL,
				processing_time_ms INTEGER NOT NULL,
				contributed_to_transaction INTEGER NOT NULL DEFAULT 0,
				transaction_id TEXT,
				battery_level REAL,
				power_saving_mode INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX idx_audio_metadata_timestamp ON audio_metadata(timestamp_unix_ms)`,

			`CREATE TABLE offline_operations (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				payload_json TEXT NOT NULL,
				enqueued_at_unix_ms INTEGER NOT NULL,
				priority TEXT NOT NULL,
				status TEXT NOT NULL,
				retry_count INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				last_attempt_unix_ms INTEGER
			)`,
			`CREATE INDEX idx_offline_operations_status ON offline_operations(status, priority, enqueued_at_unix_ms)`,

			`CREATE TABLE pending_conflicts (
				id TEXT PRIMARY KEY,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				local_json TEXT NOT NULL,
				remote_json TEXT NOT NULL,
				local_ts_unix_ms INTEGER NOT NULL,
				remote_ts_unix_ms INTEGER NOT NULL,
				created_at_unix_ms INTEGER NOT NULL
			)`,
		},
	},
}

// migrate applies every migration newer than the database's current
// PRAGMA user_version, in order, each inside its own transaction.
func (s *Store) migrate(ctx context.Context) error {
	var current int
	row := s.db.QueryRowContext(ctx, `PRAGMA user_version`)
	if err := row.Scan(&current); err != nil {
		return errs.Wrap(errs.SchemaError, "read schema version", false, err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.SchemaError, "begin migration", false, err)
	}

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return errs.Wrap(errs.SchemaError, fmt.Sprintf("apply migration %d", m.version), false, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, m.version)); err != nil {
		tx.Rollback()
		return errs.Wrap(errs.SchemaError, fmt.Sprintf("record migration %d", m.version), false, err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.SchemaError, fmt.Sprintf("commit migration %d", m.version), false, err)
	}
	return nil
}
