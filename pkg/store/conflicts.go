package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// PendingConflict is a sync conflict routed to MANUAL resolution, kept until
// ResolveConflict clears it. The sync worker and reconciler do not read
// these rows, so queued operations for the same entity are still sent.
type PendingConflict struct {
	ID         string
	EntityType string
	EntityID   string
	LocalJSON  string
	RemoteJSON string
	LocalTS    time.Time
	RemoteTS   time.Time
	CreatedAt  time.Time
}

// InsertPendingConflict records a MANUAL-resolution conflict, assigning a
// uuid if none was set.
func (s *Store) InsertPendingConflict(ctx context.Context, c PendingConflict) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pending_conflicts (id, entity_type, entity_id, local_json, remote_json, local_ts_unix_ms, remote_ts_unix_ms, created_at_unix_ms)
			VALUES (?,?,?,?,?,?,?,?)`,
			c.ID, c.EntityType, c.EntityID, c.LocalJSON, c.RemoteJSON,
			c.LocalTS.UnixMilli(), c.RemoteTS.UnixMilli(), c.CreatedAt.UnixMilli(),
		)
		return wrapStoreErr("insert pending conflict", err)
	})
	return c.ID, err
}

// ListPendingConflicts returns every unresolved conflict for entityType, or
// all of them when entityType is empty.
func (s *Store) ListPendingConflicts(ctx context.Context, entityType string) ([]PendingConflict, error) {
	query := `SELECT id, entity_type, entity_id, local_json, remote_json, local_ts_unix_ms, remote_ts_unix_ms, created_at_unix_ms FROM pending_conflicts`
	args := []any{}
	if entityType != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreErr("list pending conflicts", err)
	}
	defer rows.Close()

	var out []PendingConflict
	for rows.Next() {
		var c PendingConflict
		var localTS, remoteTS, createdAt int64
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.LocalJSON, &c.RemoteJSON, &localTS, &remoteTS, &createdAt); err != nil {
			return nil, wrapStoreErr("scan pending conflict", err)
		}
		c.LocalTS = time.UnixMilli(localTS).UTC()
		c.RemoteTS = time.UnixMilli(remoteTS).UTC()
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, c)
	}
	return out, wrapStoreErr("list pending conflicts", rows.Err())
}

// ResolveConflict clears a pending conflict once the user (or an automated
// policy) has decided its outcome.
func (s *Store) ResolveConflict(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM pending_conflicts WHERE id = ?`, id)
		return wrapStoreErr("resolve conflict", err)
	})
}
