// Package conflict resolves remote sync conflicts for each persisted entity
// type, per the fixed per-entity strategy the sync worker applies when the
// remote reports a version mismatch.
package conflict

import (
	"encoding/json"
	"time"

	"github.com/ghanavoice/ledger/pkg/store"
)

// Strategy names which conflict-resolution rule produced a Resolution.
type Strategy string

const (
	LocalWins     Strategy = "LOCAL_WINS"
	RemoteWins    Strategy = "REMOTE_WINS"
	TimestampWins Strategy = "TIMESTAMP_WINS"
	Merge         Strategy = "MERGE"
	Manual        Strategy = "MANUAL"
)

// Metadata identifies the conflicting entity and the timestamps the sync
// worker observed for each side.
type Metadata struct {
	EntityType string
	EntityID   string
	LocalTS    time.Time
	RemoteTS   time.Time
}

// ToPendingConflict builds the PendingConflict row surfaced when a
// resolution falls back to MANUAL, marshaling local and remote as JSON for
// later operator review.
func ToPendingConflict(meta Metadata, local, remote any, now time.Time) (store.PendingConflict, error) {
	localJSON, err := json.Marshal(local)
	if err != nil {
		return store.PendingConflict{}, err
	}
	remoteJSON, err := json.Marshal(remote)
	if err != nil {
		return store.PendingConflict{}, err
	}
	return store.PendingConflict{
		EntityType: meta.EntityType,
		EntityID:   meta.EntityID,
		LocalJSON:  string(localJSON),
		RemoteJSON: string(remoteJSON),
		LocalTS:    meta.LocalTS,
		RemoteTS:   meta.RemoteTS,
		CreatedAt:  now,
	}, nil
}
