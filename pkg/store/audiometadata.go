package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// AudioMetadata is a persisted diagnostic record of one processed speech
// segment, retained up to a configured TTL then purged by PurgeOlderThan.
type AudioMetadata struct {
	ChunkID                 string
	Timestamp                time.Time
	VADScore                 float64
	SpeechDetected            bool
	SpeakerID                 string
	HasSpeakerConfidence      bool
	SpeakerConfidence         float64
	DurationMillis            int64
	ProcessingTimeMillis      int64
	ContributedToTransaction bool
	TransactionID             string
	HasBatteryLevel           bool
	BatteryLevel              float64
	PowerSavingMode           bool
}

// InsertAudioMetadata records one processed chunk's diagnostics, assigning a
// uuid chunk id if none was set.
func (s *Store) InsertAudioMetadata(ctx context.Context, m AudioMetadata) error {
	if m.ChunkID == "" {
		m.ChunkID = uuid.NewString()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audio_metadata (
				chunk_id, timestamp_unix_ms, vad_score, speech_detected,
				speaker_id, speaker_confidence, duration_ms, processing_time_ms,
				contributed_to_transaction, transaction_id, battery_level, power_saving_mode
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			m.ChunkID, m.Timestamp.UnixMilli(), m.VADScore, m.SpeechDetected,
			nullString(m.SpeakerID), nullFloat(m.HasSpeakerConfidence, m.SpeakerConfidence), m.DurationMillis, m.ProcessingTimeMillis,
			m.ContributedToTransaction, nullString(m.TransactionID), nullFloat(m.HasBatteryLevel, m.BatteryLevel), m.PowerSavingMode,
		)
		return wrapStoreErr("insert audio metadata", err)
	})
}

// PurgeOlderThan deletes audio_metadata rows older than cutoff, the 30-day
// retention sweep run by the background GC job.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM audio_metadata WHERE timestamp_unix_ms < ?`, cutoff.UnixMilli())
		if err != nil {
			return wrapStoreErr("purge audio metadata", err)
		}
		affected, err = res.RowsAffected()
		return wrapStoreErr("purge audio metadata", err)
	})
	return affected, err
}
