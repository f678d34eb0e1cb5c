package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ghanavoice/ledger/internal/errs"
	"github.com/ghanavoice/ledger/pkg/speaker"
)

// SpeakerProfileRecord is a speaker.Profile plus the identification
// threshold it was enrolled with. VisitCount and LastSeen are the embedded
// Profile's own fields, promoted here so persistence round-trips the exact
// bookkeeping Registry.Identify maintains in memory.
type SpeakerProfileRecord struct {
	speaker.Profile
	ConfidenceThreshold float64
}

// SaveSpeakerProfile upserts a speaker profile record.
func (s *Store) SaveSpeakerProfile(ctx context.Context, rec SpeakerProfileRecord) error {
	embJSON, err := json.Marshal(rec.Embedding)
	if err != nil {
		return wrapStoreErr("marshal embedding", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO speaker_profiles (id, role, name, embedding_json, confidence_threshold, visit_count, last_seen_unix_ms)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				role = excluded.role,
				name = excluded.name,
				embedding_json = excluded.embedding_json,
				confidence_threshold = excluded.confidence_threshold,
				visit_count = excluded.visit_count,
				last_seen_unix_ms = excluded.last_seen_unix_ms`,
			rec.ID, string(rec.Role), nullString(rec.Name), string(embJSON),
			rec.ConfidenceThreshold, rec.VisitCount, rec.LastSeen.UnixMilli(),
		)
		return wrapStoreErr("save speaker profile", err)
	})
}

// GetSpeakerProfile fetches a single speaker profile by id.
func (s *Store) GetSpeakerProfile(ctx context.Context, id string) (SpeakerProfileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, role, name, embedding_json, confidence_threshold, visit_count, last_seen_unix_ms
		FROM speaker_profiles WHERE id = ?`, id)
	rec, err := scanSpeakerProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SpeakerProfileRecord{}, errs.New(errs.StoreError, "speaker profile not found: "+id, false)
	}
	if err != nil {
		return SpeakerProfileRecord{}, wrapStoreErr("get speaker profile", err)
	}
	return rec, nil
}

// ListSpeakerProfiles returns every enrolled speaker profile.
func (s *Store) ListSpeakerProfiles(ctx context.Context) ([]SpeakerProfileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, name, embedding_json, confidence_threshold, visit_count, last_seen_unix_ms
		FROM speaker_profiles`)
	if err != nil {
		return nil, wrapStoreErr("list speaker profiles", err)
	}
	defer rows.Close()

	var out []SpeakerProfileRecord
	for rows.Next() {
		rec, err := scanSpeakerProfile(rows)
		if err != nil {
			return nil, wrapStoreErr("scan speaker profile", err)
		}
		out = append(out, rec)
	}
	return out, wrapStoreErr("list speaker profiles", rows.Err())
}

func scanSpeakerProfile(row scanner) (SpeakerProfileRecord, error) {
	var rec SpeakerProfileRecord
	var role string
	var name sql.NullString
	var embJSON string
	var lastSeen int64

	err := row.Scan(&rec.ID, &role, &name, &embJSON, &rec.ConfidenceThreshold, &rec.VisitCount, &lastSeen)
	if err != nil {
		return SpeakerProfileRecord{}, err
	}

	rec.Role = speaker.Role(role)
	rec.Name = name.String
	rec.LastSeen = time.UnixMilli(lastSeen).UTC()
	if err := json.Unmarshal([]byte(embJSON), &rec.Embedding); err != nil {
		return SpeakerProfileRecord{}, err
	}
	return rec, nil
}
