package conflict

import (
	"github.com/ghanavoice/ledger/pkg/speaker"
	"github.com/ghanavoice/ledger/pkg/store"
)

// localEmbeddingWeight is the fixed blend ratio: 0.8 local, 0.2 remote.
const localEmbeddingWeight = 0.8

// ResolveSpeakerProfile merges local and remote profiles: the embedding is
// a weighted blend renormalized to unit length, visit_count and last_seen
// each take the max of the two sides. A dimension mismatch between the
// embeddings (e.g. a model upgrade on one device but not the other) cannot
// be merged automatically and falls back to MANUAL.
func ResolveSpeakerProfile(local, remote store.SpeakerProfileRecord) (store.SpeakerProfileRecord, Strategy, error) {
	blended, err := speaker.BlendEmbeddings(local.Embedding, remote.Embedding, localEmbeddingWeight)
	if err != nil {
		return store.SpeakerProfileRecord{}, Manual, err
	}

	merged := local
	merged.Embedding = blended
	if remote.VisitCount > merged.VisitCount {
		merged.VisitCount = remote.VisitCount
	}
	if remote.LastSeen.After(merged.LastSeen) {
		merged.LastSeen = remote.LastSeen
	}
	return merged, Merge, nil
}
