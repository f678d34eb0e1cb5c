package speaker

import (
	"fmt"
	"sync"

	"github.com/ghanavoice/ledger/internal/clock"
)

// Thresholds holds the identification and enrollment acceptance cutoffs.
type Thresholds struct {
	Seller                  float64
	Customer                float64
	EnrollmentMinSimilarity float64
	RollingUpdateWeight     float64 // incoming-sample weight, e.g. 0.2
}

// Registry holds enrolled speaker profiles in memory and performs
// enrollment, identification and rolling profile updates against them. A
// caller is responsible for persisting Profile changes to the store.
type Registry struct {
	mu         sync.RWMutex
	thresholds Thresholds
	clock      clock.Clock
	profiles   map[string]*Profile
	order      []string // enrollment order, for first-match customer scanning
}

// NewRegistry builds an empty Registry with the given thresholds.
func NewRegistry(t Thresholds, c clock.Clock) *Registry {
	return &Registry{thresholds: t, clock: c, profiles: make(map[string]*Profile)}
}

// Load seeds the registry from previously persisted profiles, e.g. at
// process start. Profiles are appended to the enrollment order in the slice
// order given, so callers that load in original-enrollment order preserve
// first-match semantics across restarts.
func (r *Registry) Load(profiles []*Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range profiles {
		if _, exists := r.profiles[p.ID]; !exists {
			r.order = append(r.order, p.ID)
		}
		r.profiles[p.ID] = p
	}
}

// EnrollSeller builds the seller's profile from at least 3 sample
// utterances, rejecting inconsistent samples (average pairwise similarity
// below EnrollmentMinSimilarity) so a noisy enrollment session doesn't
// poison the single highest-trust profile.
func (r *Registry) EnrollSeller(id string, samples []Embedding) (*Profile, error) {
	return r.enroll(id, Seller, "", samples)
}

// EnrollCustomer enrolls a known/repeat customer under the given display
// name.
func (r *Registry) EnrollCustomer(id, name string, samples []Embedding) (*Profile, error) {
	return r.enroll(id, KnownCustomer, name, samples)
}

func (r *Registry) enroll(id string, role Role, name string, samples []Embedding) (*Profile, error) {
	if len(samples) < 3 {
		return nil, fmt.Errorf("speaker: enrollment requires at least 3 samples, got %d", len(samples))
	}

	avg, err := averagePairwiseSimilarity(samples)
	if err != nil {
		return nil, err
	}
	if avg < r.thresholds.EnrollmentMinSimilarity {
		return nil, fmt.Errorf("speaker: enrollment samples too inconsistent: avg pairwise similarity %.3f below %.3f", avg, r.thresholds.EnrollmentMinSimilarity)
	}

	mean, err := MeanEmbedding(samples)
	if err != nil {
		return nil, err
	}

	p := &Profile{ID: id, Role: role, Name: name, Embedding: mean, Samples: len(samples)}
	r.mu.Lock()
	if _, exists := r.profiles[id]; !exists {
		r.order = append(r.order, id)
	}
	r.profiles[id] = p
	r.mu.Unlock()
	return p, nil
}

// averagePairwiseSimilarity returns the mean cosine similarity across all
// unordered pairs of samples.
func averagePairwiseSimilarity(samples []Embedding) (float64, error) {
	n := len(samples)
	if n < 2 {
		return 1, nil
	}
	var sum float64
	var count int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim, err := CosineSimilarity(samples[i], samples[j])
			if err != nil {
				return 0, err
			}
			sum += sim
			count++
		}
	}
	return sum / float64(count), nil
}

// Identification is the result of matching an embedding against the
// registry.
type Identification struct {
	Role       Role
	ProfileID  string
	Similarity float64
}

// Identify checks emb against the enrolled seller first: if its similarity
// clears the Seller threshold, it returns SELLER immediately without
// consulting any customer profile. Only once the seller is ruled out does it
// scan customer profiles in enrollment order, returning the first one whose
// similarity clears the Customer threshold — not the best match across all
// of them. No match against an enrolled profile, or no enrolled profiles at
// all, returns NewCustomer. Whichever profile is matched has its visit
// bookkeeping (VisitCount, LastSeen) updated before Identify returns.
func (r *Registry) Identify(emb Embedding) (Identification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		p := r.profiles[id]
		if p == nil || p.Role != Seller {
			continue
		}
		sim, err := CosineSimilarity(emb, p.Embedding)
		if err != nil {
			return Identification{}, err
		}
		if sim >= r.thresholds.Seller {
			r.noteVisit(p)
			return Identification{Role: Seller, ProfileID: p.ID, Similarity: sim}, nil
		}
		break // at most one seller profile; no need to keep scanning for it
	}

	for _, id := range r.order {
		p := r.profiles[id]
		if p == nil || p.Role == Seller {
			continue
		}
		sim, err := CosineSimilarity(emb, p.Embedding)
		if err != nil {
			return Identification{}, err
		}
		if sim >= r.thresholds.Customer {
			r.noteVisit(p)
			return Identification{Role: p.Role, ProfileID: p.ID, Similarity: sim}, nil
		}
	}

	return Identification{Role: NewCustomer}, nil
}

// noteVisit records an Identify match against p. Callers must hold r.mu.
func (r *Registry) noteVisit(p *Profile) {
	p.VisitCount++
	p.LastSeen = r.clock.Now()
}

// UpdateRolling blends a newly-observed embedding into profile id's stored
// embedding using the configured rolling update weight, then renormalizes,
// per the registry's profile-drift-tolerant update rule. It is the same
// blend used by the conflict package's SpeakerProfile MERGE strategy.
func (r *Registry) UpdateRolling(id string, incoming Embedding) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("speaker: unknown profile %q", id)
	}
	blended, err := BlendEmbeddings(p.Embedding, incoming, 1-r.thresholds.RollingUpdateWeight)
	if err != nil {
		return nil, err
	}
	p.Embedding = blended
	p.Samples++
	return p, nil
}

// Profiles returns a snapshot of all enrolled profiles, for persistence.
func (r *Registry) Profiles() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}
