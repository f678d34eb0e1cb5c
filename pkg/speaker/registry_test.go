package speaker

import (
	"testing"
	"time"

	"github.com/ghanavoice/ledger/internal/clock"
)

func testClock() clock.Clock {
	return clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
}

func defaultThresholds() Thresholds {
	return Thresholds{
		Seller:                  0.85,
		Customer:                0.75,
		EnrollmentMinSimilarity: 0.7,
		RollingUpdateWeight:     0.2,
	}
}

func unitEmbedding(dim int, fill func(i int) float32) Embedding {
	e := make(Embedding, dim)
	for i := range e {
		e[i] = fill(i)
	}
	return e.Normalize()
}

func TestEnrollSellerRequiresThreeSamples(t *testing.T) {
	r := NewRegistry(defaultThresholds(), testClock())
	samples := []Embedding{
		unitEmbedding(128, func(i int) float32 { return 1 }),
		unitEmbedding(128, func(i int) float32 { return 1 }),
	}
	if _, err := r.EnrollSeller("seller-1", samples); err == nil {
		t.Fatalf("expected error enrolling with only 2 samples")
	}
}

func TestEnrollSellerRejectsInconsistentSamples(t *testing.T) {
	r := NewRegistry(defaultThresholds(), testClock())
	samples := []Embedding{
		unitEmbedding(128, func(i int) float32 {
			if i == 0 {
				return 1
			}
			return 0
		}),
		unitEmbedding(128, func(i int) float32 {
			if i == 1 {
				return 1
			}
			return 0
		}),
		unitEmbedding(128, func(i int) float32 {
			if i == 2 {
				return 1
			}
			return 0
		}),
	}
	if _, err := r.EnrollSeller("seller-1", samples); err == nil {
		t.Fatalf("expected error enrolling near-orthogonal samples")
	}
}

func TestEnrollSellerAcceptsConsistentSamples(t *testing.T) {
	r := NewRegistry(defaultThresholds(), testClock())
	base := func(i int) float32 {
		if i < 10 {
			return 1
		}
		return 0
	}
	samples := []Embedding{
		unitEmbedding(128, base),
		unitEmbedding(128, base),
		unitEmbedding(128, base),
	}
	p, err := r.EnrollSeller("seller-1", samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Role != Seller {
		t.Fatalf("expected Seller role, got %v", p.Role)
	}
}

func TestIdentifyMatchesEnrolledSeller(t *testing.T) {
	r := NewRegistry(defaultThresholds(), testClock())
	base := func(i int) float32 {
		if i < 10 {
			return 1
		}
		return 0
	}
	samples := []Embedding{unitEmbedding(128, base), unitEmbedding(128, base), unitEmbedding(128, base)}
	if _, err := r.EnrollSeller("seller-1", samples); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	id, err := r.Identify(unitEmbedding(128, base))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Role != Seller || id.ProfileID != "seller-1" {
		t.Fatalf("expected seller match, got %+v", id)
	}
}

func TestIdentifyReturnsNewCustomerWhenNoMatch(t *testing.T) {
	r := NewRegistry(defaultThresholds(), testClock())
	base := func(i int) float32 {
		if i < 10 {
			return 1
		}
		return 0
	}
	samples := []Embedding{unitEmbedding(128, base), unitEmbedding(128, base), unitEmbedding(128, base)}
	if _, err := r.EnrollSeller("seller-1", samples); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	unrelated := unitEmbedding(128, func(i int) float32 {
		if i >= 64 && i < 74 {
			return 1
		}
		return 0
	})
	id, err := r.Identify(unrelated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Role != NewCustomer {
		t.Fatalf("expected NewCustomer, got %+v", id)
	}
}

func TestUpdateRollingBlendsAndRenormalizes(t *testing.T) {
	r := NewRegistry(defaultThresholds(), testClock())
	base := func(i int) float32 {
		if i < 10 {
			return 1
		}
		return 0
	}
	samples := []Embedding{unitEmbedding(128, base), unitEmbedding(128, base), unitEmbedding(128, base)}
	p, err := r.EnrollSeller("seller-1", samples)
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	before := p.Samples

	incoming := unitEmbedding(128, func(i int) float32 {
		if i < 12 {
			return 1
		}
		return 0
	})
	updated, err := r.UpdateRolling("seller-1", incoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Samples != before+1 {
		t.Fatalf("expected sample count to increment")
	}

	var norm float64
	for _, v := range updated.Embedding {
		norm += float64(v) * float64(v)
	}
	if norm < 0.99 || norm > 1.01 {
		t.Fatalf("expected renormalized unit embedding, got norm^2=%v", norm)
	}
}

func TestIdentifyPrefersSellerOverHigherSimilarityCustomer(t *testing.T) {
	r := NewRegistry(defaultThresholds(), testClock())
	sellerBase := func(i int) float32 {
		if i < 10 {
			return 1
		}
		return 0
	}
	sellerSamples := []Embedding{unitEmbedding(128, sellerBase), unitEmbedding(128, sellerBase), unitEmbedding(128, sellerBase)}
	if _, err := r.EnrollSeller("seller-1", sellerSamples); err != nil {
		t.Fatalf("enroll seller failed: %v", err)
	}

	customerBase := func(i int) float32 {
		if i < 9 {
			return 1
		}
		return 0
	}
	customerSamples := []Embedding{unitEmbedding(128, customerBase), unitEmbedding(128, customerBase), unitEmbedding(128, customerBase)}
	if _, err := r.EnrollCustomer("customer-1", "Ama", customerSamples); err != nil {
		t.Fatalf("enroll customer failed: %v", err)
	}

	// An utterance embedding nearer the customer's mean than the seller's,
	// but still clearing the (stricter) seller threshold, must resolve to
	// SELLER: the seller check runs first and returns immediately.
	probe := unitEmbedding(128, func(i int) float32 {
		if i < 9 {
			return 1
		}
		return 0
	})

	id, err := r.Identify(probe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Role != Seller || id.ProfileID != "seller-1" {
		t.Fatalf("expected seller to win priority over a closer customer match, got %+v", id)
	}
}

func TestIdentifyUpdatesVisitBookkeeping(t *testing.T) {
	r := NewRegistry(defaultThresholds(), testClock())
	base := func(i int) float32 {
		if i < 10 {
			return 1
		}
		return 0
	}
	samples := []Embedding{unitEmbedding(128, base), unitEmbedding(128, base), unitEmbedding(128, base)}
	p, err := r.EnrollSeller("seller-1", samples)
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if p.VisitCount != 0 || !p.LastSeen.IsZero() {
		t.Fatalf("expected fresh enrollment to have no visits, got %+v", p)
	}

	if _, err := r.Identify(unitEmbedding(128, base)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Identify(unitEmbedding(128, base)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matched := r.Profiles()[0]
	if matched.VisitCount != 2 {
		t.Fatalf("expected visit count 2, got %d", matched.VisitCount)
	}
	if matched.LastSeen.IsZero() {
		t.Fatalf("expected LastSeen to be stamped")
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity(Embedding{1, 2}, Embedding{1, 2, 3})
	if err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestFakeEmbedderIsDeterministic(t *testing.T) {
	e := FakeEmbedder{}
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	a, err := e.Embed(pcm, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := e.Embed(pcm, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim < 0.999 {
		t.Fatalf("expected identical input to re-embed identically, got similarity %v", sim)
	}
}
