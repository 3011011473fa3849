package match

import (
	"math"
	"testing"

	"github.com/guestlens/guestlens/internal/face"
)

func testProfile(key string, order int, embs ...float32) *GuestProfile {
	p := &GuestProfile{Key: key, Order: order}
	for _, e := range embs {
		p.Embeddings = append(p.Embeddings, []float32{e})
	}
	p.Centroid = centroid(p.Embeddings)
	return p
}

func TestRankMinPerGuest(t *testing.T) {
	// Three embeddings where only the middle one is close: the guest's
	// score must be the minimum over all stored vectors, not an average.
	guest := testProfile("anna", 0, 0.9, 0.32, 0.95)
	other := testProfile("bert", 1, 2.0)

	r := NewRanker([]*GuestProfile{guest, other}, face.EuclideanDistance)
	rk := r.Rank([]float32{0.3})

	if rk.Best.Guest.Key != "anna" {
		t.Fatalf("best guest = %s, want anna", rk.Best.Guest.Key)
	}
	if got := rk.Best.Distance; math.Abs(got-0.02) > 1e-6 {
		t.Errorf("best distance = %f, want 0.02 (min over gallery)", got)
	}
}

func TestRankCentroidContributes(t *testing.T) {
	// Embeddings at 0.0 and 1.0 give a centroid at 0.5. A query at 0.5 is
	// closest to the centroid, which must be part of the gallery.
	guest := testProfile("anna", 0, 0.0, 1.0)

	r := NewRanker([]*GuestProfile{guest}, face.EuclideanDistance)
	rk := r.Rank([]float32{0.5})

	if got := rk.Best.Distance; math.Abs(got) > 1e-6 {
		t.Errorf("best distance = %f, want 0 (centroid match)", got)
	}
}

func TestRankSecondBestInfSingleGuest(t *testing.T) {
	r := NewRanker([]*GuestProfile{testProfile("anna", 0, 0.1)}, face.EuclideanDistance)
	rk := r.Rank([]float32{0.1})

	if !math.IsInf(rk.SecondBest.Distance, 1) {
		t.Errorf("second best = %f, want +Inf with a single guest", rk.SecondBest.Distance)
	}
}

func TestRankTieBreakByDiscoveryOrder(t *testing.T) {
	// Identical distances must rank by guest discovery order, run after run.
	a := testProfile("zoe", 0, 0.5)
	b := testProfile("adam", 1, 0.5)

	r := NewRanker([]*GuestProfile{a, b}, face.EuclideanDistance)
	for range 10 {
		rk := r.Rank([]float32{0.5})
		if rk.Best.Guest.Key != "zoe" {
			t.Fatalf("tie broke to %s, want zoe (discovery order)", rk.Best.Guest.Key)
		}
	}
}

func TestRefinedRankerUsesRefinedVectorOnly(t *testing.T) {
	guest := testProfile("anna", 0, 5.0)
	guest.Refined = []float32{0.1}
	unrefined := testProfile("bert", 1, 0.1)

	r := NewRefinedRanker([]*GuestProfile{guest, unrefined}, face.EuclideanDistance)
	rk := r.Rank([]float32{0.1})

	if rk.Best.Guest.Key != "anna" {
		t.Fatalf("best guest = %s, want anna via refined vector", rk.Best.Guest.Key)
	}
	if got := rk.Best.Distance; math.Abs(got) > 1e-6 {
		t.Errorf("best distance = %f, want 0 against refined vector", got)
	}
	// A guest without a refined vector has nothing to rank against, even
	// when their selfie sits right on the query. They must land at +Inf,
	// behind every refined guest.
	if rk.All[1].Guest.Key != "bert" {
		t.Fatalf("last ranked = %s, want bert", rk.All[1].Guest.Key)
	}
	if !math.IsInf(rk.All[1].Distance, 1) {
		t.Errorf("unrefined guest distance = %f, want +Inf", rk.All[1].Distance)
	}
}
