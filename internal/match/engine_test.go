package match

import (
	"context"
	"fmt"
	"testing"

	"github.com/guestlens/guestlens/internal/face"
)

// fakeExtractor serves canned extractions keyed by path and fidelity.
type fakeExtractor struct {
	extractions map[string]*Extraction // key: path + "/" + fidelity
	errs        map[string]error
	calls       int
}

func (f *fakeExtractor) key(path string, fidelity face.Fidelity) string {
	return path + "/" + string(fidelity)
}

func (f *fakeExtractor) set(path string, fidelity face.Fidelity, ext *Extraction) {
	if f.extractions == nil {
		f.extractions = make(map[string]*Extraction)
	}
	f.extractions[f.key(path, fidelity)] = ext
}

func (f *fakeExtractor) ExtractFile(ctx context.Context, path string, fidelity face.Fidelity) (*Extraction, error) {
	f.calls++
	if err := f.errs[f.key(path, fidelity)]; err != nil {
		return nil, err
	}
	ext, ok := f.extractions[f.key(path, fidelity)]
	if !ok {
		return nil, fmt.Errorf("no extraction for %s at %s", path, fidelity)
	}
	return ext, nil
}

func detection(index int, emb float32) face.Detection {
	return face.Detection{Index: index, Embedding: []float32{emb}}
}

func photoWith(path string, dets ...face.Detection) *Extraction {
	return &Extraction{Path: path, Width: 1200, Height: 800, Detections: dets}
}

func newTestEngine(profiles []*GuestProfile, extractor Extractor, mutate func(*Options)) *Engine {
	opts := DefaultOptions(balancedProfile())
	if mutate != nil {
		mutate(&opts)
	}
	return NewEngine(opts, NewRanker(profiles, face.EuclideanDistance), extractor)
}

func TestStrictAccept(t *testing.T) {
	// Scenario: best 0.20 vs second 0.55, tolerance 0.45, margin 0.10.
	profiles := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 0.75)}
	engine := newTestEngine(profiles, nil, func(o *Options) { o.Recheck = RecheckOff })

	photo := photoWith("p.jpg", detection(0, 0.2))
	d := engine.DecideFace(context.Background(), photo, photo.Detections[0])

	if d.Outcome != OutcomeAccepted {
		t.Fatalf("outcome = %s, want accepted", d.Outcome)
	}
	if d.Guest.Key != "anna" {
		t.Errorf("guest = %s, want anna", d.Guest.Key)
	}
}

func TestAmbiguousRejectBecomesCandidate(t *testing.T) {
	// Scenario: best 0.30, second 0.33. Delta 0.03 misses both the strict
	// margin (0.10) and the relaxed margin (0.05), so the face is rejected
	// but kept for review (0.30 <= 0.90).
	profiles := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 0.63)}
	engine := newTestEngine(profiles, nil, func(o *Options) { o.Recheck = RecheckOff })

	photo := photoWith("p.jpg", detection(0, 0.3))
	d := engine.DecideFace(context.Background(), photo, photo.Detections[0])

	if d.Outcome != OutcomeCandidate {
		t.Fatalf("outcome = %s, want candidate", d.Outcome)
	}
	if d.Guest.Key != "anna" {
		t.Errorf("candidate guest = %s, want anna", d.Guest.Key)
	}
}

func TestFarRejectIsNotCandidate(t *testing.T) {
	profiles := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 5.0)}
	engine := newTestEngine(profiles, nil, func(o *Options) { o.Recheck = RecheckOff })

	photo := photoWith("p.jpg", detection(0, 2.0))
	d := engine.DecideFace(context.Background(), photo, photo.Detections[0])

	if d.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s, want rejected beyond max candidate distance", d.Outcome)
	}
}

func TestSingleGuestWaivesMargin(t *testing.T) {
	// With two guests this delta would be an ambiguous reject; with only
	// the winner registered the margin requirement must never block.
	two := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 0.63)}
	engine := newTestEngine(two, nil, func(o *Options) { o.Recheck = RecheckOff })
	photo := photoWith("p.jpg", detection(0, 0.3))
	if d := engine.DecideFace(context.Background(), photo, photo.Detections[0]); d.Outcome.Accepted() {
		t.Fatalf("two-guest outcome = %s, want reject", d.Outcome)
	}

	one := []*GuestProfile{testProfile("anna", 0, 0.0)}
	engine = newTestEngine(one, nil, func(o *Options) { o.Recheck = RecheckOff })
	d := engine.DecideFace(context.Background(), photo, photo.Detections[0])
	if d.Outcome != OutcomeAccepted {
		t.Fatalf("single-guest outcome = %s, want accepted", d.Outcome)
	}
}

func TestMarginMonotonicity(t *testing.T) {
	// Raising the margin while distances stay fixed may only ever turn an
	// accept into a reject, never the reverse.
	profiles := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 0.38)}
	photo := photoWith("p.jpg", detection(0, 0.3)) // best 0.30, delta 0.08

	accepted := true
	for _, margin := range []float64{0.02, 0.05, 0.08, 0.10, 0.20, 0.40} {
		profile := balancedProfile()
		profile.Margin = margin
		opts := DefaultOptions(profile)
		opts.Recheck = RecheckOff
		engine := NewEngine(opts, NewRanker(profiles, face.EuclideanDistance), nil)

		d := engine.DecideFace(context.Background(), photo, photo.Detections[0])
		if d.Outcome.Accepted() && !accepted {
			t.Fatalf("margin %f accepted after a lower margin rejected", margin)
		}
		accepted = d.Outcome.Accepted()
	}
	if accepted {
		t.Fatal("expected the largest margin to reject")
	}
}

func TestDeterministicDecisions(t *testing.T) {
	profiles := []*GuestProfile{testProfile("anna", 0, 0.1), testProfile("bert", 1, 0.6)}
	photo := photoWith("p.jpg", detection(0, 0.25), detection(1, 0.55))

	var first []Decision
	for run := range 3 {
		engine := newTestEngine(profiles, nil, func(o *Options) { o.Recheck = RecheckOff })
		var got []Decision
		for _, det := range photo.Detections {
			got = append(got, engine.DecideFace(context.Background(), photo, det))
		}
		if run == 0 {
			first = got
			continue
		}
		for i := range got {
			if got[i].Outcome != first[i].Outcome || got[i].Guest.Key != first[i].Guest.Key {
				t.Fatalf("run %d decision %d differs: %s/%s vs %s/%s",
					run, i, got[i].Outcome, got[i].Guest.Key, first[i].Outcome, first[i].Guest.Key)
			}
		}
	}
}

func TestRecheckDemotesOnDisagreement(t *testing.T) {
	// Best 0.42 is within the tolerance pad of 0.45, triggering a recheck.
	// The precise extraction lands on the other guest, so the accept must
	// demote to a candidate, never the other way.
	profiles := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 1.0)}
	ex := &fakeExtractor{}
	ex.set("p.jpg", face.FidelityPrecise, photoWith("p.jpg", detection(0, 0.9)))

	engine := newTestEngine(profiles, ex, nil)
	photo := photoWith("p.jpg", detection(0, 0.42))
	d := engine.DecideFace(context.Background(), photo, photo.Detections[0])

	if !d.Rechecked {
		t.Fatal("expected a recheck for a borderline accept")
	}
	if d.RecheckOK {
		t.Error("recheck passed despite a different winner")
	}
	if d.Outcome != OutcomeCandidate {
		t.Errorf("outcome = %s, want candidate after failed recheck", d.Outcome)
	}
}

func TestRecheckConfirms(t *testing.T) {
	profiles := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 1.0)}
	ex := &fakeExtractor{}
	ex.set("p.jpg", face.FidelityPrecise, photoWith("p.jpg", detection(0, 0.3)))

	engine := newTestEngine(profiles, ex, nil)
	photo := photoWith("p.jpg", detection(0, 0.42))
	d := engine.DecideFace(context.Background(), photo, photo.Detections[0])

	if !d.Rechecked || !d.RecheckOK {
		t.Fatalf("rechecked=%v ok=%v, want a confirming recheck", d.Rechecked, d.RecheckOK)
	}
	if d.Outcome != OutcomeAccepted {
		t.Errorf("outcome = %s, want accepted", d.Outcome)
	}
}

func TestRecheckCachesPreciseExtraction(t *testing.T) {
	profiles := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 1.0)}
	ex := &fakeExtractor{}
	ex.set("p.jpg", face.FidelityPrecise,
		photoWith("p.jpg", detection(0, 0.41), detection(1, 0.43)))

	engine := newTestEngine(profiles, ex, nil)
	photo := photoWith("p.jpg", detection(0, 0.42), detection(1, 0.42))
	for _, det := range photo.Detections {
		engine.DecideFace(context.Background(), photo, det)
	}

	if ex.calls != 1 {
		t.Errorf("precise extractions = %d, want 1 (cached per photo)", ex.calls)
	}
}

func TestRecheckSkippedForOversizedImage(t *testing.T) {
	profiles := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 1.0)}
	ex := &fakeExtractor{} // any recheck attempt would error: no fixture

	engine := newTestEngine(profiles, ex, nil)
	photo := photoWith("huge.jpg", detection(0, 0.42))
	photo.Width = 4000

	d := engine.DecideFace(context.Background(), photo, photo.Detections[0])
	if d.Rechecked {
		t.Error("recheck ran on an oversized image")
	}
	if d.Outcome != OutcomeAccepted {
		t.Errorf("outcome = %s, want accepted without recheck", d.Outcome)
	}
}

func TestRecheckInconclusiveIsReject(t *testing.T) {
	// Precise extraction finds no faces at all: never promoted to accept.
	profiles := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 1.0)}
	ex := &fakeExtractor{}
	ex.set("p.jpg", face.FidelityPrecise, photoWith("p.jpg"))

	engine := newTestEngine(profiles, ex, nil)
	photo := photoWith("p.jpg", detection(0, 0.42))
	d := engine.DecideFace(context.Background(), photo, photo.Detections[0])

	if d.RecheckOK {
		t.Error("empty recheck extraction confirmed an accept")
	}
	if d.Outcome.Accepted() {
		t.Errorf("outcome = %s, want demotion", d.Outcome)
	}
}

func TestSampleCollection(t *testing.T) {
	profiles := []*GuestProfile{testProfile("anna", 0, 0.0), testProfile("bert", 1, 5.0)}
	engine := newTestEngine(profiles, nil, func(o *Options) { o.Recheck = RecheckOff })

	// Under the 0.80 cutoff: collected. Beyond it: not.
	near := photoWith("near.jpg", detection(0, 0.7))
	far := photoWith("far.jpg", detection(0, 1.5))
	engine.DecideFace(context.Background(), near, near.Detections[0])
	engine.DecideFace(context.Background(), far, far.Detections[0])

	samples := engine.Samples()
	if got := len(samples["anna"]); got != 1 {
		t.Fatalf("anna samples = %d, want 1", got)
	}
	if samples["anna"][0].Photo != "near.jpg" {
		t.Errorf("sample photo = %s, want near.jpg", samples["anna"][0].Photo)
	}
}

func TestDecideRefinedExcludesUnrefinedGuests(t *testing.T) {
	// Anna refined but far from the query; bert never collected enough
	// samples to refine, yet his selfie sits well under the refined
	// tolerance. A refined sweep compares refined vectors only, so the
	// face must not be delivered to either guest.
	anna := testProfile("anna", 0, 5.0)
	anna.Refined = []float32{2.0}
	bert := testProfile("bert", 1, 0.0)

	opts := DefaultOptions(balancedProfile())
	engine := NewEngine(opts, NewRefinedRanker([]*GuestProfile{anna, bert}, face.EuclideanDistance), nil)

	photo := photoWith("p.jpg", detection(0, 0.5))
	d := engine.DecideRefined(photo, photo.Detections[0])

	if d.Outcome.Accepted() {
		t.Fatalf("outcome = %s for guest %s, want rejected", d.Outcome, d.Guest.Key)
	}
	if d.Guest.Key != "anna" {
		t.Errorf("best guest = %s, want anna (bert has no refined vector)", d.Guest.Key)
	}
}

func TestDecideRefined(t *testing.T) {
	anna := testProfile("anna", 0, 5.0)
	anna.Refined = []float32{0.0}
	bert := testProfile("bert", 1, 3.0)

	opts := DefaultOptions(balancedProfile())
	engine := NewEngine(opts, NewRefinedRanker([]*GuestProfile{anna, bert}, face.EuclideanDistance), nil)

	tests := []struct {
		name string
		emb  float32
		want Outcome
	}{
		{"under refined tolerance", 0.5, OutcomeAccepted},
		{"over refined tolerance", 0.7, OutcomeRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			photo := photoWith("p.jpg", detection(0, tt.emb))
			d := engine.DecideRefined(photo, photo.Detections[0])
			if d.Outcome != tt.want {
				t.Errorf("outcome = %s, want %s", d.Outcome, tt.want)
			}
		})
	}
}
