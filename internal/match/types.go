// Package match implements the matching and decision engine: ranking guest
// profiles against detected faces, the tiered accept/reject policy with
// adaptive thresholds and recheck, bootstrap refinement, and delivery
// recording.
package match

import (
	"context"

	"github.com/guestlens/guestlens/internal/config"
	"github.com/guestlens/guestlens/internal/constants"
	"github.com/guestlens/guestlens/internal/face"
)

// GuestProfile is one guest's face gallery: the embeddings of their selfies
// plus a mean centroid. Built once per run; the refiner may attach a Refined
// vector that later passes rank against instead.
type GuestProfile struct {
	Key         string      // selfie folder name
	DisplayName string      // optional RSVP name, falls back to Key
	Order       int         // discovery order, breaks ranking ties
	Embeddings  [][]float32 // one per usable selfie, discovery order
	Centroid    []float32   // element-wise mean of Embeddings
	Refined     []float32   // refined profile from the bootstrap pass, nil until set
}

// Name returns the display name, falling back to the folder key.
func (g *GuestProfile) Name() string {
	if g.DisplayName != "" {
		return g.DisplayName
	}
	return g.Key
}

// Gallery returns all vectors the ranker compares against for the tiered
// pass: every selfie embedding and the centroid.
func (g *GuestProfile) Gallery() [][]float32 {
	gallery := make([][]float32, 0, len(g.Embeddings)+1)
	gallery = append(gallery, g.Embeddings...)
	if g.Centroid != nil {
		gallery = append(gallery, g.Centroid)
	}
	return gallery
}

// Extraction is the result of running the embedding provider over one photo.
type Extraction struct {
	Path       string
	Detections []face.Detection
	Width      int
	Height     int
}

// Extractor turns an image file into face detections at a chosen fidelity.
// The production implementation wraps a face.Provider with file loading and
// an optional embedding cache; tests substitute a fixture.
type Extractor interface {
	ExtractFile(ctx context.Context, path string, fidelity face.Fidelity) (*Extraction, error)
}

// Outcome is the terminal state of one face decision.
type Outcome string

const (
	// OutcomeAccepted is a strict-tier accept.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeAcceptedRelaxed is a relaxed-tier accept.
	OutcomeAcceptedRelaxed Outcome = "accepted-relaxed"
	// OutcomeRejected means no tier accepted and the face is not worth review.
	OutcomeRejected Outcome = "rejected"
	// OutcomeCandidate is a reject close enough to keep for manual review.
	OutcomeCandidate Outcome = "candidate"
)

// Accepted reports whether the outcome delivers the photo.
func (o Outcome) Accepted() bool {
	return o == OutcomeAccepted || o == OutcomeAcceptedRelaxed
}

// Decision is the outcome of the engine for a single detected face, with the
// distances and thresholds that produced it, for after-the-fact audit.
type Decision struct {
	Photo      string
	FaceIndex  int
	Outcome    Outcome
	Guest      *GuestProfile // winning guest, nil when nothing ranked
	Best       float64
	SecondBest float64
	Delta      float64
	Thresholds Effective
	Rechecked  bool
	RecheckOK  bool
	TopRanked  []GuestDistance // top candidates for review logging
}

// GroupAdjust tightens thresholds for photos with many faces. Entries are
// evaluated in order and compound: a photo matching several entries gets the
// sum of their adjustments.
type GroupAdjust struct {
	MinFaces     int
	TolAdjust    float64
	MarginAdjust float64
}

// RecheckPolicy controls when borderline accepts are re-verified at the
// precise fidelity.
type RecheckPolicy string

const (
	// RecheckAuto rechecks borderline accepts and group photos.
	RecheckAuto RecheckPolicy = "auto"
	// RecheckAlways verifies every accept.
	RecheckAlways RecheckPolicy = "always"
	// RecheckOff never rechecks.
	RecheckOff RecheckPolicy = "off"
)

// Options bundles the full decision policy. Zero values are filled in by
// DefaultOptions; the thresholds themselves come from the matching profile.
type Options struct {
	Profile config.MatchProfile

	// Relaxed tier derivation: relaxed tolerance = min(RelaxedCap,
	// tolerance+RelaxedOffset), relaxed margin = max(RelaxedMarginFloor,
	// margin*0.5).
	RelaxedOffset      float64
	RelaxedCap         float64
	RelaxedMarginFloor float64

	// EffectiveRelaxedCap is the absolute ceiling after group adjustments.
	EffectiveRelaxedCap float64

	// GroupAdjusts tighten thresholds on crowded photos.
	GroupAdjusts []GroupAdjust

	// GroupRecheckFaces force-triggers a recheck on photos with at least
	// this many faces (auto policy only). 0 disables.
	GroupRecheckFaces int

	// Recheck gate.
	Recheck  RecheckPolicy
	TolPad   float64 // best within TolPad of the tolerance triggers a recheck
	DeltaPad float64 // delta within DeltaPad of the margin triggers a recheck

	// OversizedDimension skips the recheck for images at least this large
	// on either side.
	OversizedDimension int

	// Candidate recording.
	MaxCandidateDistance float64
	CandidateTopK        int

	// Bootstrap refinement.
	Passes           int // total sweeps over the photo set, >= 1
	RefineMinSamples int
	RefineTopK       int
}

// DefaultOptions returns the reference policy for a matching profile.
func DefaultOptions(profile config.MatchProfile) Options {
	if profile.MaxCandidateDistance == 0 {
		profile.MaxCandidateDistance = constants.DefaultMaxCandidateDistance
	}
	return Options{
		Profile:             profile,
		RelaxedOffset:       0.10,
		RelaxedCap:          0.78,
		RelaxedMarginFloor:  0.02,
		EffectiveRelaxedCap: 0.85,
		GroupAdjusts: []GroupAdjust{
			{MinFaces: 5, TolAdjust: -0.02, MarginAdjust: 0.03},
			{MinFaces: 8, TolAdjust: -0.03, MarginAdjust: 0.05},
		},
		GroupRecheckFaces:    5,
		Recheck:              RecheckAuto,
		TolPad:               0.05,
		DeltaPad:             0.03,
		OversizedDimension:   constants.OversizedImageDimension,
		MaxCandidateDistance: profile.MaxCandidateDistance,
		CandidateTopK:        constants.DefaultCandidateTopK,
		Passes:               2,
		RefineMinSamples:     5,
		RefineTopK:           30,
	}
}
