package match

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/face"
)

// recheckIoUThreshold pairs a precise re-detection with the original face.
const recheckIoUThreshold = 0.3

// Sample is one near-match collected during a sweep, feeding the bootstrap
// refiner.
type Sample struct {
	Distance  float64
	Photo     string
	FaceIndex int
	Box       face.Box
}

// Engine applies the acceptance policy to ranked faces. All run-wide state
// (precise extraction cache, collected refinement samples) is owned by the
// engine instance and lives for one run.
//
// Decisions must be requested sequentially; only extraction ahead of the
// decision phase is safe to parallelize.
type Engine struct {
	opts      Options
	ranker    *Ranker
	extractor Extractor

	preciseCache map[string]*Extraction // per-photo precise re-extraction
	samples      map[string][]Sample    // refinement samples per guest key
}

// NewEngine creates a decision engine over the given ranker. The extractor
// is only consulted for rechecks and may be nil when the recheck policy is
// off.
func NewEngine(opts Options, ranker *Ranker, extractor Extractor) *Engine {
	return &Engine{
		opts:         opts,
		ranker:       ranker,
		extractor:    extractor,
		preciseCache: make(map[string]*Extraction),
		samples:      make(map[string][]Sample),
	}
}

// Ranker exposes the engine's current ranker.
func (e *Engine) Ranker() *Ranker { return e.ranker }

// SetRanker swaps the ranker for a refined pass.
func (e *Engine) SetRanker(r *Ranker) { e.ranker = r }

// Samples returns the refinement samples collected so far, keyed by guest.
func (e *Engine) Samples() map[string][]Sample { return e.samples }

// ResetSamples clears collected samples before another sweep.
func (e *Engine) ResetSamples() { e.samples = make(map[string][]Sample) }

// collectSample records a near-match for the refiner when the best distance
// falls under the loose refine cutoff.
func (e *Engine) collectSample(photo *Extraction, det face.Detection, rk Ranking) {
	if rk.Best.Guest == nil || rk.Best.Distance >= e.opts.Profile.RefineCutoff {
		return
	}
	key := rk.Best.Guest.Key
	e.samples[key] = append(e.samples[key], Sample{
		Distance:  rk.Best.Distance,
		Photo:     photo.Path,
		FaceIndex: det.Index,
		Box:       det.Box,
	})
}

// DecideFace runs the tiered policy for one detected face.
//
// Tier order: strict accept, relaxed accept, reject. A borderline accept may
// be demoted to reject by the recheck gate. Rejects close enough for a human
// look come back as candidates.
func (e *Engine) DecideFace(ctx context.Context, photo *Extraction, det face.Detection) Decision {
	rk := e.ranker.Rank(det.Embedding)
	e.collectSample(photo, det, rk)

	eff := effectiveThresholds(e.opts, len(photo.Detections), e.ranker.SingleGuest())
	best := rk.Best.Distance
	delta := rk.SecondBest.Distance - best

	d := Decision{
		Photo:      photo.Path,
		FaceIndex:  det.Index,
		Guest:      rk.Best.Guest,
		Best:       best,
		SecondBest: rk.SecondBest.Distance,
		Delta:      delta,
		Thresholds: eff,
		TopRanked:  rk.Top(e.opts.CandidateTopK),
	}

	switch {
	case best < eff.Tol && (delta >= eff.Margin || eff.SingleGuest):
		d.Outcome = OutcomeAccepted
	case best < eff.RelaxedTol && (delta >= eff.RelaxedMargin || eff.SingleGuest):
		d.Outcome = OutcomeAcceptedRelaxed
	default:
		d.Outcome = e.rejectOutcome(best)
		return d
	}

	if e.shouldRecheck(photo, d.Outcome, eff, best, delta, len(photo.Detections)) {
		d.Rechecked = true
		d.RecheckOK = e.recheck(ctx, photo, det, rk.Best.Guest, d.Outcome, eff)
		if !d.RecheckOK {
			log.WithFields(log.Fields{
				"photo": photo.Path, "face": det.Index,
				"guest": rk.Best.Guest.Key, "best": best, "delta": delta,
			}).Info("recheck failed, demoting accept to reject")
			d.Outcome = e.rejectOutcome(best)
		}
	}

	return d
}

// rejectOutcome decides between a plain reject and a candidate worth review.
func (e *Engine) rejectOutcome(best float64) Outcome {
	if best <= e.opts.MaxCandidateDistance {
		return OutcomeCandidate
	}
	return OutcomeRejected
}

// shouldRecheck applies the recheck gate. Single-guest runs have no
// competitor to confuse, and oversized images make the precise detector too
// costly; both skip the gate entirely.
func (e *Engine) shouldRecheck(photo *Extraction, tier Outcome, eff Effective, best, delta float64, faceCount int) bool {
	if e.opts.Recheck == RecheckOff || e.extractor == nil || eff.SingleGuest {
		return false
	}
	if e.opts.OversizedDimension > 0 &&
		(photo.Width >= e.opts.OversizedDimension || photo.Height >= e.opts.OversizedDimension) {
		log.WithField("photo", photo.Path).Debug("image oversized, skipping recheck")
		return false
	}
	if e.opts.Recheck == RecheckAlways {
		return true
	}

	tol, margin := eff.Tol, eff.Margin
	if tier == OutcomeAcceptedRelaxed {
		tol, margin = eff.RelaxedTol, eff.RelaxedMargin
	}
	if delta < margin+e.opts.DeltaPad {
		return true
	}
	if best > tol-e.opts.TolPad {
		return true
	}
	return e.opts.GroupRecheckFaces > 0 && faceCount >= e.opts.GroupRecheckFaces
}

// recheck re-extracts the photo at the precise fidelity, re-ranks the same
// physical face, and requires the original winner to independently clear the
// accepting tier's confirmation thresholds. Any inconclusive step (no
// precise detection, no face mapping, a different winner) fails the recheck;
// a recheck never promotes a decision.
func (e *Engine) recheck(ctx context.Context, photo *Extraction, det face.Detection, winner *GuestProfile, tier Outcome, eff Effective) bool {
	precise := e.preciseExtraction(ctx, photo.Path)
	if precise == nil || len(precise.Detections) == 0 {
		return false
	}

	match := matchDetection(precise.Detections, det)
	if match == nil {
		return false
	}

	rk := e.ranker.Rank(match.Embedding)
	if rk.Best.Guest == nil || rk.Best.Guest.Key != winner.Key {
		return false
	}

	best := rk.Best.Distance
	delta := rk.SecondBest.Distance - best

	tol, margin := eff.Tol, eff.Margin
	if tier == OutcomeAcceptedRelaxed {
		// Relaxed confirmations are tightened: most of the relaxed
		// slack must survive the precise extraction.
		tol = min(eff.RelaxedTol, eff.Tol+e.opts.TolPad*0.5)
		margin = max(eff.RelaxedMargin, eff.Margin*0.5)
	}

	ok := best < tol && delta >= margin
	log.WithFields(log.Fields{
		"photo": photo.Path, "face": det.Index, "guest": rk.Best.Guest.Key,
		"best": best, "delta": delta, "tol": tol, "margin": margin, "confirmed": ok,
	}).Debug("recheck verdict")
	return ok
}

// preciseExtraction returns the cached precise extraction of a photo,
// running it on first use. Extraction failures are cached as empty so a bad
// photo is not re-attempted for every face.
func (e *Engine) preciseExtraction(ctx context.Context, path string) *Extraction {
	if cached, ok := e.preciseCache[path]; ok {
		return cached
	}

	ext, err := e.extractor.ExtractFile(ctx, path, face.FidelityPrecise)
	if err != nil {
		log.WithField("photo", path).Warnf("precise re-extraction failed: %v", err)
		ext = &Extraction{Path: path}
	}
	e.preciseCache[path] = ext
	return ext
}

// matchDetection pairs a detection from a re-extraction with the original
// face, by bounding-box overlap first and detection index as a fallback when
// boxes are unavailable.
func matchDetection(candidates []face.Detection, orig face.Detection) *face.Detection {
	if orig.Box.Width() > 0 && orig.Box.Height() > 0 {
		bestIoU := 0.0
		var best *face.Detection
		for i := range candidates {
			if iou := face.IoU(candidates[i].Box, orig.Box); iou > bestIoU {
				bestIoU = iou
				best = &candidates[i]
			}
		}
		if best != nil && bestIoU >= recheckIoUThreshold {
			return best
		}
		return nil
	}

	for i := range candidates {
		if candidates[i].Index == orig.Index {
			return &candidates[i]
		}
	}
	return nil
}

// DecideRefined runs the simplified policy of a refined sweep: a single
// fixed tolerance, no margin requirement, no recheck. Samples are still
// collected so further passes can refine again.
func (e *Engine) DecideRefined(photo *Extraction, det face.Detection) Decision {
	rk := e.ranker.Rank(det.Embedding)
	e.collectSample(photo, det, rk)

	best := rk.Best.Distance
	d := Decision{
		Photo:      photo.Path,
		FaceIndex:  det.Index,
		Guest:      rk.Best.Guest,
		Best:       best,
		SecondBest: rk.SecondBest.Distance,
		Delta:      rk.SecondBest.Distance - best,
		Thresholds: Effective{Tol: e.opts.Profile.RefineTolerance},
		TopRanked:  rk.Top(e.opts.CandidateTopK),
	}

	if best < e.opts.Profile.RefineTolerance {
		d.Outcome = OutcomeAccepted
	} else {
		d.Outcome = OutcomeRejected
	}
	return d
}
