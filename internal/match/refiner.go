package match

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/face"
)

// Refiner rebuilds guest profiles from the near-matches a sweep collected.
//
// Selfies are often unrepresentative of how a guest looks at the event
// (lighting, angle, glasses). Faces that landed close to a guest during a
// sweep are better samples: the refiner re-extracts the closest ones at the
// precise fidelity and condenses them into a single refined vector. The
// element-wise median is used instead of the mean so a stray mis-detection
// among the samples cannot drag the profile off.
type Refiner struct {
	opts      Options
	extractor Extractor
}

// NewRefiner creates a refiner with the run's policy options.
func NewRefiner(opts Options, extractor Extractor) *Refiner {
	return &Refiner{opts: opts, extractor: extractor}
}

// Refine attaches a refined vector to every profile with enough collected
// samples and returns how many guests were refined. Guests below the sample
// minimum keep their selfie profile for subsequent passes.
func (r *Refiner) Refine(ctx context.Context, profiles []*GuestProfile, samples map[string][]Sample) (int, error) {
	refined := 0
	for _, profile := range profiles {
		collected := samples[profile.Key]
		if len(collected) < r.opts.RefineMinSamples {
			log.WithFields(log.Fields{"guest": profile.Key, "samples": len(collected)}).
				Debug("not enough samples to refine, keeping selfie profile")
			continue
		}

		vec, used, err := r.refineProfile(ctx, collected)
		if err != nil {
			return refined, err
		}
		if vec == nil {
			log.WithField("guest", profile.Key).Warn("refinement yielded no usable vectors")
			continue
		}

		profile.Refined = vec
		refined++
		log.WithFields(log.Fields{"guest": profile.Key, "samples": used}).
			Info("refined guest profile")
	}
	return refined, nil
}

// refineProfile takes the closest-K samples, re-extracts their faces at the
// precise fidelity, and computes the element-wise median of the vectors.
// Samples whose face cannot be mapped in the re-extraction are dropped.
func (r *Refiner) refineProfile(ctx context.Context, collected []Sample) ([]float32, int, error) {
	sorted := make([]Sample, len(collected))
	copy(sorted, collected)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })
	if r.opts.RefineTopK > 0 && len(sorted) > r.opts.RefineTopK {
		sorted = sorted[:r.opts.RefineTopK]
	}

	// One photo can contribute several samples; extract it once.
	extractions := make(map[string]*Extraction)

	var vectors [][]float32
	for _, s := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		ext, ok := extractions[s.Photo]
		if !ok {
			var err error
			ext, err = r.extractor.ExtractFile(ctx, s.Photo, face.FidelityPrecise)
			if err != nil {
				if ctx.Err() != nil {
					return nil, 0, ctx.Err()
				}
				log.WithField("photo", s.Photo).Warnf("refine re-extraction failed: %v", err)
				ext = &Extraction{Path: s.Photo}
			}
			extractions[s.Photo] = ext
		}

		det := matchDetection(ext.Detections, face.Detection{Index: s.FaceIndex, Box: s.Box})
		if det == nil {
			log.WithFields(log.Fields{"photo": s.Photo, "face": s.FaceIndex}).
				Debug("sample face not found in precise re-extraction, dropped")
			continue
		}
		vectors = append(vectors, det.Embedding)
	}

	if len(vectors) == 0 {
		return nil, 0, nil
	}
	return elementwiseMedian(vectors), len(vectors), nil
}
