package match

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/event"
	"github.com/guestlens/guestlens/internal/face"
)

// ErrNoProfiles is returned when no guest yields a usable selfie. Matching
// is impossible, so the run must abort.
var ErrNoProfiles = errors.New("no usable guest profiles")

// BuildProfiles extracts one embedding per selfie at the precise fidelity
// and assembles each guest's gallery. Selfies without a detectable face are
// logged and skipped; a guest with zero usable selfies is excluded from
// matching and reported in skipped. Zero profiles overall is fatal.
func BuildProfiles(ctx context.Context, extractor Extractor, guests []event.Guest) (profiles []*GuestProfile, skipped []string, err error) {
	for i, guest := range guests {
		profile := &GuestProfile{Key: guest.Key, Order: i}

		for _, selfie := range guest.Selfies {
			ext, err := extractor.ExtractFile(ctx, selfie, face.FidelityPrecise)
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				log.WithFields(log.Fields{"guest": guest.Key, "selfie": selfie}).
					Warnf("selfie unusable: %v", err)
				continue
			}
			if len(ext.Detections) == 0 {
				log.WithFields(log.Fields{"guest": guest.Key, "selfie": selfie}).
					Warn("no face found in selfie, skipping")
				continue
			}
			// The first face is the selfie subject. Providers report
			// detections in a stable order, keeping this deterministic.
			profile.Embeddings = append(profile.Embeddings, ext.Detections[0].Embedding)
		}

		if len(profile.Embeddings) == 0 {
			log.WithField("guest", guest.Key).Warn("guest has no usable selfies, excluded from matching")
			skipped = append(skipped, guest.Key)
			continue
		}

		profile.Centroid = centroid(profile.Embeddings)
		profiles = append(profiles, profile)
	}

	if len(profiles) == 0 {
		return nil, skipped, fmt.Errorf("%w (guests: %d)", ErrNoProfiles, len(guests))
	}

	// Re-number so tie-break order matches the surviving guest list.
	sort.SliceStable(profiles, func(i, j int) bool { return profiles[i].Order < profiles[j].Order })
	for i, p := range profiles {
		p.Order = i
	}

	return profiles, skipped, nil
}

// centroid computes the element-wise mean of a set of equal-length vectors.
func centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sums := make([]float64, dim)
	for _, v := range vectors {
		for i := range v {
			sums[i] += float64(v[i])
		}
	}
	mean := make([]float32, dim)
	for i := range sums {
		mean[i] = float32(sums[i] / float64(len(vectors)))
	}
	return mean
}

// elementwiseMedian computes the per-dimension median of a set of
// equal-length vectors. Unlike the mean it is robust to the occasional
// mis-detection among the samples.
func elementwiseMedian(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	median := make([]float32, dim)
	column := make([]float32, len(vectors))
	for i := range dim {
		for j, v := range vectors {
			column[j] = v[i]
		}
		sort.Slice(column, func(a, b int) bool { return column[a] < column[b] })
		n := len(column)
		if n%2 == 0 {
			median[i] = (column[n/2-1] + column[n/2]) / 2
		} else {
			median[i] = column[n/2]
		}
	}
	return median
}
