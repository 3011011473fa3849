package match

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/constants"
	"github.com/guestlens/guestlens/internal/face"
	"github.com/guestlens/guestlens/internal/imaging"
	"github.com/guestlens/guestlens/internal/store"
)

// FileExtractor is the production Extractor: it loads and sanity-checks the
// image file, consults the embedding cache when one is configured, and falls
// through to the provider. Cache hits reproduce provider output exactly;
// fidelity is part of the cache key so ladder semantics survive caching.
type FileExtractor struct {
	Provider face.Provider
	Cache    store.Cache // nil disables caching
	Limits   imaging.LoadLimits
}

// NewFileExtractor builds an extractor with the standard intake limits.
func NewFileExtractor(provider face.Provider, cache store.Cache) *FileExtractor {
	return &FileExtractor{
		Provider: provider,
		Cache:    cache,
		Limits: imaging.LoadLimits{
			MaxFileBytes: constants.MaxPhotoFileBytes,
			MinDimension: constants.MinImageDimension,
		},
	}
}

// ExtractFile returns the faces of one image file at the given fidelity.
func (f *FileExtractor) ExtractFile(ctx context.Context, path string, fidelity face.Fidelity) (*Extraction, error) {
	data, width, height, err := imaging.LoadImage(path, f.Limits)
	if err != nil {
		return nil, err
	}

	ext := &Extraction{Path: path, Width: width, Height: height}

	var key store.ExtractionKey
	if f.Cache != nil {
		key = store.ExtractionKey{
			ContentHash: imaging.ContentHash(data),
			Model:       f.Provider.Model(),
			Fidelity:    string(fidelity),
		}
		dets, hit, err := f.Cache.GetExtraction(ctx, key)
		if err != nil {
			log.WithField("photo", path).Warnf("embedding cache read failed: %v", err)
		} else if hit {
			ext.Detections = dets
			return ext, nil
		}
	}

	dets, err := f.Provider.Extract(ctx, data, fidelity)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	ext.Detections = dets

	if f.Cache != nil {
		if err := f.Cache.PutExtraction(ctx, key, dets); err != nil {
			log.WithField("photo", path).Warnf("embedding cache write failed: %v", err)
		}
	}
	return ext, nil
}
