// Package store defines the embedding cache contract. A cache lets re-runs
// and refine passes skip the expensive extraction step: results are keyed by
// image content, so renamed copies of the same photo share entries.
package store

import (
	"context"

	"github.com/guestlens/guestlens/internal/face"
)

// ExtractionKey identifies one cached extraction. The provider model and
// fidelity are part of the key: the same image extracted by another model or
// at another ladder rung is a different result.
type ExtractionKey struct {
	ContentHash string // hex sha256 of the raw file bytes
	Model       string
	Fidelity    string
}

// Stats summarizes the cache contents.
type Stats struct {
	Extractions int // cached (image, model, fidelity) entries
	Faces       int // stored face rows across all entries
}

// Cache stores and retrieves face extractions. A miss is (nil, false, nil);
// errors are reserved for storage failures. An extraction with zero faces is
// a valid cacheable result.
type Cache interface {
	GetExtraction(ctx context.Context, key ExtractionKey) ([]face.Detection, bool, error)
	PutExtraction(ctx context.Context, key ExtractionKey, detections []face.Detection) error
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
	Close() error
}
