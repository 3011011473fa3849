// Package face defines the embedding provider contract: turning an image
// into face detections (embedding vector plus bounding box) at a chosen
// fidelity, and the distance metrics used to compare the vectors.
package face

import (
	"context"
	"fmt"

	"github.com/guestlens/guestlens/internal/config"
)

// Fidelity selects the speed/quality tradeoff of an extraction.
type Fidelity string

const (
	// FidelityFast walks the full detection ladder starting with the
	// cheapest detector. Good enough for the bulk sweep.
	FidelityFast Fidelity = "fast"

	// FidelityPrecise skips the cheap rungs and runs only the most
	// accurate detector. Used for selfies, rechecks and refinement.
	FidelityPrecise Fidelity = "precise"
)

// Box is a face bounding box in pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the box width in pixels.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Detection is one face found in an image.
type Detection struct {
	Index     int       // position in the provider's detection order
	Embedding []float32 // face embedding vector
	Box       Box       // bounding box in pixel coordinates
	Score     float64   // detector confidence, 0 when the backend has none
}

// Provider extracts face embeddings from images. An image without faces
// yields an empty slice and no error; errors mean the image could not be
// processed at all (decode failure, model failure, transport failure).
type Provider interface {
	// Name identifies the backend ("dlib", "sidecar").
	Name() string
	// Model identifies the embedding model, used in cache keys.
	Model() string
	// Dim is the embedding dimensionality.
	Dim() int
	// MetricName is the distance metric these embeddings are meant for.
	MetricName() string
	// Extract returns all faces found in the image at the given fidelity.
	Extract(ctx context.Context, image []byte, fidelity Fidelity) ([]Detection, error)
	// Close releases backend resources.
	Close() error
}

// New builds the provider selected in the configuration.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.Provider.Name {
	case "dlib":
		return NewDlibProvider(cfg.Dlib.ModelsDir)
	case "sidecar":
		return NewSidecarProvider(cfg.Sidecar.URL, cfg.Sidecar.Model, cfg.Sidecar.FastDetSize, cfg.Sidecar.PreciseDetSize), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: dlib, sidecar)", cfg.Provider.Name)
	}
}
