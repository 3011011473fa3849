//go:build !cgo

package face

import (
	"context"
	"fmt"
)

// DlibProvider is unavailable without cgo: go-face links against the dlib
// C++ library. This stub keeps the package compiling with CGO_ENABLED=0;
// selecting the dlib provider then fails at construction.
type DlibProvider struct{}

// NewDlibProvider always fails in builds without cgo.
func NewDlibProvider(modelsDir string) (*DlibProvider, error) {
	return nil, fmt.Errorf("dlib provider requires a cgo build (go-face links against dlib); rebuild with CGO_ENABLED=1 or use the sidecar provider")
}

func (p *DlibProvider) Name() string       { return "dlib" }
func (p *DlibProvider) Model() string      { return "dlib-resnet-v1" }
func (p *DlibProvider) Dim() int           { return 128 }
func (p *DlibProvider) MetricName() string { return "euclidean" }

func (p *DlibProvider) Extract(ctx context.Context, image []byte, fidelity Fidelity) ([]Detection, error) {
	return nil, fmt.Errorf("dlib provider requires a cgo build")
}

func (p *DlibProvider) Close() error { return nil }
