//go:build cgo

package face

import (
	"context"
	"fmt"

	goface "github.com/Kagami/go-face"
	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/imaging"
)

const (
	dlibDim       = 128
	dlibModelName = "dlib-resnet-v1"
)

// DlibProvider runs face detection and embedding in-process through dlib.
// It needs the three model files go-face expects in the models directory:
// shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat
// and mmod_human_face_detector.dat.
type DlibProvider struct {
	rec *goface.Recognizer
}

// NewDlibProvider loads the dlib models from the given directory.
func NewDlibProvider(modelsDir string) (*DlibProvider, error) {
	rec, err := goface.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("init dlib recognizer (models in %s): %w", modelsDir, err)
	}
	return &DlibProvider{rec: rec}, nil
}

func (p *DlibProvider) Name() string       { return "dlib" }
func (p *DlibProvider) Model() string      { return dlibModelName }
func (p *DlibProvider) Dim() int           { return dlibDim }
func (p *DlibProvider) MetricName() string { return "euclidean" }

// Extract finds faces in the image. The fast fidelity tries the HOG
// frontal detector first and escalates to the CNN detector when it finds
// nothing; the precise fidelity runs the CNN detector directly.
func (p *DlibProvider) Extract(ctx context.Context, image []byte, fidelity Fidelity) ([]Detection, error) {
	// dlib only decodes JPEG data.
	jpegData, err := imaging.ToJPEG(image)
	if err != nil {
		return nil, fmt.Errorf("prepare image for dlib: %w", err)
	}

	dets, strategy, err := p.ladder(fidelity).Extract(ctx, jpegData)
	if err != nil {
		return nil, err
	}
	if len(dets) > 0 {
		log.WithFields(log.Fields{"strategy": strategy, "faces": len(dets)}).
			Debug("dlib extraction")
	}
	return dets, nil
}

func (p *DlibProvider) ladder(fidelity Fidelity) Ladder {
	cnn := Strategy{Name: "cnn", Cost: CostExpensive, Run: p.runCNN}
	if fidelity == FidelityPrecise {
		return Ladder{cnn}
	}
	return Ladder{
		{Name: "hog", Cost: CostCheap, Run: p.runHOG},
		cnn,
	}
}

func (p *DlibProvider) runHOG(ctx context.Context, image []byte) ([]Detection, error) {
	faces, err := p.rec.Recognize(image)
	if err != nil {
		return nil, fmt.Errorf("dlib hog detection: %w", err)
	}
	return convertDlibFaces(faces), nil
}

func (p *DlibProvider) runCNN(ctx context.Context, image []byte) ([]Detection, error) {
	faces, err := p.rec.RecognizeCNN(image)
	if err != nil {
		return nil, fmt.Errorf("dlib cnn detection: %w", err)
	}
	return convertDlibFaces(faces), nil
}

// convertDlibFaces maps go-face results into the provider contract.
// go-face reports faces sorted left to right, which keeps the "first face"
// selfie rule deterministic.
func convertDlibFaces(faces []goface.Face) []Detection {
	dets := make([]Detection, 0, len(faces))
	for i, f := range faces {
		emb := make([]float32, len(f.Descriptor))
		copy(emb, f.Descriptor[:])
		dets = append(dets, Detection{
			Index:     i,
			Embedding: emb,
			Box: Box{
				X1: float64(f.Rectangle.Min.X),
				Y1: float64(f.Rectangle.Min.Y),
				X2: float64(f.Rectangle.Max.X),
				Y2: float64(f.Rectangle.Max.Y),
			},
		})
	}
	return dets
}

// Close releases the dlib recognizer.
func (p *DlibProvider) Close() error {
	p.rec.Close()
	return nil
}
