package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/imaging"
)

const sidecarDim = 512

// SidecarProvider talks to an embedding sidecar over HTTP. The sidecar
// exposes POST /embed/face taking a multipart image plus model and det_size
// fields; fidelity maps to the detector input size.
type SidecarProvider struct {
	baseURL        string
	model          string
	client         *http.Client
	fastDetSize    int
	preciseDetSize int
}

// NewSidecarProvider creates a client for the embedding sidecar.
func NewSidecarProvider(baseURL, model string, fastDetSize, preciseDetSize int) *SidecarProvider {
	return &SidecarProvider{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		model:          model,
		client:         &http.Client{Timeout: 2 * time.Minute},
		fastDetSize:    fastDetSize,
		preciseDetSize: preciseDetSize,
	}
}

func (p *SidecarProvider) Name() string       { return "sidecar" }
func (p *SidecarProvider) Model() string      { return p.model }
func (p *SidecarProvider) Dim() int           { return sidecarDim }
func (p *SidecarProvider) MetricName() string { return "cosine" }

// faceDetection represents a single detected face in the sidecar response.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint.
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Extract posts the image to the sidecar. The fast fidelity tries the small
// detector size first and escalates to the large one when nothing is found;
// the precise fidelity goes straight to the large size.
func (p *SidecarProvider) Extract(ctx context.Context, image []byte, fidelity Fidelity) ([]Detection, error) {
	dets, strategy, err := p.ladder(fidelity).Extract(ctx, image)
	if err != nil {
		return nil, err
	}
	if len(dets) > 0 {
		log.WithFields(log.Fields{"strategy": strategy, "faces": len(dets)}).
			Debug("sidecar extraction")
	}
	return dets, nil
}

func (p *SidecarProvider) ladder(fidelity Fidelity) Ladder {
	precise := Strategy{
		Name: fmt.Sprintf("det-%d", p.preciseDetSize),
		Cost: CostExpensive,
		Run:  p.detRung(p.preciseDetSize),
	}
	if fidelity == FidelityPrecise {
		return Ladder{precise}
	}
	return Ladder{
		{Name: fmt.Sprintf("det-%d", p.fastDetSize), Cost: CostCheap, Run: p.detRung(p.fastDetSize)},
		precise,
	}
}

func (p *SidecarProvider) detRung(detSize int) func(ctx context.Context, image []byte) ([]Detection, error) {
	return func(ctx context.Context, image []byte) ([]Detection, error) {
		body, err := p.postMultipartImage(ctx, "/embed/face", image, detSize)
		if err != nil {
			return nil, err
		}

		var faceResp faceResponse
		if err := json.Unmarshal(body, &faceResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}

		dets := make([]Detection, 0, len(faceResp.Faces))
		for _, f := range faceResp.Faces {
			det := Detection{
				Index:     f.FaceIndex,
				Embedding: f.Embedding,
				Score:     f.DetScore,
			}
			if len(f.BBox) == 4 {
				det.Box = Box{X1: f.BBox[0], Y1: f.BBox[1], X2: f.BBox[2], Y2: f.BBox[3]}
			}
			dets = append(dets, det)
		}
		return dets, nil
	}
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint. The image part carries an explicit
// Content-Type based on magic byte detection.
func (p *SidecarProvider) postMultipartImage(ctx context.Context, endpoint string, imageData []byte, detSize int) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", imaging.DetectMIME(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.WriteField("model", p.model); err != nil {
		return nil, fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.WriteField("det_size", strconv.Itoa(detSize)); err != nil {
		return nil, fmt.Errorf("failed to write det_size field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sidecar error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Close is a no-op; the sidecar owns its own lifecycle.
func (p *SidecarProvider) Close() error {
	return nil
}
