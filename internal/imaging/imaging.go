// Package imaging provides image decoding, sizing and hashing helpers shared
// by the extraction pipeline and the validate command.
package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// File intake failures callers count separately in the report.
var (
	ErrEmptyFile     = errors.New("empty file")
	ErrFileTooLarge  = errors.New("file exceeds size limit")
	ErrImageTooSmall = errors.New("image dimensions too small")
)

// LoadLimits bounds what LoadImage accepts.
type LoadLimits struct {
	MaxFileBytes int64 // 0 disables the size check
	MinDimension int   // 0 disables the dimension check
}

// LoadImage reads an image file and verifies it is usable: non-empty, under
// the size limit, decodable, and at least MinDimension pixels on each side.
// The raw bytes and decoded dimensions are returned.
func LoadImage(path string, limits LoadLimits) ([]byte, int, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil, 0, 0, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	if limits.MaxFileBytes > 0 && info.Size() > limits.MaxFileBytes {
		return nil, 0, 0, fmt.Errorf("%s (%d bytes): %w", path, info.Size(), ErrFileTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read %s: %w", path, err)
	}

	width, height, err := Dims(data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if limits.MinDimension > 0 && (width < limits.MinDimension || height < limits.MinDimension) {
		return nil, 0, 0, fmt.Errorf("%s (%dx%d): %w", path, width, height, ErrImageTooSmall)
	}

	return data, width, height, nil
}

// Dims decodes only the image header and returns width and height.
func Dims(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// DetectMIME sniffs the image format from magic bytes.
func DetectMIME(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}

// ToJPEG returns JPEG bytes for any supported image format. JPEG input is
// passed through untouched so the dlib recognizer sees the original bits.
func ToJPEG(data []byte) ([]byte, error) {
	if DetectMIME(data) == "image/jpeg" {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Resize scales an image down to fit within maxSize on its longer side,
// keeping aspect ratio. Images already small enough are returned as-is.
// Returns JPEG-encoded bytes.
func Resize(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxSize && height <= maxSize {
		return ToJPEG(data)
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

// Crop cuts the given rectangle out of the image, clamped to its bounds.
// Returns JPEG-encoded bytes.
func Crop(data []byte, x0, y0, x1, y1 int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	rect := image.Rect(x0, y0, x1, y1).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, errors.New("crop rectangle outside image bounds")
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

// ContentHash returns the hex sha256 of the raw file bytes. Used as the
// cache key so renamed copies of the same photo share cached extractions.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
