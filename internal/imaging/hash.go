package imaging

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"sort"

	"golang.org/x/image/draw"
)

// Hashes holds the perceptual hashes of one image. Two photos whose hashes
// lie within a small Hamming distance are near-duplicates (same shot,
// re-export, mild crop) even when their bytes differ.
type Hashes struct {
	PHash uint64 // DCT-based perceptual hash
	DHash uint64 // gradient-based difference hash
}

// ComputeHashes decodes an image and computes both perceptual hashes.
func ComputeHashes(data []byte) (Hashes, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Hashes{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return Hashes{
		PHash: perceptualHash(img),
		DHash: differenceHash(img),
	}, nil
}

// HammingDistance counts differing bits between two 64-bit hashes.
func HammingDistance(a, b uint64) int {
	xor := a ^ b
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // Clear lowest set bit
	}
	return distance
}

// NearDuplicate reports whether either hash pair lies within the threshold.
func NearDuplicate(a, b Hashes, threshold int) bool {
	return HammingDistance(a.DHash, b.DHash) <= threshold ||
		HammingDistance(a.PHash, b.PHash) <= threshold
}

// perceptualHash computes a 64-bit DCT hash: downscale to 32x32 grayscale,
// take the low-frequency 8x8 DCT block, threshold against its median.
func perceptualHash(img image.Image) uint64 {
	gray := lumaGrid(img, 32, 32)
	dct := dct2d(gray)

	lowFreq := make([]float64, 0, 64)
	for u := range 8 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue // DC component carries only overall brightness
			}
			lowFreq = append(lowFreq, dct[u][v])
		}
	}
	lowFreq = append(lowFreq, dct[7][7])

	median := medianOf(lowFreq)

	var hash uint64
	for i, v := range lowFreq {
		if v > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// differenceHash computes a 64-bit gradient hash: downscale to 9x8 grayscale
// and compare each pixel against its right neighbor.
func differenceHash(img image.Image) uint64 {
	gray := lumaGrid(img, 9, 8)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// lumaGrid scales the image to width x height and returns per-pixel luma.
func lumaGrid(img image.Image, width, height int) [][]float64 {
	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := scaled.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}

// dct2d computes the 2D DCT-II of a square grayscale grid.
func dct2d(gray [][]float64) [][]float64 {
	size := len(gray)

	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	dct := make([][]float64, size)
	for u := range size {
		dct[u] = make([]float64, size)
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}
	return dct
}

// medianOf returns the median of a slice without mutating it.
func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
