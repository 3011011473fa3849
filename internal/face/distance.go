package face

import (
	"fmt"
	"math"
)

// DistanceFunc compares two embeddings. Symmetric, non-negative, lower
// means more similar.
type DistanceFunc func(a, b []float32) float64

// EuclideanDistance computes the L2 distance between two vectors. This is
// the metric dlib face descriptors are calibrated for: the same person is
// usually under 0.6 apart. Mismatched input yields +Inf.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineDistance computes one minus the cosine similarity, ranging from 0
// (same direction) to 2 (opposite). This is the metric arcface-style
// embeddings are calibrated for. Mismatched or zero-length input yields 2,
// the maximum.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	// A zero vector has no direction to compare.
	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Rounding can push the ratio just past +/-1; clamp before subtracting.
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return 1 - similarity
}

// MetricByName resolves a metric name from a profile to its function.
func MetricByName(name string) (DistanceFunc, error) {
	switch name {
	case "euclidean":
		return EuclideanDistance, nil
	case "cosine":
		return CosineDistance, nil
	default:
		return nil, fmt.Errorf("unknown distance metric: %s (supported: euclidean, cosine)", name)
	}
}
