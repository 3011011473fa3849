// Package index builds an in-memory HNSW index over every face detected in
// the photo dump, for nearest-face forensics.
package index

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"

	"github.com/guestlens/guestlens/internal/face"
)

// maxNeighbors (M) is the maximum number of neighbors per HNSW node.
const maxNeighbors = 16

// Face identifies one indexed detection.
type Face struct {
	ID        int
	Photo     string
	FaceIndex int
	Box       face.Box
	Score     float64
}

// Neighbor is a search result with its distance to the query.
type Neighbor struct {
	Face
	Distance float64
}

// FaceIndex is an HNSW graph over face embeddings. Safe for concurrent use.
type FaceIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[int]
	faces  map[int]Face
	metric face.DistanceFunc
	nextID int
}

// New creates an empty index using the named distance metric, which must
// match the metric the embeddings were ranked with.
func New(metricName string) (*FaceIndex, error) {
	metric, err := face.MetricByName(metricName)
	if err != nil {
		return nil, err
	}

	g := hnsw.NewGraph[int]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors)
	if metricName == "cosine" {
		g.Distance = hnsw.CosineDistance
	} else {
		g.Distance = hnsw.EuclideanDistance
	}

	return &FaceIndex{
		graph:  g,
		faces:  make(map[int]Face),
		metric: metric,
	}, nil
}

// Add indexes one detection of a photo. Detections without an embedding are
// ignored.
func (x *FaceIndex) Add(photo string, det face.Detection) {
	if len(det.Embedding) == 0 {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	id := x.nextID
	x.nextID++
	x.graph.Add(hnsw.MakeNode(id, det.Embedding))
	x.faces[id] = Face{
		ID:        id,
		Photo:     photo,
		FaceIndex: det.Index,
		Box:       det.Box,
		Score:     det.Score,
	}
}

// Count returns the number of indexed faces.
func (x *FaceIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.faces)
}

// Search returns the k nearest indexed faces to the query embedding, closest
// first, with exact distances computed by the configured metric.
func (x *FaceIndex) Search(query []float32, k int) ([]Neighbor, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.faces) == 0 {
		return nil, errors.New("index is empty")
	}

	nodes := x.graph.Search(query, k)
	neighbors := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		f, ok := x.faces[n.Key]
		if !ok {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			Face:     f,
			Distance: x.metric(query, n.Value),
		})
	}
	return neighbors, nil
}
