package vectorstore

import (
	"context"
	"fmt"
	"sort"
)

// Backend names accepted by NewIndex.
const (
	BackendFlat    = "flat"
	BackendChromem = "chromem"
)

// Index stores fixed-dimension vectors under caller-assigned ids.
// Implementations are not safe for concurrent use; DocumentStore serializes access.
type Index interface {
	// Add inserts vectors in one batch. ids and vectors have equal length.
	Add(ctx context.Context, ids []int, vectors [][]float32) error
	// Search returns up to k neighbours ordered by (distance, id).
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	// Len returns the number of stored vectors.
	Len() int
}

// NewIndex creates an empty index of the given dimension.
func NewIndex(backend string, dim int) (Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, dim)
	}
	switch backend {
	case BackendFlat, "":
		return newFlatIndex(dim), nil
	case BackendChromem:
		return newChromemIndex(dim)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// rank orders neighbours by ascending distance, then ascending id, and keeps k.
func rank(hits []Neighbor, k int) []Neighbor {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
