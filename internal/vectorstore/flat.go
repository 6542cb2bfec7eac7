package vectorstore

import (
	"context"
	"math"
)

// flatIndex is an exact brute-force L2 index over a contiguous slab.
type flatIndex struct {
	dim  int
	ids  []int
	slab []float32
}

func newFlatIndex(dim int) *flatIndex {
	return &flatIndex{dim: dim}
}

func (f *flatIndex) Add(_ context.Context, ids []int, vectors [][]float32) error {
	for _, v := range vectors {
		f.slab = append(f.slab, v...)
	}
	f.ids = append(f.ids, ids...)
	return nil
}

func (f *flatIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	hits := make([]Neighbor, 0, len(f.ids))
	for i, id := range f.ids {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := f.slab[i*f.dim : (i+1)*f.dim]
		hits = append(hits, Neighbor{ID: id, Distance: l2(query, row)})
	}
	return rank(hits, k), nil
}

func (f *flatIndex) Len() int { return len(f.ids) }

func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
