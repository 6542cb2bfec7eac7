package vectorstore

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/philippgille/chromem-go"
)

// chromemIndex keeps vectors in an in-memory chromem-go collection.
//
// chromem ranks by cosine similarity of normalized vectors; for unit vectors
// the Euclidean distance is sqrt(2 - 2*cos), so the ordering matches the flat
// backend when callers store unit vectors.
type chromemIndex struct {
	dim        int
	db         *chromem.DB
	collection *chromem.Collection
}

func newChromemIndex(dim int) (*chromemIndex, error) {
	db := chromem.NewDB()
	// Vectors are always supplied, so the embedding func must never run.
	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("chromem index: embeddings must be precomputed")
	}
	collection, err := db.CreateCollection("chunks", nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("creating chromem collection: %w", err)
	}
	return &chromemIndex{dim: dim, db: db, collection: collection}, nil
}

func (c *chromemIndex) Add(ctx context.Context, ids []int, vectors [][]float32) error {
	docs := make([]chromem.Document, len(ids))
	for i, id := range ids {
		// chromem normalizes in place, so hand it a copy.
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(id),
			Embedding: vec,
			Content:   strconv.Itoa(id),
		}
	}
	if err := c.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding chromem documents: %w", err)
	}
	return nil
}

func (c *chromemIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	n := c.collection.Count()
	if n == 0 {
		return nil, nil
	}
	// Fetch everything so equal-distance ties can be re-ranked by id.
	q := make([]float32, len(query))
	copy(q, query)
	results, err := c.collection.QueryEmbedding(ctx, q, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem collection: %w", err)
	}

	hits := make([]Neighbor, 0, len(results))
	for _, r := range results {
		id, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("chromem returned foreign id %q: %w", r.ID, err)
		}
		hits = append(hits, Neighbor{ID: id, Distance: similarityToL2(r.Similarity)})
	}
	return rank(hits, k), nil
}

func (c *chromemIndex) Len() int { return c.collection.Count() }

func similarityToL2(sim float32) float32 {
	d := 2 - 2*float64(sim)
	if d < 0 {
		d = 0
	}
	return float32(math.Sqrt(d))
}
