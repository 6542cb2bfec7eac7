package embeddings

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashProvider is a deterministic Provider for tests. It embeds text as
// hashed word counts, so texts sharing words land close together.
type HashProvider struct {
	Dim int
}

// NewHashProvider returns a HashProvider of dimension dim.
func NewHashProvider(dim int) *HashProvider {
	return &HashProvider{Dim: dim}
}

func (p *HashProvider) vector(text string) []float32 {
	v := make([]float32, p.Dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool { return unicode.IsPunct(r) })
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(p.Dim)]++
	}
	// Keep every vector non-zero so normalization succeeds.
	v[0] += 0.01
	return v
}

// EmbedDocuments implements Provider.
func (p *HashProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// EmbedQuery implements Provider.
func (p *HashProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return p.vector(text), nil
}

// Dimension implements Provider.
func (p *HashProvider) Dimension() int { return p.Dim }

// Close implements Provider.
func (p *HashProvider) Close() error { return nil }
