package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
)

// fakeProvider returns deterministic, unnormalized vectors and can be told to
// fail specific calls.
type fakeProvider struct {
	mu     sync.Mutex
	dim    int
	calls  [][]string
	failOn map[int]bool // call index -> fail
}

func (f *fakeProvider) vector(text string) []float32 {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32(len(text)%7+1) * float32(i+1)
	}
	return v
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()
	if f.failOn[call] {
		return nil, fmt.Errorf("%w: injected failure", ErrEmbeddingFailed)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.vector(text), nil
}

func (f *fakeProvider) Dimension() int { return f.dim }
func (f *fakeProvider) Close() error   { return nil }

func newTestEmbedder(t *testing.T, p Provider, batch, chunk int) (*Embedder, *logging.TestLogger) {
	t.Helper()
	logger := logging.NewTestLogger()
	e, err := NewEmbedder(EmbedderConfig{Provider: p, BatchSize: batch, ChunkSize: chunk, Logger: logger.Logger})
	require.NoError(t, err)
	return e, logger
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// sentences builds n short sentences that each become their own chunk at
// the given chunk size.
func sentences(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("Sentence number %03d.", i)
	}
	return strings.Join(parts, " ")
}

func TestEmbedder_BatchesAndNormalizes(t *testing.T) {
	p := &fakeProvider{dim: 4}
	e, _ := newTestEmbedder(t, p, 32, 20)

	res, err := e.Embed(context.Background(), map[int]string{1: sentences(70)}, language.Hindi)
	require.NoError(t, err)

	require.Len(t, p.calls, 3, "70 chunks in batches of 32")
	assert.Len(t, p.calls[0], 32)
	assert.Len(t, p.calls[1], 32)
	assert.Len(t, p.calls[2], 6)

	chunks := res.Pages[1]
	require.Len(t, chunks, 70)
	assert.Equal(t, 70, res.ChunkCount())
	assert.Empty(t, res.Failed())
	for _, c := range chunks {
		assert.InDelta(t, 1.0, norm(c.Vector), 1e-5)
		assert.Equal(t, language.Hindi, c.Language)
		assert.Equal(t, 1, c.Page)
	}
	assert.Equal(t, "Sentence number 000.", chunks[0].Text)
	assert.Equal(t, "Sentence number 069.", chunks[69].Text)
}

func TestEmbedder_FailedBatchIsSkipped(t *testing.T) {
	p := &fakeProvider{dim: 3, failOn: map[int]bool{1: true}}
	e, logger := newTestEmbedder(t, p, 2, 20)

	pages := map[int]string{
		1: sentences(2), // call 0
		2: sentences(3), // calls 1 (fails) and 2
		3: sentences(1), // call 3
	}
	res, err := e.Embed(context.Background(), pages, language.English)
	require.NoError(t, err)

	assert.Len(t, res.Pages[1], 2)
	require.Len(t, res.Pages[2], 1)
	assert.Equal(t, "Sentence number 002.", res.Pages[2][0].Text)
	assert.Len(t, res.Pages[3], 1)

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Page)
	assert.Equal(t, 0, failed[0].Offset)
	assert.Equal(t, 2, failed[0].Size)
	assert.ErrorIs(t, failed[0].Err, ErrEmbeddingFailed)
	assert.Len(t, res.Batches, 4)

	logger.AssertLogged(t, zapcore.WarnLevel, "skipping batch")
}

func TestEmbedder_AllBatchesFailYieldEmptyPage(t *testing.T) {
	p := &fakeProvider{dim: 3, failOn: map[int]bool{0: true, 1: true}}
	e, _ := newTestEmbedder(t, p, 2, 20)

	res, err := e.Embed(context.Background(), map[int]string{5: sentences(4)}, language.Marathi)
	require.NoError(t, err)
	chunks, ok := res.Pages[5]
	assert.True(t, ok)
	assert.Empty(t, chunks)
	assert.Len(t, res.Failed(), 2)
}

func TestEmbedder_PagesInAscendingOrder(t *testing.T) {
	p := &fakeProvider{dim: 2}
	e, _ := newTestEmbedder(t, p, 32, 1000)

	_, err := e.Embed(context.Background(), map[int]string{
		3: "Third page.",
		1: "First page.",
		2: "Second page.",
	}, language.English)
	require.NoError(t, err)

	require.Len(t, p.calls, 3)
	assert.Equal(t, []string{"First page."}, p.calls[0])
	assert.Equal(t, []string{"Second page."}, p.calls[1])
	assert.Equal(t, []string{"Third page."}, p.calls[2])
}

func TestEmbedder_EmptyPages(t *testing.T) {
	p := &fakeProvider{dim: 2}
	e, _ := newTestEmbedder(t, p, 32, 1000)

	res, err := e.Embed(context.Background(), map[int]string{1: "   ", 2: ""}, language.English)
	require.NoError(t, err)
	assert.Empty(t, p.calls)
	assert.Equal(t, 0, res.ChunkCount())
	assert.Contains(t, res.Pages, 1)
}

func TestEmbedder_CancelledContextAborts(t *testing.T) {
	p := &fakeProvider{dim: 2}
	e, _ := newTestEmbedder(t, p, 1, 20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, map[int]string{1: sentences(3)}, language.English)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, p.calls)
}

func TestEmbedder_ZeroVectorFailsBatch(t *testing.T) {
	e, _ := newTestEmbedder(t, &fakeProvider{dim: 0}, 32, 1000)

	res, err := e.Embed(context.Background(), map[int]string{1: "Hello."}, language.English)
	require.NoError(t, err)
	require.Len(t, res.Failed(), 1)
	assert.ErrorIs(t, res.Failed()[0].Err, ErrEmbeddingFailed)
}

func TestEmbedder_EncodeQuery(t *testing.T) {
	p := &fakeProvider{dim: 8}
	e, _ := newTestEmbedder(t, p, 32, 1000)

	v, err := e.EncodeQuery(context.Background(), "What is the capital?")
	require.NoError(t, err)
	assert.Len(t, v, 8)
	assert.InDelta(t, 1.0, norm(v), 1e-5)
	assert.Equal(t, 8, e.Dimension())
}

func TestNewEmbedder_RequiresProvider(t *testing.T) {
	_, err := NewEmbedder(EmbedderConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNormalize(t *testing.T) {
	v, err := normalize([]float32{3, 4})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, v, 1e-6)

	_, err = normalize([]float32{0, 0})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
