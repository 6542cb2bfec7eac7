package embeddings

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/chunker"
	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/vectorstore"
)

// DefaultBatchSize is the number of chunks sent to the provider per call.
const DefaultBatchSize = 32

// BatchResult is the outcome of encoding one batch of chunks from a page.
type BatchResult struct {
	Page   int
	Offset int
	Size   int
	// Vectors holds one unit vector per chunk when Err is nil.
	Vectors [][]float32
	Err     error
}

// Result is the output of embedding a document.
type Result struct {
	// Pages maps page number to its surviving chunks. Every input page is
	// present, possibly with an empty slice.
	Pages   map[int][]vectorstore.EmbeddedChunk
	Batches []BatchResult
}

// Failed returns the batches that could not be encoded.
func (r *Result) Failed() []BatchResult {
	var failed []BatchResult
	for _, b := range r.Batches {
		if b.Err != nil {
			failed = append(failed, b)
		}
	}
	return failed
}

// ChunkCount returns the number of embedded chunks across all pages.
func (r *Result) ChunkCount() int {
	n := 0
	for _, chunks := range r.Pages {
		n += len(chunks)
	}
	return n
}

// EmbedderConfig configures an Embedder.
type EmbedderConfig struct {
	Provider  Provider
	BatchSize int
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int
	Logger    *logging.Logger
	Metrics   *Metrics
}

// Embedder chunks pages and encodes them in fixed-size batches.
// It is safe for concurrent use when its Provider is.
type Embedder struct {
	provider  Provider
	batchSize int
	chunkSize int
	logger    *logging.Logger
	metrics   *Metrics
}

// NewEmbedder creates an Embedder around a shared provider.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidConfig)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultMaxLength
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Embedder{
		provider:  cfg.Provider,
		batchSize: cfg.BatchSize,
		chunkSize: cfg.ChunkSize,
		logger:    cfg.Logger.Named("embedder"),
		metrics:   cfg.Metrics,
	}, nil
}

// Dimension returns the provider's vector dimension.
func (e *Embedder) Dimension() int { return e.provider.Dimension() }

// Embed chunks every page and encodes the chunks batch by batch. A failed
// batch is logged and its chunks dropped; only context cancellation aborts.
func (e *Embedder) Embed(ctx context.Context, pages map[int]string, lang language.Tag) (*Result, error) {
	pageNums := make([]int, 0, len(pages))
	for p := range pages {
		pageNums = append(pageNums, p)
	}
	sort.Ints(pageNums)

	res := &Result{Pages: make(map[int][]vectorstore.EmbeddedChunk, len(pages))}
	for _, page := range pageNums {
		chunks := chunker.Chunk(pages[page], e.chunkSize)
		out := make([]vectorstore.EmbeddedChunk, 0, len(chunks))

		for off := 0; off < len(chunks); off += e.batchSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			end := min(off+e.batchSize, len(chunks))
			batch := e.encodeBatch(ctx, page, off, chunks[off:end])
			res.Batches = append(res.Batches, batch)

			if batch.Err != nil {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				e.logger.Warn(ctx, "skipping batch that failed to encode",
					zap.Int("page", page),
					zap.Int("offset", off),
					zap.Int("size", batch.Size),
					zap.Error(batch.Err),
				)
				continue
			}
			for i, text := range chunks[off:end] {
				out = append(out, vectorstore.EmbeddedChunk{
					Page:     page,
					Text:     text,
					Vector:   batch.Vectors[i],
					Language: lang,
				})
			}
		}
		res.Pages[page] = out
	}

	e.metrics.RecordDocument(ctx, lang.String(), res.ChunkCount(), len(res.Failed()))
	e.logger.Debug(ctx, "document embedded",
		zap.Int("pages", len(pageNums)),
		zap.Int("chunks", res.ChunkCount()),
		zap.Int("failed_batches", len(res.Failed())),
		zap.Stringer("language", lang),
	)
	return res, nil
}

func (e *Embedder) encodeBatch(ctx context.Context, page, offset int, texts []string) BatchResult {
	b := BatchResult{Page: page, Offset: offset, Size: len(texts)}
	vectors, err := e.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		b.Err = fmt.Errorf("encoding page %d chunks %d-%d: %w", page, offset, offset+len(texts)-1, err)
		return b
	}
	if len(vectors) != len(texts) {
		b.Err = fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingFailed, len(vectors), len(texts))
		return b
	}
	for i, v := range vectors {
		n, err := normalize(v)
		if err != nil {
			b.Err = fmt.Errorf("chunk %d on page %d: %w", offset+i, page, err)
			return b
		}
		vectors[i] = n
	}
	b.Vectors = vectors
	return b
}

// EncodeQuery encodes a question with the same model and normalization as
// document chunks.
func (e *Embedder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	return normalize(v)
}

// normalize returns v scaled to unit L2 length.
func normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("%w: vector has no usable norm", ErrEmbeddingFailed)
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}
