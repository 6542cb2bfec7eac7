// Package embeddings turns document text into unit-length vectors.
//
// A Provider wraps one embedding model (a TEI server, an OpenAI-compatible
// endpoint or a local FastEmbed model). The Embedder drives a Provider over
// chunked pages in fixed-size batches.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// DefaultModel is a multilingual sentence encoder producing 768-dim vectors.
const DefaultModel = "sentence-transformers/paraphrase-multilingual-mpnet-base-v2"

// Provider is an embedding model. Implementations are safe for concurrent use.
type Provider interface {
	// EmbedDocuments encodes texts in one call, returning one vector per text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery encodes a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is one of "tei", "openai" or "fastembed".
	Provider string
	Model    string
	// BaseURL is the server URL for tei and openai.
	BaseURL string
	APIKey  string
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
	// Dimension overrides the dimension inferred from the model name.
	Dimension int
	// RequestsPerSecond limits calls to remote providers. Zero disables limiting.
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = detectDimensionFromModel(cfg.Model)
	}

	switch cfg.Provider {
	case "tei", "":
		return NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: dim,
			Limiter:   newLimiter(cfg.RequestsPerSecond),
			Logger:    cfg.Logger,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: dim,
			Limiter:   newLimiter(cfg.RequestsPerSecond),
			Logger:    cfg.Logger,
		})
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// wait blocks until the limiter admits one call. A nil limiter admits everything.
func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}

var knownDimensions = map[string]int{
	DefaultModel: 768,
	"sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2": 384,
	"sentence-transformers/LaBSE":                                 768,
	"intfloat/multilingual-e5-small":                              384,
	"intfloat/multilingual-e5-base":                               768,
	"intfloat/multilingual-e5-large":                              1024,
	"BAAI/bge-m3":                                                 1024,
	"text-embedding-3-small":                                      1536,
	"text-embedding-3-large":                                      3072,
	"text-embedding-004":                                          768,
}

// detectDimensionFromModel returns the embedding dimension for a model name,
// guessing from size markers when the model is not known.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "small"), strings.Contains(lower, "mini"):
		return 384
	default:
		return 768
	}
}
