// Package generator produces natural-language answers from retrieved context
// using an OpenAI-compatible chat completion API.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
)

var (
	// ErrDisabled is returned by the none provider.
	ErrDisabled = errors.New("answer generation is disabled")

	// ErrGeneration indicates the model call failed.
	ErrGeneration = errors.New("answer generation failed")
)

// Request is everything the model needs to answer one question.
type Request struct {
	Question            string
	Context             string
	QuestionLanguage    language.Tag
	PredominantLanguage language.Tag
}

// Generator answers a question from context. An empty answer with a nil
// error means the model returned nothing.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a generator.
type Config struct {
	// Provider is "openai" or "none".
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	// Timeout bounds one model call. Zero means no extra bound.
	Timeout time.Duration
	Logger  *logging.Logger
}

// New creates the generator named by cfg.Provider.
func New(cfg Config) (Generator, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg)
	case "none":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

// None is a generator that never answers.
type None struct{}

// Generate implements Generator.
func (None) Generate(context.Context, Request) (string, error) {
	return "", ErrDisabled
}
