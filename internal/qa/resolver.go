// Package qa turns a question into the retrieved context used to answer it.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/vectorstore"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// ContextSeparator joins retrieved chunk texts.
const ContextSeparator = "\n\n"

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Encoder embeds a question into the document vector space.
type Encoder interface {
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher is a nearest-neighbour lookup over one session's chunks.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]vectorstore.Entry, error)
}

// ContextBundle is the retrieved context for one question.
type ContextBundle struct {
	Question            string              `json:"question"`
	Context             string              `json:"context"`
	QuestionLanguage    language.Tag        `json:"question_language"`
	PredominantLanguage language.Tag        `json:"predominant_language"`
	Sources             []vectorstore.Entry `json:"sources"`
}

// Insufficient reports whether retrieval found nothing to answer from.
func (b *ContextBundle) Insufficient() bool {
	return len(b.Sources) == 0
}

// Config configures a Resolver.
type Config struct {
	Encoder  Encoder
	Searcher Searcher
	// Detector defaults to English for every question when nil.
	Detector language.Detector
	TopK     int
	Logger   *logging.Logger
	Tracer   trace.Tracer
}

// Resolver builds context bundles for questions against one store.
// It never calls an answer generator.
type Resolver struct {
	encoder  Encoder
	searcher Searcher
	detector language.Detector
	topK     int
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Encoder == nil {
		return nil, errors.New("qa: encoder is required")
	}
	if cfg.Searcher == nil {
		return nil, errors.New("qa: searcher is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/fyrsmithlabs/docqa/internal/qa")
	}
	return &Resolver{
		encoder:  cfg.Encoder,
		searcher: cfg.Searcher,
		detector: cfg.Detector,
		topK:     cfg.TopK,
		logger:   cfg.Logger.Named("qa"),
		tracer:   cfg.Tracer,
	}, nil
}

// QuestionLanguage detects the language of question and restricts it to
// English, input and translation. Anything else becomes English.
func (r *Resolver) QuestionLanguage(question string, input, translation language.Tag) language.Tag {
	detected := language.Resolve(r.detector, question)
	if allowed(detected, input, translation) {
		return detected
	}
	return language.English
}

func allowed(t, input, translation language.Tag) bool {
	if t == language.English {
		return true
	}
	if input != language.None && t == input {
		return true
	}
	return translation != language.None && t == translation
}

// AnswerContext retrieves the chunks most relevant to question. An empty
// store yields an Insufficient bundle, not an error.
func (r *Resolver) AnswerContext(ctx context.Context, question string, input, translation language.Tag) (*ContextBundle, error) {
	ctx, span := r.tracer.Start(ctx, "Resolver.AnswerContext")
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	qLang := r.QuestionLanguage(question, input, translation)
	span.SetAttributes(attribute.String("question.language", qLang.String()))

	vec, err := r.encoder.EncodeQuery(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("encoding question: %w", err)
	}

	hits, err := r.searcher.Search(ctx, vec, r.topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching document store: %w", err)
	}

	bundle := &ContextBundle{
		Question:            question,
		QuestionLanguage:    qLang,
		PredominantLanguage: qLang,
		Sources:             hits,
	}
	span.SetAttributes(attribute.Int("sources", len(hits)))

	if len(hits) == 0 {
		r.logger.Info(ctx, "no relevant context found", zap.Stringer("question_language", qLang))
		return bundle, nil
	}

	texts := make([]string, len(hits))
	langs := make([]language.Tag, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
		langs[i] = h.Language
	}
	bundle.Context = strings.Join(texts, ContextSeparator)
	bundle.PredominantLanguage = predominant(langs)

	r.logger.Debug(ctx, "context resolved",
		zap.Int("sources", len(hits)),
		zap.Stringer("question_language", qLang),
		zap.Stringer("predominant_language", bundle.PredominantLanguage),
	)
	return bundle, nil
}

// predominant returns the most frequent tag, preferring the earliest on ties.
func predominant(tags []language.Tag) language.Tag {
	counts := make(map[language.Tag]int, len(tags))
	best, bestCount := language.None, 0
	for _, t := range tags {
		counts[t]++
	}
	for _, t := range tags {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	return best
}
