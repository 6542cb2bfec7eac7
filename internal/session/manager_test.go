package session

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/docqa/internal/embeddings"
	"github.com/fyrsmithlabs/docqa/internal/generator"
	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/operations"
	"github.com/fyrsmithlabs/docqa/internal/qa"
	"github.com/fyrsmithlabs/docqa/internal/vectorstore"
)

// bagOfWords embeds text as hashed word counts so texts sharing words are close.
type bagOfWords struct{ dim int }

func (b bagOfWords) vec(text string) []float32 {
	v := make([]float32, b.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!।")
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(b.dim)]++
	}
	v[0] += 0.01
	return v
}

func (b bagOfWords) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = b.vec(t)
	}
	return out, nil
}

func (b bagOfWords) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return b.vec(text), nil
}

func (b bagOfWords) Dimension() int { return b.dim }
func (b bagOfWords) Close() error   { return nil }

type generatorFunc func(ctx context.Context, req generator.Request) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req generator.Request) (string, error) {
	return f(ctx, req)
}

func detectAs(code string) language.Detector {
	return language.DetectorFunc(func(string) (string, bool) { return code, true })
}

type fixture struct {
	m      *Manager
	logger *logging.TestLogger
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	logger := logging.NewTestLogger()
	emb, err := embeddings.NewEmbedder(embeddings.EmbedderConfig{
		Provider:  bagOfWords{dim: 64},
		ChunkSize: 40,
		Logger:    logger.Logger,
	})
	require.NoError(t, err)

	cfg := Config{
		Embedder: emb,
		Detector: detectAs("en"),
		Generator: generatorFunc(func(_ context.Context, req generator.Request) (string, error) {
			return "answer in " + req.QuestionLanguage.String(), nil
		}),
		Logger: logger.Logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return &fixture{m: m, logger: logger}
}

func (f *fixture) session(t *testing.T, input, translation language.Tag) string {
	t.Helper()
	info, err := f.m.Create(context.Background(), input, translation)
	require.NoError(t, err)
	return info.ID
}

func TestManager_CreateGetEnd(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	info, err := f.m.Create(ctx, language.Hindi, language.None)
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, language.Hindi, info.InputLanguage)
	assert.Equal(t, vectorstore.BackendFlat, info.Backend)

	got, err := f.m.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)
	assert.Len(t, f.m.List(), 1)

	require.NoError(t, f.m.End(ctx, info.ID))
	_, err = f.m.Get(info.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.m.End(ctx, info.ID), ErrSessionNotFound)
}

func TestManager_CreateValidation(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxSessions = 1 })
	ctx := context.Background()

	_, err := f.m.Create(ctx, language.None, language.None)
	assert.ErrorIs(t, err, ErrInvalidLanguage)
	_, err = f.m.Create(ctx, language.Hindi, language.Tag(999))
	assert.ErrorIs(t, err, ErrInvalidLanguage)

	_, err = f.m.Create(ctx, language.Hindi, language.None)
	require.NoError(t, err)
	_, err = f.m.Create(ctx, language.Hindi, language.None)
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestManager_LookupRejectsMalformedIDs(t *testing.T) {
	f := newFixture(t, nil)
	for _, id := range []string{"", "../etc", "a b", strings.Repeat("x", 200)} {
		_, err := f.m.Get(id)
		assert.ErrorIs(t, err, ErrSessionNotFound, id)
	}
}

func TestManager_IngestAndAsk(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.session(t, language.Hindi, language.None)

	report, err := f.m.Ingest(ctx, id, IngestRequest{Pages: map[int]string{
		1: "New Delhi is the capital of India. Mumbai is a large city.",
		2: "The river Ganga flows through Varanasi.",
	}})
	require.NoError(t, err)
	assert.Equal(t, language.Hindi, report.Language)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 3, report.TotalChunks)
	assert.NotEmpty(t, report.OperationID)

	answer, err := f.m.Ask(ctx, id, "What is the capital of India?")
	require.NoError(t, err)
	assert.Equal(t, StatusAnswered, answer.Status)
	assert.Equal(t, "answer in English", answer.Text)
	assert.Equal(t, language.English, answer.QuestionLanguage)
	assert.Equal(t, language.Hindi, answer.PredominantLanguage)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "New Delhi is the capital of India.", answer.Sources[0].Text)
}

func TestManager_IngestFiltersExtractionFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.session(t, language.Marathi, language.None)

	report, err := f.m.Ingest(ctx, id, IngestRequest{Pages: map[int]string{
		1: "Error processing page 1: tesseract crashed",
		2: "Pune is in Maharashtra.",
		3: "  Error processing page 3",
	}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, report.SkippedPages)
	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, 1, report.Chunks)
	f.logger.AssertLogged(t, zapcore.WarnLevel, "skipping pages that failed extraction")
}

func TestManager_IngestAllPagesFailed(t *testing.T) {
	pub := &capturePublisher{}
	f := newFixture(t, func(c *Config) {
		c.Operations = operations.NewRegistry(operations.Config{Publisher: pub})
	})
	ctx := context.Background()
	id := f.session(t, language.Hindi, language.None)

	_, err := f.m.Ingest(ctx, id, IngestRequest{Pages: map[int]string{
		1: "Error processing page 1",
		2: "Error processing page 2",
	}})
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.True(t, pub.has(".error"))

	_, err = f.m.Ingest(ctx, id, IngestRequest{})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	info, err := f.m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Chunks)
}

func TestManager_IngestPublishesOperationEvents(t *testing.T) {
	pub := &capturePublisher{}
	f := newFixture(t, func(c *Config) {
		c.Operations = operations.NewRegistry(operations.Config{Publisher: pub})
	})
	id := f.session(t, language.English, language.None)

	_, err := f.m.Ingest(context.Background(), id, IngestRequest{Pages: map[int]string{1: "Some text."}})
	require.NoError(t, err)

	require.Len(t, pub.subjects, 3)
	assert.True(t, strings.HasPrefix(pub.subjects[0], "operations."+id+"."))
	assert.True(t, strings.HasSuffix(pub.subjects[0], ".started"))
	assert.True(t, strings.HasSuffix(pub.subjects[1], ".progress"))
	assert.True(t, strings.HasSuffix(pub.subjects[2], ".completed"))
}

func TestManager_IngestLanguageOverride(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.session(t, language.Hindi, language.None)

	report, err := f.m.Ingest(ctx, id, IngestRequest{Language: language.Bengali, Pages: map[int]string{1: "Text."}})
	require.NoError(t, err)
	assert.Equal(t, language.Bengali, report.Language)

	info, err := f.m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, language.Bengali, info.InputLanguage)

	_, err = f.m.Ingest(ctx, id, IngestRequest{Language: language.Tag(500), Pages: map[int]string{1: "x"}})
	assert.ErrorIs(t, err, ErrInvalidLanguage)
}

func TestManager_TranslationLanguageIsAllowed(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Detector = detectAs("mr") })
	ctx := context.Background()
	id := f.session(t, language.Hindi, language.None)

	_, err := f.m.Ingest(ctx, id, IngestRequest{Pages: map[int]string{1: "Delhi capital."}})
	require.NoError(t, err)

	// Marathi questions are forced to English until a Marathi translation exists.
	bundle, err := f.m.Context(ctx, id, "राजधानी?")
	require.NoError(t, err)
	assert.Equal(t, language.English, bundle.QuestionLanguage)

	report, err := f.m.AddTranslation(ctx, id, language.Marathi, map[int]string{1: "दिल्ली राजधानी आहे."})
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalChunks)

	bundle, err = f.m.Context(ctx, id, "राजधानी?")
	require.NoError(t, err)
	assert.Equal(t, language.Marathi, bundle.QuestionLanguage)

	info, err := f.m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, language.Marathi, info.TranslationLanguage)

	_, err = f.m.AddTranslation(ctx, id, language.None, map[int]string{1: "x"})
	assert.ErrorIs(t, err, ErrInvalidLanguage)
}

func TestManager_FailedTranslationKeepsLanguages(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Detector = detectAs("mr") })
	ctx := context.Background()
	id := f.session(t, language.Hindi, language.None)

	_, err := f.m.Ingest(ctx, id, IngestRequest{Pages: map[int]string{1: "Delhi capital."}})
	require.NoError(t, err)

	tests := []struct {
		name  string
		pages map[int]string
		want  error
	}{
		{name: "only failed pages", pages: map[int]string{1: "Error processing page 1"}, want: ErrExtractionFailed},
		{name: "no pages", pages: map[int]string{}, want: ErrEmptyDocument},
		{name: "page zero", pages: map[int]string{0: "दिल्ली"}, want: ErrInvalidPage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.m.AddTranslation(ctx, id, language.Marathi, tt.pages)
			require.ErrorIs(t, err, tt.want)

			info, err := f.m.Get(id)
			require.NoError(t, err)
			assert.Equal(t, language.None, info.TranslationLanguage)
			assert.Equal(t, 1, info.Chunks)

			bundle, err := f.m.Context(ctx, id, "राजधानी?")
			require.NoError(t, err)
			assert.Equal(t, language.English, bundle.QuestionLanguage)
		})
	}
}

func TestManager_FailedIngestKeepsInputLanguage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.session(t, language.Hindi, language.None)

	tests := []struct {
		name  string
		pages map[int]string
		want  error
	}{
		{name: "no pages", pages: map[int]string{}, want: ErrEmptyDocument},
		{name: "only failed pages", pages: map[int]string{1: "Error processing page 1: timeout"}, want: ErrExtractionFailed},
		{name: "page zero", pages: map[int]string{0: "Cover."}, want: ErrInvalidPage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.m.Ingest(ctx, id, IngestRequest{Language: language.Tamil, Pages: tt.pages})
			require.ErrorIs(t, err, tt.want)

			info, err := f.m.Get(id)
			require.NoError(t, err)
			assert.Equal(t, language.Hindi, info.InputLanguage)
		})
	}
}

func TestJanitorInterval(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{ttl: time.Nanosecond, want: minJanitorInterval},
		{ttl: time.Millisecond, want: minJanitorInterval},
		{ttl: 40 * time.Millisecond, want: 20 * time.Millisecond},
		{ttl: time.Minute, want: 30 * time.Second},
		{ttl: time.Hour, want: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.ttl.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, janitorInterval(tt.ttl))
		})
	}
}

func TestManager_TinyIdleTTL(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.IdleTTL = time.Nanosecond })
	id := f.session(t, language.English, language.None)

	assert.Eventually(t, func() bool {
		_, err := f.m.Get(id)
		return errors.Is(err, ErrSessionNotFound)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_AskEmptyStoreIsLocalized(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Detector = detectAs("hi") })
	id := f.session(t, language.Hindi, language.None)

	answer, err := f.m.Ask(context.Background(), id, "राजधानी क्या है?")
	require.NoError(t, err)
	assert.Equal(t, StatusNoResults, answer.Status)
	assert.Equal(t, language.Message(language.Hindi, language.NoResults), answer.Text)
	assert.Equal(t, language.Hindi, answer.QuestionLanguage)
}

func TestManager_AskGeneratorOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		gen        generator.Generator
		wantStatus Status
		wantText   string
	}{
		{
			name:       "failure becomes localized error",
			gen:        generatorFunc(func(context.Context, generator.Request) (string, error) { return "", errors.New("quota") }),
			wantStatus: StatusError,
			wantText:   "An error occurred: quota",
		},
		{
			name:       "blank answer",
			gen:        generatorFunc(func(context.Context, generator.Request) (string, error) { return "  \n", nil }),
			wantStatus: StatusNoAnswer,
			wantText:   language.Message(language.English, language.NoAnswer),
		},
		{
			name:       "disabled generation returns context",
			gen:        generator.None{},
			wantStatus: StatusContextOnly,
			wantText:   "Only one chunk here.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(c *Config) { c.Generator = tt.gen })
			ctx := context.Background()
			id := f.session(t, language.English, language.None)
			_, err := f.m.Ingest(ctx, id, IngestRequest{Pages: map[int]string{1: "Only one chunk here."}})
			require.NoError(t, err)

			answer, err := f.m.Ask(ctx, id, "chunk?")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, answer.Status)
			assert.Contains(t, answer.Text, tt.wantText)
		})
	}
}

func TestManager_AskErrors(t *testing.T) {
	f := newFixture(t, nil)
	id := f.session(t, language.English, language.None)

	_, err := f.m.Ask(context.Background(), "missing", "q")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.m.Ask(context.Background(), id, " ")
	assert.ErrorIs(t, err, qa.ErrEmptyQuestion)
}

func TestManager_Reset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.session(t, language.English, language.None)

	_, err := f.m.Ingest(ctx, id, IngestRequest{Pages: map[int]string{1: "Alpha. Beta."}})
	require.NoError(t, err)
	require.NoError(t, f.m.Reset(ctx, id))

	info, err := f.m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Chunks)
	assert.Equal(t, 0, info.Dimension)

	answer, err := f.m.Ask(ctx, id, "Alpha?")
	require.NoError(t, err)
	assert.Equal(t, StatusNoResults, answer.Status)
}

func TestManager_IdleSessionsExpire(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.IdleTTL = 40 * time.Millisecond })
	id := f.session(t, language.English, language.None)

	assert.Eventually(t, func() bool {
		_, err := f.m.Get(id)
		return errors.Is(err, ErrSessionNotFound)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.logger.FilterMessage("idle session expired").Len() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestManager_CloseEndsSessions(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.IdleTTL = time.Hour })
	f.session(t, language.English, language.None)
	f.session(t, language.Hindi, language.None)

	f.m.Close()
	f.m.Close()
	assert.Equal(t, 0, f.m.Len())
}

func TestManager_ConcurrentSessions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := f.m.Create(ctx, language.English, language.None)
			if !assert.NoError(t, err) {
				return
			}
			_, err = f.m.Ingest(ctx, info.ID, IngestRequest{Pages: map[int]string{1: "One. Two. Three."}})
			assert.NoError(t, err)
			_, err = f.m.Ask(ctx, info.ID, "Two?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, f.m.Len())
}

func TestNewManager_RequiresEmbedder(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)
}

type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *capturePublisher) Publish(subject string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *capturePublisher) has(suffix string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subjects {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
