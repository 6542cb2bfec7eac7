package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/embeddings"
	"github.com/fyrsmithlabs/docqa/internal/generator"
	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/operations"
	"github.com/fyrsmithlabs/docqa/internal/qa"
	"github.com/fyrsmithlabs/docqa/internal/vectorstore"
)

// ExtractionFailurePrefix marks a page whose text could not be extracted.
const ExtractionFailurePrefix = "Error processing"

// Embedder is the shared document encoder.
type Embedder interface {
	Embed(ctx context.Context, pages map[int]string, lang language.Tag) (*embeddings.Result, error)
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
}

// Config configures a Manager.
type Config struct {
	Embedder  Embedder
	Generator generator.Generator
	Detector  language.Detector
	// Operations tracks ingestion. Defaults to a registry that publishes nowhere.
	Operations *operations.Registry
	// Backend is the vector index backend of every session store.
	Backend     string
	TopK        int
	IdleTTL     time.Duration
	MaxSessions int
	Logger      *logging.Logger
	Tracer      trace.Tracer
}

// Manager owns all live sessions.
type Manager struct {
	cfg    Config
	logger *logging.Logger
	tracer trace.Tracer

	mu       sync.Mutex
	sessions map[string]*Session

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// NewManager creates a Manager and starts the idle-session janitor when
// cfg.IdleTTL is positive.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("session: embedder is required")
	}
	if cfg.Generator == nil {
		cfg.Generator = generator.None{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/fyrsmithlabs/docqa/internal/session")
	}
	if cfg.Operations == nil {
		cfg.Operations = operations.NewRegistry(operations.Config{Logger: cfg.Logger})
	}
	if cfg.TopK <= 0 {
		cfg.TopK = qa.DefaultTopK
	}

	m := &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.Named("session"),
		tracer:   cfg.Tracer,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	if cfg.IdleTTL > 0 {
		go m.janitor(janitorInterval(cfg.IdleTTL))
	} else {
		close(m.done)
	}
	return m, nil
}

// minJanitorInterval keeps time.NewTicker away from non-positive periods.
const minJanitorInterval = 10 * time.Millisecond

func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	switch {
	case interval > time.Minute:
		interval = time.Minute
	case interval < minJanitorInterval:
		interval = minJanitorInterval
	}
	return interval
}

// Create starts a session for documents in input. translation may be
// language.None.
func (m *Manager) Create(ctx context.Context, input, translation language.Tag) (*Info, error) {
	if !input.Valid() {
		return nil, fmt.Errorf("%w: input language is required", ErrInvalidLanguage)
	}
	if translation != language.None && !translation.Valid() {
		return nil, fmt.Errorf("%w: translation language", ErrInvalidLanguage)
	}

	store, err := vectorstore.NewDocumentStore(vectorstore.StoreConfig{
		Backend: m.cfg.Backend,
		Logger:  m.cfg.Logger,
		Tracer:  m.tracer,
	})
	if err != nil {
		return nil, err
	}
	resolver, err := qa.NewResolver(qa.Config{
		Encoder:  m.cfg.Embedder,
		Searcher: store,
		Detector: m.cfg.Detector,
		TopK:     m.cfg.TopK,
		Logger:   m.cfg.Logger,
		Tracer:   m.tracer,
	})
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := &Session{
		ID:          uuid.New().String(),
		CreatedAt:   now,
		store:       store,
		resolver:    resolver,
		input:       input,
		translation: translation,
		lastActive:  now,
	}

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, m.cfg.MaxSessions)
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info(logging.WithSessionID(ctx, s.ID), "session created",
		zap.Stringer("input_language", input),
		zap.Stringer("translation_language", translation),
	)
	return s.info(), nil
}

// Get returns a view of a session.
func (m *Manager) Get(id string) (*Info, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.info(), nil
}

// List returns all live sessions ordered by creation time.
func (m *Manager) List() []*Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]*Info, len(sessions))
	for i, s := range sessions {
		infos[i] = s.info()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// End discards a session and its store.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.store.Reset()
	m.logger.Info(logging.WithSessionID(ctx, id), "session ended")
	return nil
}

// Reset empties the session's store and keeps the session.
func (m *Manager) Reset(ctx context.Context, id string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	s.store.Reset()
	s.touch(m.now())
	m.logger.Info(logging.WithSessionID(ctx, id), "session reset")
	return nil
}

// IngestRequest is a document to add to a session.
type IngestRequest struct {
	// Language overrides and replaces the session input language when set.
	Language language.Tag   `json:"language"`
	Pages    map[int]string `json:"pages"`
}

// IngestReport summarizes one ingestion.
type IngestReport struct {
	OperationID   string       `json:"operation_id"`
	Language      language.Tag `json:"language"`
	Pages         int          `json:"pages"`
	SkippedPages  []int        `json:"skipped_pages,omitempty"`
	Chunks        int          `json:"chunks"`
	FailedBatches int          `json:"failed_batches"`
	TotalChunks   int          `json:"total_chunks"`
}

// Ingest embeds a document in the session's input language (or the request
// language, which then becomes the input language) and adds it to the store.
func (m *Manager) Ingest(ctx context.Context, id string, req IngestRequest) (*IngestReport, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if req.Language != language.None && !req.Language.Valid() {
		return nil, fmt.Errorf("%w: document language", ErrInvalidLanguage)
	}

	lang := req.Language
	if lang == language.None {
		lang, _ = s.languages()
	}
	report, err := m.ingest(ctx, s, "ingest", lang, req.Pages)
	if err != nil {
		return nil, err
	}
	if req.Language != language.None {
		s.mu.Lock()
		s.input = lang
		s.mu.Unlock()
	}
	return report, nil
}

// AddTranslation embeds translated pages tagged with lang and records lang
// as the session's translation language.
func (m *Manager) AddTranslation(ctx context.Context, id string, lang language.Tag, pages map[int]string) (*IngestReport, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if !lang.Valid() {
		return nil, fmt.Errorf("%w: translation language is required", ErrInvalidLanguage)
	}
	report, err := m.ingest(ctx, s, "translation", lang, pages)
	if err != nil {
		return nil, err
	}
	// Only indexed languages widen the allowed question set.
	s.mu.Lock()
	s.translation = lang
	s.mu.Unlock()
	return report, nil
}

func (m *Manager) ingest(ctx context.Context, s *Session, kind string, lang language.Tag, pages map[int]string) (report *IngestReport, err error) {
	ctx = logging.WithSessionID(ctx, s.ID)
	ctx, span := m.tracer.Start(ctx, "Session.Ingest", trace.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("language", lang.String()),
		attribute.Int("pages", len(pages)),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	s.touch(m.now())

	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	for n := range pages {
		if n < 1 {
			return nil, fmt.Errorf("%w: page %d", ErrInvalidPage, n)
		}
	}
	usable, skipped := filterExtractionFailures(pages)

	ops := m.cfg.Operations
	opID := ops.Create(ctx, s.ID, kind, map[string]any{"language": lang, "pages": len(pages)})
	ctx = logging.WithOperationID(ctx, opID)
	m.publish(ctx, ops.Started(ctx, opID))

	if len(usable) == 0 {
		err = fmt.Errorf("%w: %d pages", ErrExtractionFailed, len(pages))
		m.publish(ctx, ops.Fail(ctx, opID, err))
		return nil, err
	}
	if len(skipped) > 0 {
		m.logger.Warn(ctx, "skipping pages that failed extraction", zap.Ints("pages", skipped))
	}

	res, err := m.cfg.Embedder.Embed(ctx, usable, lang)
	if err != nil {
		m.publish(ctx, ops.Fail(ctx, opID, err))
		return nil, fmt.Errorf("embedding document: %w", err)
	}
	m.publish(ctx, ops.Progress(ctx, opID, 50, fmt.Sprintf("embedded %d chunks", res.ChunkCount())))

	if err = s.store.Add(ctx, res.Pages); err != nil {
		m.publish(ctx, ops.Fail(ctx, opID, err))
		return nil, fmt.Errorf("indexing document: %w", err)
	}

	report = &IngestReport{
		OperationID:   opID,
		Language:      lang,
		Pages:         len(usable),
		SkippedPages:  skipped,
		Chunks:        res.ChunkCount(),
		FailedBatches: len(res.Failed()),
		TotalChunks:   s.store.Len(),
	}
	m.publish(ctx, ops.Complete(ctx, opID, report))

	span.SetAttributes(attribute.Int("chunks", report.Chunks))
	m.logger.Info(ctx, "document ingested",
		zap.String("kind", kind),
		zap.Stringer("language", lang),
		zap.Int("pages", report.Pages),
		zap.Int("chunks", report.Chunks),
		zap.Int("failed_batches", report.FailedBatches),
	)
	return report, nil
}

// publish logs event publication failures; ingestion does not depend on them.
func (m *Manager) publish(ctx context.Context, err error) {
	if err != nil {
		m.logger.Debug(ctx, "operation event not delivered", zap.Error(err))
	}
}

func filterExtractionFailures(pages map[int]string) (map[int]string, []int) {
	usable := make(map[int]string, len(pages))
	var skipped []int
	for p, text := range pages {
		if strings.HasPrefix(strings.TrimSpace(text), ExtractionFailurePrefix) {
			skipped = append(skipped, p)
			continue
		}
		usable[p] = text
	}
	sort.Ints(skipped)
	return usable, skipped
}

// Context retrieves the context bundle for question.
func (m *Manager) Context(ctx context.Context, id, question string) (*qa.ContextBundle, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	s.touch(m.now())
	input, translation := s.languages()
	return s.resolver.AnswerContext(logging.WithSessionID(ctx, id), question, input, translation)
}

// Ask answers question from the session's documents. Retrieval and
// generation problems become localized answers; only lookup, validation and
// retrieval errors are returned.
func (m *Manager) Ask(ctx context.Context, id, question string) (*Answer, error) {
	ctx, span := m.tracer.Start(ctx, "Session.Ask")
	defer span.End()

	bundle, err := m.Context(ctx, id, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	ctx = logging.WithSessionID(ctx, id)
	qLang := bundle.QuestionLanguage

	answer := &Answer{
		QuestionLanguage:    qLang,
		PredominantLanguage: bundle.PredominantLanguage,
		Sources:             bundle.Sources,
	}
	defer func() { span.SetAttributes(attribute.String("status", string(answer.Status))) }()

	if bundle.Insufficient() {
		answer.Status = StatusNoResults
		answer.Text = language.Message(qLang, language.NoResults)
		return answer, nil
	}

	text, err := m.cfg.Generator.Generate(ctx, generator.Request{
		Question:            question,
		Context:             bundle.Context,
		QuestionLanguage:    qLang,
		PredominantLanguage: bundle.PredominantLanguage,
	})
	switch {
	case errors.Is(err, generator.ErrDisabled):
		answer.Status = StatusContextOnly
		answer.Text = bundle.Context
	case err != nil:
		m.logger.Error(ctx, "answer generation failed", zap.Error(err))
		answer.Status = StatusError
		answer.Text = language.Message(qLang, language.GeneralError, err.Error())
	case strings.TrimSpace(text) == "":
		answer.Status = StatusNoAnswer
		answer.Text = language.Message(qLang, language.NoAnswer)
	default:
		answer.Status = StatusAnswered
		answer.Text = strings.TrimSpace(text)
	}
	return answer, nil
}

// Operation returns the status of an ingestion operation. Operations outlive
// their session until the registry's retention elapses.
func (m *Manager) Operation(opID string) (operations.Operation, error) {
	return m.cfg.Operations.Get(opID)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the janitor and ends every session.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.done

		m.mu.Lock()
		sessions := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()
		for _, s := range sessions {
			s.store.Reset()
		}
	})
}

func (m *Manager) lookup(id string) (*Session, error) {
	if logging.ValidateID(id, "session id") != nil {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (m *Manager) janitor(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.expireIdle()
		}
	}
}

func (m *Manager) expireIdle() {
	now := m.now()
	var expired []string

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince(now) > m.cfg.IdleTTL {
			expired = append(expired, id)
			delete(m.sessions, id)
			s.store.Reset()
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.logger.Info(logging.WithSessionID(context.Background(), id), "idle session expired",
			zap.Duration("idle_ttl", m.cfg.IdleTTL))
	}
}
