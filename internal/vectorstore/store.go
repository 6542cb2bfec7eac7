package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/logging"
)

const tracerName = "github.com/fyrsmithlabs/docqa/internal/vectorstore"

// StoreConfig configures a DocumentStore.
type StoreConfig struct {
	// Backend is "flat" (default) or "chromem".
	Backend string
	Logger  *logging.Logger
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// DocumentStore is the vector index of one session.
//
// Add and Reset take the write lock, Search and the accessors the read lock.
type DocumentStore struct {
	mu sync.RWMutex

	backend string
	logger  *logging.Logger
	tracer  trace.Tracer

	index Index
	dim   int
	meta  []Entry
}

// NewDocumentStore creates an empty, uninitialized store.
func NewDocumentStore(cfg StoreConfig) (*DocumentStore, error) {
	switch cfg.Backend {
	case "":
		cfg.Backend = BackendFlat
	case BackendFlat, BackendChromem:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &DocumentStore{
		backend: cfg.Backend,
		logger:  cfg.Logger.Named("vectorstore"),
		tracer:  cfg.Tracer,
	}, nil
}

// Add inserts chunks page by page in ascending page order, assigning
// sequential ids. The first vector of the first non-empty add fixes the
// dimension. On any mismatch nothing is inserted.
func (s *DocumentStore) Add(ctx context.Context, pages map[int][]EmbeddedChunk) (err error) {
	ctx, span := s.tracer.Start(ctx, "DocumentStore.Add")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			AddsTotal.WithLabelValues("error").Inc()
		}
	}()

	pageNums := make([]int, 0, len(pages))
	for p := range pages {
		pageNums = append(pageNums, p)
	}
	sort.Ints(pageNums)

	var chunks []EmbeddedChunk
	for _, p := range pageNums {
		chunks = append(chunks, pages[p]...)
	}
	span.SetAttributes(attribute.Int("pages", len(pageNums)), attribute.Int("chunks", len(chunks)))

	if len(chunks) == 0 {
		AddsTotal.WithLabelValues("noop").Inc()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = len(chunks[0].Vector)
	}
	for i, c := range chunks {
		if len(c.Vector) != dim {
			return fmt.Errorf("%w: chunk %d on page %d has %d dimensions, want %d",
				ErrDimensionMismatch, i, c.Page, len(c.Vector), dim)
		}
	}

	index := s.index
	if index == nil {
		index, err = NewIndex(s.backend, dim)
		if err != nil {
			return err
		}
	}

	base := len(s.meta)
	ids := make([]int, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = base + i
		vectors[i] = c.Vector
	}
	if err := index.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("adding to %s index: %w", s.backend, err)
	}

	for i, c := range chunks {
		s.meta = append(s.meta, Entry{ID: ids[i], Text: c.Text, Language: c.Language})
	}
	s.index = index
	s.dim = dim

	AddsTotal.WithLabelValues("success").Inc()
	ChunksAdded.Add(float64(len(chunks)))
	s.logger.Debug(ctx, "chunks added",
		zap.Int("chunks", len(chunks)),
		zap.Int("total", len(s.meta)),
		zap.Int("dimension", dim),
	)
	return nil
}

// Search returns up to k entries nearest to query. An uninitialized store or
// k <= 0 yields an empty result.
func (s *DocumentStore) Search(ctx context.Context, query []float32, k int) (results []Entry, err error) {
	ctx, span := s.tracer.Start(ctx, "DocumentStore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k), attribute.String("backend", s.backend))

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index == nil || k <= 0 {
		SearchesTotal.WithLabelValues("empty").Inc()
		return []Entry{}, nil
	}
	if len(query) != s.dim {
		err = fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(query), s.dim)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		SearchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	start := time.Now()
	hits, err := s.index.Search(ctx, query, k)
	SearchDuration.WithLabelValues(s.backend).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		SearchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("searching %s index: %w", s.backend, err)
	}

	results = make([]Entry, 0, len(hits))
	for _, h := range hits {
		if h.ID < 0 || h.ID >= len(s.meta) {
			continue
		}
		e := s.meta[h.ID]
		e.Distance = h.Distance
		results = append(results, e)
	}

	if len(results) == 0 {
		SearchesTotal.WithLabelValues("empty").Inc()
	} else {
		SearchesTotal.WithLabelValues("hit").Inc()
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// Reset discards all vectors and metadata. The next add fixes a new dimension
// and ids restart at 0.
func (s *DocumentStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = nil
	s.meta = nil
	s.dim = 0
	ResetsTotal.Inc()
}

// Len returns the number of stored chunks.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta)
}

// Dimension returns the fixed vector dimension, or 0 before the first add.
func (s *DocumentStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Backend returns the index backend name.
func (s *DocumentStore) Backend() string { return s.backend }
