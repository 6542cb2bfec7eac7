package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/docqa/internal/embeddings"

// Metrics holds encoder and pipeline instruments.
type Metrics struct {
	meter          metric.Meter
	logger         *zap.Logger
	duration       metric.Float64Histogram
	batchSize      metric.Int64Histogram
	errors         metric.Int64Counter
	skippedBatches metric.Int64Counter
	chunks         metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"docqa.embedding.generation_duration_seconds",
		metric.WithDescription("Duration of encoder calls, labeled by model and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.batchSize, err = m.meter.Int64Histogram(
		"docqa.embedding.batch_size",
		metric.WithDescription("Number of texts per encoder call"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 4, 8, 16, 32, 64, 128),
	)
	if err != nil {
		m.logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"docqa.embedding.errors_total",
		metric.WithDescription("Encoder call failures by model and operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.skippedBatches, err = m.meter.Int64Counter(
		"docqa.embedding.skipped_batches_total",
		metric.WithDescription("Chunk batches dropped from a document because encoding failed"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		m.logger.Warn("failed to create skipped batches counter", zap.Error(err))
	}

	m.chunks, err = m.meter.Int64Counter(
		"docqa.embedding.chunks_total",
		metric.WithDescription("Chunks embedded, labeled by language"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		m.logger.Warn("failed to create chunks counter", zap.Error(err))
	}
}

// RecordGeneration records one encoder call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, duration time.Duration, batchSize int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if batchSize > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batchSize), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordDocument records the outcome of embedding one document.
func (m *Metrics) RecordDocument(ctx context.Context, lang string, chunks, skippedBatches int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("language", lang))
	if m.chunks != nil && chunks > 0 {
		m.chunks.Add(ctx, int64(chunks), attrs)
	}
	if m.skippedBatches != nil && skippedBatches > 0 {
		m.skippedBatches.Add(ctx, int64(skippedBatches), attrs)
	}
}
