package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fyrsmithlabs/docqa/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "stderr stream", mutate: func(c *Config) { c.Output.Stream = "stderr" }},
		{name: "bad format", mutate: func(c *Config) { c.Format = "text" }, wantErr: "format"},
		{name: "no outputs", mutate: func(c *Config) { c.Output.Console = false }, wantErr: "at least one output"},
		{name: "bad stream", mutate: func(c *Config) { c.Output.Stream = "file" }, wantErr: "stream"},
		{name: "zero tick", mutate: func(c *Config) { c.Sampling.Tick = 0 }, wantErr: "sampling tick"},
		{name: "negative skip", mutate: func(c *Config) { c.Caller.Skip = -1 }, wantErr: "caller skip"},
		{name: "bad pattern", mutate: func(c *Config) { c.Redaction.Patterns = []string{"("} }, wantErr: "invalid redaction pattern"},
		{name: "empty field value", mutate: func(c *Config) { c.Fields["env"] = "" }, wantErr: "empty value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithRequestID(ctx, "req_2")
	ctx = WithOperationID(ctx, "op-3")

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	tl.Info(ctx, "document ingested", zap.Int("chunks", 4))

	tl.AssertLogged(t, zapcore.InfoLevel, "document ingested")
	tl.AssertField(t, "document ingested", "session.id", "sess-1")
	tl.AssertField(t, "document ingested", "request.id", "req_2")
	tl.AssertField(t, "document ingested", "operation.id", "op-3")
	tl.AssertField(t, "document ingested", "trace_id", traceID.String())
	tl.AssertField(t, "document ingested", "chunks", int64(4))
}

func TestLogger_Levels(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Trace(ctx, "t")
	tl.Debug(ctx, "d")
	tl.Warn(ctx, "w")
	tl.Error(ctx, "e")

	tl.AssertLogged(t, TraceLevel, "t")
	tl.AssertLogged(t, zapcore.DebugLevel, "d")
	tl.AssertLogged(t, zapcore.WarnLevel, "w")
	tl.AssertLogged(t, zapcore.ErrorLevel, "e")
	tl.AssertNotLogged(t, zapcore.InfoLevel, "e")

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("store").With(zap.String("backend", "flat"))
	child.Info(context.Background(), "reset")

	entries := tl.FilterMessage("reset").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "store", entries[0].LoggerName)
	assert.Equal(t, "flat", entries[0].ContextMap()["backend"])
}

func TestWithID_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { WithSessionID(context.Background(), "") })
	assert.Panics(t, func() { WithRequestID(context.Background(), "has space") })
	assert.NotPanics(t, func() { WithOperationID(context.Background(), "0b7c4c1e-2b1f-4d36-a1a4-7ad6c8f5f2a1") })
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("TRACE")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	var buf bytes.Buffer
	core := zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.DebugLevel)
	zl := zap.New(core)

	zl.Info("calling generator",
		zap.String("api_key", "sk-123"),
		zap.String("header", "Bearer abc.def"),
		zap.String("model", "gemini-1.5-flash"),
		Secret("generator_key", config.Secret("abcd")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "[REDACTED]", entry["api_key"])
	assert.Equal(t, "[REDACTED:pattern]", entry["header"])
	assert.Equal(t, "gemini-1.5-flash", entry["model"])
	assert.Equal(t, "[REDACTED:4]", entry["generator_key"])
}

func TestSampledCore_ErrorsNeverDropped(t *testing.T) {
	var buf bytes.Buffer
	base := zapcore.NewCore(newEncoder("json"), zapcore.AddSync(&buf), zapcore.DebugLevel)
	core := newSampledCore(base, SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    1,
		Thereafter: 0,
	})
	zl := zap.New(core)

	for i := 0; i < 5; i++ {
		zl.Info("repeated")
		zl.Error("failure")
	}

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	// One sampled info entry plus every error.
	assert.Equal(t, 6, lines)
}
