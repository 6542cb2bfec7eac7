package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/docqa/internal/embeddings"
	"github.com/fyrsmithlabs/docqa/internal/generator"
	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/operations"
	"github.com/fyrsmithlabs/docqa/internal/session"
)

type generatorFunc func(ctx context.Context, req generator.Request) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req generator.Request) (string, error) {
	return f(ctx, req)
}

func newTestServer(t *testing.T) (*Server, *logging.TestLogger) {
	t.Helper()
	logger := logging.NewTestLogger()
	emb, err := embeddings.NewEmbedder(embeddings.EmbedderConfig{
		Provider:  embeddings.NewHashProvider(64),
		ChunkSize: 40,
		Logger:    logger.Logger,
	})
	require.NoError(t, err)

	m, err := session.NewManager(session.Config{
		Embedder: emb,
		Detector: language.DetectorFunc(func(string) (string, bool) { return "en", true }),
		Generator: generatorFunc(func(_ context.Context, req generator.Request) (string, error) {
			return "Tea grows in the Assam hills.", nil
		}),
		Logger: logger.Logger,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	s, err := NewServer(&Config{Name: "docqa-test", Version: "test", Logger: logger.Logger}, m)
	require.NoError(t, err)
	return s, logger
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session manager is required")
}

func TestTools_SessionFlow(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	created, text, err := s.sessionCreate(ctx, sessionCreateInput{InputLanguage: "en"})
	require.NoError(t, err)
	assert.Equal(t, "English", created.InputLanguage)
	assert.Contains(t, text, created.SessionID)

	ingested, _, err := s.documentIngest(ctx, documentIngestInput{
		SessionID: created.SessionID,
		Pages: map[string]string{
			"1": "The river flows east. Tea grows in Assam hills.",
			"2": "Error processing page 2: blank scan",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ingested.Chunks)
	assert.Equal(t, []int{2}, ingested.SkippedPages)
	assert.Equal(t, "English", ingested.Language)

	bundle, text, err := s.contextRetrieve(ctx, questionInput{SessionID: created.SessionID, Question: "Where does tea grow?"})
	require.NoError(t, err)
	assert.False(t, bundle.Insufficient)
	require.Len(t, bundle.Sources, 2)
	assert.Equal(t, "Tea grows in Assam hills.", bundle.Sources[0].Text)
	assert.Equal(t, "English", bundle.Sources[0].Language)
	assert.Equal(t, bundle.Context, text)

	answer, text, err := s.questionAnswer(ctx, questionInput{SessionID: created.SessionID, Question: "Where does tea grow?"})
	require.NoError(t, err)
	assert.Equal(t, "answered", answer.Status)
	assert.Equal(t, "Tea grows in the Assam hills.", text)

	reset, _, err := s.sessionReset(ctx, sessionIDInput{SessionID: created.SessionID})
	require.NoError(t, err)
	assert.Equal(t, 0, reset.Chunks)

	bundle, text, err = s.contextRetrieve(ctx, questionInput{SessionID: created.SessionID, Question: "Where does tea grow?"})
	require.NoError(t, err)
	assert.True(t, bundle.Insufficient)
	assert.Equal(t, language.Message(language.English, language.NoResults), text)

	ended, _, err := s.sessionEnd(ctx, sessionIDInput{SessionID: created.SessionID})
	require.NoError(t, err)
	assert.True(t, ended.Ended)

	_, _, err = s.questionAnswer(ctx, questionInput{SessionID: created.SessionID, Question: "Where?"})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestTools_Translation(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	created, _, err := s.sessionCreate(ctx, sessionCreateInput{InputLanguage: "Hindi"})
	require.NoError(t, err)

	out, _, err := s.documentIngest(ctx, documentIngestInput{
		SessionID:   created.SessionID,
		Language:    "English",
		Pages:       map[string]string{"1": "Tea grows in Assam hills."},
		Translation: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "English", out.Language)

	_, _, err = s.documentIngest(ctx, documentIngestInput{
		SessionID:   created.SessionID,
		Pages:       map[string]string{"1": "missing language"},
		Translation: true,
	})
	assert.ErrorIs(t, err, session.ErrInvalidLanguage)
}

func TestTools_InvalidArguments(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.sessionCreate(ctx, sessionCreateInput{InputLanguage: "Klingon"})
	assert.ErrorIs(t, err, language.ErrUnknownLanguage)

	_, _, err = s.sessionCreate(ctx, sessionCreateInput{InputLanguage: "en", TranslationLanguage: "xx"})
	assert.ErrorIs(t, err, language.ErrUnknownLanguage)

	created, _, err := s.sessionCreate(ctx, sessionCreateInput{InputLanguage: "en"})
	require.NoError(t, err)

	_, _, err = s.documentIngest(ctx, documentIngestInput{
		SessionID: created.SessionID,
		Pages:     map[string]string{"first": "text"},
	})
	assert.ErrorIs(t, err, errInvalidArgument)

	_, _, err = s.sessionEnd(ctx, sessionIDInput{SessionID: "../etc"})
	assert.ErrorIs(t, err, errInvalidArgument)

	_, _, err = s.operationStatus(ctx, operationStatusInput{})
	assert.ErrorIs(t, err, errInvalidArgument)

	_, _, err = s.operationStatus(ctx, operationStatusInput{OperationID: "missing"})
	assert.ErrorIs(t, err, operations.ErrNotFound)
}

func TestParsePages(t *testing.T) {
	pages, err := parsePages(map[string]string{"1": "a", "12": "b"})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "a", 12: "b"}, pages)

	for _, key := range []string{"0", "-1", "one", ""} {
		t.Run(fmt.Sprintf("reject %q", key), func(t *testing.T) {
			_, err := parsePages(map[string]string{key: "a"})
			assert.ErrorIs(t, err, errInvalidArgument)
		})
	}
}

// connect runs s over in-memory transports and returns a client session.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := s.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func structured[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestServer_OverTransport(t *testing.T) {
	s, logger := newTestServer(t)
	cs := connect(t, s)
	ctx := context.Background()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, len(tools.Tools))
	for i, tool := range tools.Tools {
		names[i] = tool.Name
	}
	assert.ElementsMatch(t, []string{
		"session_create", "document_ingest", "context_retrieve",
		"question_answer", "session_reset", "session_end", "operation_status",
	}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "session_create",
		Arguments: map[string]any{"input_language": "English"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	created := structured[sessionOutput](t, res)
	require.NotEmpty(t, created.SessionID)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name: "document_ingest",
		Arguments: map[string]any{
			"session_id": created.SessionID,
			"pages":      map[string]string{"1": "Tea grows in Assam hills."},
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	ingested := structured[documentIngestOutput](t, res)
	assert.Equal(t, 1, ingested.Chunks)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "operation_status",
		Arguments: map[string]any{"operation_id": ingested.OperationID},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	status := structured[operationStatusOutput](t, res)
	assert.Equal(t, created.SessionID, status.SessionID)
	assert.Equal(t, "completed", status.Status)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "question_answer",
		Arguments: map[string]any{"session_id": created.SessionID, "question": "Where does tea grow?"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	textContent, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Tea grows in the Assam hills.", textContent.Text)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "question_answer",
		Arguments: map[string]any{"session_id": "missing", "question": "Where?"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	logger.AssertLogged(t, zapcore.WarnLevel, "tool call failed")
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, "", categorizeError(nil))
	assert.Equal(t, "not_found", categorizeError(session.ErrSessionNotFound))
	assert.Equal(t, "not_found", categorizeError(operations.ErrNotFound))
	assert.Equal(t, "validation_error", categorizeError(language.ErrUnknownLanguage))
	assert.Equal(t, "extraction_error", categorizeError(session.ErrExtractionFailed))
	assert.Equal(t, "limit_exceeded", categorizeError(session.ErrTooManySessions))
	assert.Equal(t, "timeout", categorizeError(context.DeadlineExceeded))
	assert.Equal(t, "internal_error", categorizeError(errors.New("boom")))
}
