package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/operations"
	"github.com/fyrsmithlabs/docqa/internal/session"
	"github.com/fyrsmithlabs/docqa/internal/vectorstore"
)

var errInvalidArgument = errors.New("invalid argument")

// addTool registers a typed tool with metrics and failure logging. The
// handler returns its structured output and the text shown to the client.
func addTool[In, Out any](s *Server, tool *mcp.Tool, handler func(context.Context, In) (Out, string, error)) {
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, _ *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, tool.Name)
		out, text, err := handler(ctx, args)
		s.metrics.DecrementActive(ctx, tool.Name)
		s.metrics.RecordInvocation(ctx, tool.Name, time.Since(start), err)

		if err != nil {
			s.logger.Warn(ctx, "tool call failed", zap.String("tool", tool.Name), zap.Error(err))
			var zero Out
			return nil, zero, fmt.Errorf("%s failed: %w", tool.Name, err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	})
}

func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        "session_create",
		Description: "Start a document QA session for documents in the given language",
	}, s.sessionCreate)

	addTool(s, &mcp.Tool{
		Name:        "document_ingest",
		Description: "Add a document's pages to a session. Set translation to add a translation of the document instead",
	}, s.documentIngest)

	addTool(s, &mcp.Tool{
		Name:        "context_retrieve",
		Description: "Retrieve the passages of a session's documents most relevant to a question",
	}, s.contextRetrieve)

	addTool(s, &mcp.Tool{
		Name:        "question_answer",
		Description: "Answer a question from a session's documents, in the language of the question",
	}, s.questionAnswer)

	addTool(s, &mcp.Tool{
		Name:        "session_reset",
		Description: "Remove every document from a session",
	}, s.sessionReset)

	addTool(s, &mcp.Tool{
		Name:        "session_end",
		Description: "End a session and discard its documents",
	}, s.sessionEnd)

	addTool(s, &mcp.Tool{
		Name:        "operation_status",
		Description: "Report the status of a document ingestion operation",
	}, s.operationStatus)
}

type sessionCreateInput struct {
	InputLanguage       string `json:"input_language" jsonschema:"Language of the documents, e.g. Hindi or hi"`
	TranslationLanguage string `json:"translation_language,omitempty" jsonschema:"Language of an optional translation"`
}

type sessionOutput struct {
	SessionID           string `json:"session_id" jsonschema:"Session ID"`
	InputLanguage       string `json:"input_language" jsonschema:"Language of the documents"`
	TranslationLanguage string `json:"translation_language,omitempty" jsonschema:"Language of the translation, if any"`
	Chunks              int    `json:"chunks" jsonschema:"Number of indexed chunks"`
}

func toSessionOutput(info *session.Info) sessionOutput {
	return sessionOutput{
		SessionID:           info.ID,
		InputLanguage:       info.InputLanguage.String(),
		TranslationLanguage: info.TranslationLanguage.String(),
		Chunks:              info.Chunks,
	}
}

func (s *Server) sessionCreate(ctx context.Context, args sessionCreateInput) (sessionOutput, string, error) {
	input, err := language.Parse(args.InputLanguage)
	if err != nil {
		return sessionOutput{}, "", err
	}
	translation, err := optionalLanguage(args.TranslationLanguage)
	if err != nil {
		return sessionOutput{}, "", err
	}
	info, err := s.sessions.Create(ctx, input, translation)
	if err != nil {
		return sessionOutput{}, "", err
	}
	return toSessionOutput(info), fmt.Sprintf("Session created: %s", info.ID), nil
}

type documentIngestInput struct {
	SessionID   string            `json:"session_id" jsonschema:"Session ID"`
	Language    string            `json:"language,omitempty" jsonschema:"Document language; defaults to the session input language"`
	Pages       map[string]string `json:"pages" jsonschema:"Page text keyed by page number"`
	Translation bool              `json:"translation,omitempty" jsonschema:"Pages are a translation; language is then required"`
}

type documentIngestOutput struct {
	OperationID   string `json:"operation_id" jsonschema:"ID of the ingestion operation"`
	Language      string `json:"language" jsonschema:"Language the pages were indexed under"`
	Pages         int    `json:"pages" jsonschema:"Pages indexed"`
	SkippedPages  []int  `json:"skipped_pages,omitempty" jsonschema:"Pages skipped because text extraction failed"`
	Chunks        int    `json:"chunks" jsonschema:"Chunks added"`
	FailedBatches int    `json:"failed_batches" jsonschema:"Embedding batches that failed and were skipped"`
	TotalChunks   int    `json:"total_chunks" jsonschema:"Chunks in the session after ingestion"`
}

func (s *Server) documentIngest(ctx context.Context, args documentIngestInput) (documentIngestOutput, string, error) {
	lang, err := optionalLanguage(args.Language)
	if err != nil {
		return documentIngestOutput{}, "", err
	}
	pages, err := parsePages(args.Pages)
	if err != nil {
		return documentIngestOutput{}, "", err
	}

	var report *session.IngestReport
	if args.Translation {
		report, err = s.sessions.AddTranslation(ctx, args.SessionID, lang, pages)
	} else {
		report, err = s.sessions.Ingest(ctx, args.SessionID, session.IngestRequest{Language: lang, Pages: pages})
	}
	if err != nil {
		return documentIngestOutput{}, "", err
	}
	out := documentIngestOutput{
		OperationID:   report.OperationID,
		Language:      report.Language.String(),
		Pages:         report.Pages,
		SkippedPages:  report.SkippedPages,
		Chunks:        report.Chunks,
		FailedBatches: report.FailedBatches,
		TotalChunks:   report.TotalChunks,
	}
	return out, fmt.Sprintf("Indexed %d chunks from %d pages", out.Chunks, out.Pages), nil
}

type questionInput struct {
	SessionID string `json:"session_id" jsonschema:"Session ID"`
	Question  string `json:"question" jsonschema:"The question to answer"`
}

type source struct {
	ID       int     `json:"id" jsonschema:"Chunk ID"`
	Text     string  `json:"text" jsonschema:"Chunk text"`
	Language string  `json:"language" jsonschema:"Chunk language"`
	Distance float32 `json:"distance" jsonschema:"L2 distance to the question"`
}

func toSources(entries []vectorstore.Entry) []source {
	out := make([]source, len(entries))
	for i, e := range entries {
		out[i] = source{ID: e.ID, Text: e.Text, Language: e.Language.String(), Distance: e.Distance}
	}
	return out
}

type contextOutput struct {
	Context             string   `json:"context" jsonschema:"Retrieved passages separated by blank lines"`
	QuestionLanguage    string   `json:"question_language" jsonschema:"Detected language of the question"`
	PredominantLanguage string   `json:"predominant_language" jsonschema:"Most common language among the passages"`
	Sources             []source `json:"sources" jsonschema:"Retrieved chunks, nearest first"`
	Insufficient        bool     `json:"insufficient" jsonschema:"True when nothing relevant was found"`
}

func (s *Server) contextRetrieve(ctx context.Context, args questionInput) (contextOutput, string, error) {
	bundle, err := s.sessions.Context(ctx, args.SessionID, args.Question)
	if err != nil {
		return contextOutput{}, "", err
	}
	out := contextOutput{
		Context:             bundle.Context,
		QuestionLanguage:    bundle.QuestionLanguage.String(),
		PredominantLanguage: bundle.PredominantLanguage.String(),
		Sources:             toSources(bundle.Sources),
		Insufficient:        bundle.Insufficient(),
	}
	text := out.Context
	if out.Insufficient {
		text = language.Message(bundle.QuestionLanguage, language.NoResults)
	}
	return out, text, nil
}

type answerOutput struct {
	Answer              string   `json:"answer" jsonschema:"The answer, in the question language"`
	Status              string   `json:"status" jsonschema:"answered, no_results, no_answer, context_only or error"`
	QuestionLanguage    string   `json:"question_language" jsonschema:"Detected language of the question"`
	PredominantLanguage string   `json:"predominant_language" jsonschema:"Most common language among the passages"`
	Sources             []source `json:"sources,omitempty" jsonschema:"Chunks the answer is grounded on"`
}

func (s *Server) questionAnswer(ctx context.Context, args questionInput) (answerOutput, string, error) {
	answer, err := s.sessions.Ask(ctx, args.SessionID, args.Question)
	if err != nil {
		return answerOutput{}, "", err
	}
	return answerOutput{
		Answer:              answer.Text,
		Status:              string(answer.Status),
		QuestionLanguage:    answer.QuestionLanguage.String(),
		PredominantLanguage: answer.PredominantLanguage.String(),
		Sources:             toSources(answer.Sources),
	}, answer.Text, nil
}

type sessionIDInput struct {
	SessionID string `json:"session_id" jsonschema:"Session ID"`
}

func (s *Server) sessionReset(ctx context.Context, args sessionIDInput) (sessionOutput, string, error) {
	if err := s.sessions.Reset(ctx, args.SessionID); err != nil {
		return sessionOutput{}, "", err
	}
	info, err := s.sessions.Get(args.SessionID)
	if err != nil {
		return sessionOutput{}, "", err
	}
	return toSessionOutput(info), fmt.Sprintf("Session reset: %s", info.ID), nil
}

type sessionEndOutput struct {
	SessionID string `json:"session_id" jsonschema:"Session ID"`
	Ended     bool   `json:"ended" jsonschema:"True once the session is gone"`
}

func (s *Server) sessionEnd(ctx context.Context, args sessionIDInput) (sessionEndOutput, string, error) {
	if err := logging.ValidateID(args.SessionID, "session_id"); err != nil {
		return sessionEndOutput{}, "", fmt.Errorf("%w: %v", errInvalidArgument, err)
	}
	if err := s.sessions.End(ctx, args.SessionID); err != nil {
		return sessionEndOutput{}, "", err
	}
	return sessionEndOutput{SessionID: args.SessionID, Ended: true}, fmt.Sprintf("Session ended: %s", args.SessionID), nil
}

type operationStatusInput struct {
	OperationID string `json:"operation_id" jsonschema:"Operation ID returned by document_ingest"`
}

type operationStatusOutput struct {
	OperationID string `json:"operation_id" jsonschema:"Operation ID"`
	SessionID   string `json:"session_id" jsonschema:"Session the operation belongs to"`
	Kind        string `json:"kind" jsonschema:"ingest or translation"`
	Status      string `json:"status" jsonschema:"pending, running, completed or failed"`
	Error       string `json:"error,omitempty" jsonschema:"Failure reason, if failed"`
}

func (s *Server) operationStatus(_ context.Context, args operationStatusInput) (operationStatusOutput, string, error) {
	if args.OperationID == "" {
		return operationStatusOutput{}, "", fmt.Errorf("%w: operation_id is required", errInvalidArgument)
	}
	op, err := s.sessions.Operation(args.OperationID)
	if err != nil {
		return operationStatusOutput{}, "", err
	}
	out := operationStatusOutput{
		OperationID: op.ID,
		SessionID:   op.SessionID,
		Kind:        op.Kind,
		Status:      string(op.Status),
		Error:       op.Error,
	}
	if op.Status == operations.StatusFailed {
		return out, fmt.Sprintf("Operation %s failed: %s", op.ID, op.Error), nil
	}
	return out, fmt.Sprintf("Operation %s: %s", op.ID, op.Status), nil
}

func optionalLanguage(s string) (language.Tag, error) {
	if s == "" {
		return language.None, nil
	}
	return language.Parse(s)
}

func parsePages(raw map[string]string) (map[int]string, error) {
	pages := make(map[int]string, len(raw))
	for k, text := range raw {
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: page key %q is not a page number", errInvalidArgument, k)
		}
		pages[n] = text
	}
	return pages, nil
}
