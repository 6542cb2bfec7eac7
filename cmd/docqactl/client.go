package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/docqa/internal/language"
	api "github.com/fyrsmithlabs/docqa/internal/http"
	"github.com/fyrsmithlabs/docqa/internal/session"
)

// apiError is a non-2xx response from the daemon.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// client talks to the docqa HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends body as JSON and decodes a successful response into out.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return &apiError{Status: resp.StatusCode, Message: readErr.Error()}
		}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Message != "" {
			return &apiError{Status: resp.StatusCode, Message: msg.Message}
		}
		return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	return &out, c.do(ctx, http.MethodGet, "/health", nil, &out)
}

func (c *client) Languages(ctx context.Context) (*api.LanguagesResponse, error) {
	var out api.LanguagesResponse
	return &out, c.do(ctx, http.MethodGet, "/api/v1/languages", nil, &out)
}

func (c *client) CreateSession(ctx context.Context, input, translation language.Tag) (*session.Info, error) {
	var out session.Info
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions", api.CreateSessionRequest{
		InputLanguage:       input,
		TranslationLanguage: translation,
	}, &out)
	return &out, err
}

func (c *client) GetSession(ctx context.Context, id string) (*session.Info, error) {
	var out session.Info
	return &out, c.do(ctx, http.MethodGet, "/api/v1/sessions/"+id, nil, &out)
}

func (c *client) EndSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+id, nil, nil)
}

func (c *client) ResetSession(ctx context.Context, id string) (*session.Info, error) {
	var out session.Info
	return &out, c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/reset", nil, &out)
}

// Ingest uploads doc to the documents endpoint, or the translations endpoint
// when doc is a translation.
func (c *client) Ingest(ctx context.Context, id string, doc *document) (*session.IngestReport, error) {
	path := "/api/v1/sessions/" + id + "/documents"
	if doc.Translation {
		path = "/api/v1/sessions/" + id + "/translations"
	}
	var out session.IngestReport
	err := c.do(ctx, http.MethodPost, path, api.DocumentRequest{Language: doc.Language, Pages: doc.Pages}, &out)
	return &out, err
}

func (c *client) Context(ctx context.Context, id, question string) (*api.ContextResponse, error) {
	var out api.ContextResponse
	return &out, c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/context", api.QuestionRequest{Question: question}, &out)
}

func (c *client) Ask(ctx context.Context, id, question string) (*session.Answer, error) {
	var out session.Answer
	return &out, c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/ask", api.QuestionRequest{Question: question}, &out)
}
