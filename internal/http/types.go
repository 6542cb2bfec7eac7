package http

import (
	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/session"
	"github.com/fyrsmithlabs/docqa/internal/vectorstore"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// LanguageInfo describes one supported language.
type LanguageInfo struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// LanguagesResponse is the response body for GET /api/v1/languages.
type LanguagesResponse struct {
	Languages []LanguageInfo `json:"languages"`
}

// SessionListResponse is the response body for GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []*session.Info `json:"sessions"`
}

// CreateSessionRequest is the request body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	InputLanguage       language.Tag `json:"input_language"`
	TranslationLanguage language.Tag `json:"translation_language"`
}

// DocumentRequest is the request body for the documents and translations
// endpoints. Pages are keyed by page number.
type DocumentRequest struct {
	Language language.Tag   `json:"language"`
	Pages    map[int]string `json:"pages"`
}

// QuestionRequest is the request body for the context and ask endpoints.
type QuestionRequest struct {
	Question string `json:"question"`
}

// ContextResponse is the response body for POST /api/v1/sessions/:id/context.
type ContextResponse struct {
	Context             string              `json:"context"`
	QuestionLanguage    language.Tag        `json:"question_language"`
	PredominantLanguage language.Tag        `json:"predominant_language"`
	Sources             []vectorstore.Entry `json:"sources"`
	Insufficient        bool                `json:"insufficient"`
}
