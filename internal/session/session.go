// Package session owns per-session document stores and orchestrates
// ingestion, retrieval and answering on top of them.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/qa"
	"github.com/fyrsmithlabs/docqa/internal/vectorstore"
)

var (
	// ErrSessionNotFound is returned for an unknown or ended session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when the session limit is reached.
	ErrTooManySessions = errors.New("too many active sessions")

	// ErrExtractionFailed is returned when every page of a document is an
	// extraction-failure placeholder.
	ErrExtractionFailed = errors.New("text extraction failed for every page")

	// ErrEmptyDocument is returned when a document has no pages.
	ErrEmptyDocument = errors.New("document has no pages")

	// ErrInvalidPage is returned for a page number below 1.
	ErrInvalidPage = errors.New("page numbers start at 1")

	// ErrInvalidLanguage is returned for a missing or unsupported language.
	ErrInvalidLanguage = errors.New("invalid language")
)

// Status of an Answer.
type Status string

// Answer statuses.
const (
	StatusAnswered    Status = "answered"
	StatusNoResults   Status = "no_results"
	StatusNoAnswer    Status = "no_answer"
	StatusError       Status = "error"
	StatusContextOnly Status = "context_only"
)

// Answer is the reply to a question, always in the question language.
type Answer struct {
	Text                string              `json:"text"`
	Status              Status              `json:"status"`
	QuestionLanguage    language.Tag        `json:"question_language"`
	PredominantLanguage language.Tag        `json:"predominant_language"`
	Sources             []vectorstore.Entry `json:"sources,omitempty"`
}

// Session is one user's document workspace.
type Session struct {
	ID        string
	CreatedAt time.Time

	store    *vectorstore.DocumentStore
	resolver *qa.Resolver

	mu          sync.Mutex
	input       language.Tag
	translation language.Tag
	lastActive  time.Time
}

// Info is a point-in-time view of a session.
type Info struct {
	ID                  string       `json:"session_id"`
	InputLanguage       language.Tag `json:"input_language"`
	TranslationLanguage language.Tag `json:"translation_language,omitempty"`
	Chunks              int          `json:"chunks"`
	Dimension           int          `json:"dimension"`
	Backend             string       `json:"backend"`
	CreatedAt           time.Time    `json:"created_at"`
	LastActive          time.Time    `json:"last_active"`
}

func (s *Session) info() *Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Info{
		ID:                  s.ID,
		InputLanguage:       s.input,
		TranslationLanguage: s.translation,
		Chunks:              s.store.Len(),
		Dimension:           s.store.Dimension(),
		Backend:             s.store.Backend(),
		CreatedAt:           s.CreatedAt,
		LastActive:          s.lastActive,
	}
}

func (s *Session) languages() (input, translation language.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input, s.translation
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}
