// Package vectorstore holds the per-session index of embedded document chunks.
//
// A DocumentStore assigns dense ids starting at 0 in insertion order, keeps the
// text and language of every chunk, and answers k-nearest-neighbour queries by
// Euclidean distance with ties broken by ascending id. The vector math lives in
// an Index backend chosen at construction.
package vectorstore

import (
	"errors"

	"github.com/fyrsmithlabs/docqa/internal/language"
)

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// dimension fixed by the first add.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUnknownBackend indicates an unsupported index backend name.
	ErrUnknownBackend = errors.New("unknown index backend")
)

// EmbeddedChunk is one chunk of page text with its vector.
type EmbeddedChunk struct {
	Page     int
	Text     string
	Vector   []float32
	Language language.Tag
}

// Entry is the stored metadata of one chunk. Search results fill Distance.
type Entry struct {
	ID       int          `json:"id"`
	Text     string       `json:"text"`
	Language language.Tag `json:"language"`
	Distance float32      `json:"distance"`
}

// Neighbor is a raw backend hit.
type Neighbor struct {
	ID       int
	Distance float32
}
