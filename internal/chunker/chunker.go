// Package chunker splits page text into sentence-bounded chunks sized for
// the embedding model.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the soft chunk size cap in characters.
const DefaultMaxLength = 1000

// sentenceEnd matches a terminal (Latin punctuation, danda or double danda)
// followed by whitespace. Group 1 is the terminal, which stays with its sentence.
var sentenceEnd = regexp.MustCompile(`([.!?।॥])\s+`)

// Sentences splits text at sentence terminals followed by whitespace.
// Empty pieces are dropped.
func Sentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	for _, m := range sentenceEnd.FindAllStringSubmatchIndex(text, -1) {
		if s := strings.TrimSpace(text[start:m[3]]); s != "" {
			out = append(out, s)
		}
		start = m[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// Chunk greedily packs consecutive sentences, joined by a single space, into
// chunks of at most maxLength characters. A sentence longer than maxLength is
// emitted whole as its own chunk. maxLength <= 0 selects DefaultMaxLength.
func Chunk(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	var (
		chunks  []string
		current []string
		length  int
	)
	for _, s := range Sentences(text) {
		n := utf8.RuneCountInString(s)
		if len(current) > 0 && length+1+n > maxLength {
			chunks = append(chunks, strings.Join(current, " "))
			current, length = nil, 0
		}
		if len(current) > 0 {
			length++
		}
		current = append(current, s)
		length += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
