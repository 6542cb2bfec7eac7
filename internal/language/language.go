// Package language defines the closed set of languages docqa works with and
// the code tables used when talking to OCR, translation and detection services.
package language

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownLanguage is returned when a name or code does not map to a Tag.
var ErrUnknownLanguage = errors.New("unknown language")

// Tag identifies a supported language. The zero value None means "not set".
type Tag int

const (
	None Tag = iota
	English
	Marathi
	Hindi
	Bengali
	Assamese
	Meetei
	Bihari
	Bhojpuri
	Oriya
	Punjabi
	Tamil
	Telugu
	Kannada
	Nepali
	Urdu
	Goan
	Maithili
	Santali
	Gujarati
	Malayalam
	Pali
)

type info struct {
	name string
	// ocr is the code handed to the text extraction backend.
	ocr string
	// translation is the translator code before fallback substitution.
	translation string
	// fallback replaces translation when the translator lacks the language.
	fallback string
	// detection is the ISO 639-1 code a detector reports, empty if undetectable.
	detection string
	tesseract bool
}

var table = map[Tag]info{
	English:   {name: "English", ocr: "en", translation: "en", detection: "en"},
	Marathi:   {name: "Marathi", ocr: "mr", translation: "mr", detection: "mr"},
	Hindi:     {name: "Hindi", ocr: "hi", translation: "hi", detection: "hi"},
	Bengali:   {name: "Bengali", ocr: "bn", translation: "bn", detection: "bn"},
	Assamese:  {name: "Assamese", ocr: "as", translation: "as", detection: "as"},
	Meetei:    {name: "Meetei", ocr: "mni", translation: "mni-Mtei", tesseract: true},
	Bihari:    {name: "Bihari", ocr: "bh", translation: "bh", fallback: "hi"},
	Bhojpuri:  {name: "Bhojpuri", ocr: "bho", translation: "bho"},
	Oriya:     {name: "Oriya", ocr: "ori", translation: "or", detection: "or", tesseract: true},
	Punjabi:   {name: "Punjabi", ocr: "pan", translation: "pa", detection: "pa", tesseract: true},
	Tamil:     {name: "Tamil", ocr: "tam", translation: "ta", detection: "ta", tesseract: true},
	Telugu:    {name: "Telugu", ocr: "te", translation: "te", detection: "te"},
	Kannada:   {name: "Kannada", ocr: "kn", translation: "kn", detection: "kn"},
	Nepali:    {name: "Nepali", ocr: "ne", translation: "ne", detection: "ne"},
	Urdu:      {name: "Urdu", ocr: "ur", translation: "ur", detection: "ur"},
	Goan:      {name: "Goan", ocr: "gom", translation: "gom"},
	Maithili:  {name: "Maithili", ocr: "mai", translation: "mai"},
	Santali:   {name: "Santali", ocr: "sat", translation: "sat", fallback: "bn"},
	Gujarati:  {name: "Gujarati", ocr: "guj", translation: "gu", detection: "gu", tesseract: true},
	Malayalam: {name: "Malayalam", ocr: "mal", translation: "ml", detection: "ml", tesseract: true},
	Pali:      {name: "Pali", ocr: "pi", translation: "pi", fallback: "sa"},
}

var (
	byName      = make(map[string]Tag, len(table))
	byOCR       = make(map[string]Tag, len(table))
	byDetection = make(map[string]Tag, len(table))
)

func init() {
	for tag, i := range table {
		byName[strings.ToLower(i.name)] = tag
		byOCR[i.ocr] = tag
		if i.detection != "" {
			byDetection[i.detection] = tag
		}
	}
}

// All returns every supported language in declaration order.
func All() []Tag {
	tags := make([]Tag, 0, len(table))
	for tag := range table {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Parse resolves a display name (case-insensitive) or OCR code to a Tag.
func Parse(s string) (Tag, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if tag, ok := byName[key]; ok {
		return tag, nil
	}
	if tag, ok := byOCR[key]; ok {
		return tag, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
}

// FromDetectionCode maps an ISO 639-1 code reported by a detector to a Tag.
func FromDetectionCode(code string) (Tag, bool) {
	tag, ok := byDetection[strings.ToLower(strings.TrimSpace(code))]
	return tag, ok
}

// Valid reports whether t is a supported language.
func (t Tag) Valid() bool {
	_, ok := table[t]
	return ok
}

// String returns the display name, or "" for None and unknown values.
func (t Tag) String() string {
	return table[t].name
}

// OCRCode returns the code used by the text extraction backend.
func (t Tag) OCRCode() string {
	return table[t].ocr
}

// TranslationCode returns the translator code, substituting the fallback
// language for the few the translator cannot handle directly.
func (t Tag) TranslationCode() string {
	i := table[t]
	if i.fallback != "" {
		return i.fallback
	}
	return i.translation
}

// RequiresTesseract reports whether extraction for t must go through Tesseract.
func (t Tag) RequiresTesseract() bool {
	return table[t].tesseract
}

// MarshalText encodes the tag as its display name.
func (t Tag) MarshalText() ([]byte, error) {
	if t != None && !t.Valid() {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownLanguage, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a display name or OCR code. Empty text yields None.
func (t *Tag) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		*t = None
		return nil
	}
	tag, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = tag
	return nil
}
