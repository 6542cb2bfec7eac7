package language

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Detector reports the ISO 639-1 code of the language a text is written in.
type Detector interface {
	Detect(text string) (code string, ok bool)
}

// LinguaDetector detects languages with lingua-go's n-gram models.
// It is safe for concurrent use.
type LinguaDetector struct {
	detector lingua.LanguageDetector
}

// NewLinguaDetector builds a detector over every language lingua knows so
// that questions outside the supported set are recognized as such.
func NewLinguaDetector() *LinguaDetector {
	return &LinguaDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build(),
	}
}

// Detect implements Detector.
func (d *LinguaDetector) Detect(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Resolve detects the language of text. Detection failures, a nil detector
// and codes outside the supported set all resolve to English.
func Resolve(d Detector, text string) Tag {
	if d == nil {
		return English
	}
	code, ok := d.Detect(text)
	if !ok {
		return English
	}
	tag, ok := FromDetectionCode(code)
	if !ok {
		return English
	}
	return tag
}

// DetectorFunc adapts a plain function to Detector.
type DetectorFunc func(text string) (string, bool)

// Detect implements Detector.
func (f DetectorFunc) Detect(text string) (string, bool) { return f(text) }
