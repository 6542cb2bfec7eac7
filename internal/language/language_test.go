package language

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Tag
		wantErr bool
	}{
		{name: "display name", input: "Hindi", want: Hindi},
		{name: "lowercase name", input: "marathi", want: Marathi},
		{name: "padded name", input: "  English ", want: English},
		{name: "ocr code", input: "tam", want: Tamil},
		{name: "two letter ocr code", input: "bn", want: Bengali},
		{name: "unknown", input: "Klingon", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownLanguage)
				assert.Equal(t, None, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAll(t *testing.T) {
	tags := All()
	require.Len(t, tags, 21)
	assert.Equal(t, English, tags[0])
	assert.Equal(t, Pali, tags[len(tags)-1])
	for _, tag := range tags {
		assert.True(t, tag.Valid())
		assert.NotEmpty(t, tag.String())
		assert.NotEmpty(t, tag.OCRCode())
		assert.NotEmpty(t, tag.TranslationCode())
	}
	assert.False(t, None.Valid())
	assert.Equal(t, "", None.String())
}

func TestTranslationCodeFallbacks(t *testing.T) {
	assert.Equal(t, "hi", Bihari.TranslationCode())
	assert.Equal(t, "sa", Pali.TranslationCode())
	assert.Equal(t, "bn", Santali.TranslationCode())
	assert.Equal(t, "mni-Mtei", Meetei.TranslationCode())
	assert.Equal(t, "gu", Gujarati.TranslationCode())
}

func TestRequiresTesseract(t *testing.T) {
	for _, tag := range []Tag{Punjabi, Malayalam, Gujarati, Meetei, Oriya, Tamil} {
		assert.True(t, tag.RequiresTesseract(), tag.String())
	}
	assert.False(t, Hindi.RequiresTesseract())
	assert.False(t, English.RequiresTesseract())
}

func TestFromDetectionCode(t *testing.T) {
	tag, ok := FromDetectionCode("ta")
	require.True(t, ok)
	assert.Equal(t, Tamil, tag)

	tag, ok = FromDetectionCode("GU")
	require.True(t, ok)
	assert.Equal(t, Gujarati, tag)

	_, ok = FromDetectionCode("fr")
	assert.False(t, ok)

	// OCR-only codes are not detection codes.
	_, ok = FromDetectionCode("tam")
	assert.False(t, ok)
}

func TestTagJSON(t *testing.T) {
	type payload struct {
		Input       Tag `json:"input"`
		Translation Tag `json:"translation"`
	}

	data, err := json.Marshal(payload{Input: Hindi})
	require.NoError(t, err)
	assert.JSONEq(t, `{"input":"Hindi","translation":""}`, string(data))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"input":"mr","translation":"English"}`), &p))
	assert.Equal(t, Marathi, p.Input)
	assert.Equal(t, English, p.Translation)

	err = json.Unmarshal([]byte(`{"input":"Elvish"}`), &p)
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestMessage(t *testing.T) {
	assert.Equal(t,
		"I'm sorry, I could not find any relevant context to answer your question.",
		Message(English, NoResults))
	assert.Equal(t,
		"क्षमा करें, इस प्रश्न के लिए कोई प्रासंगिक संदर्भ नहीं मिला।",
		Message(Hindi, NoResults))
	assert.Equal(t, "त्रुटी आली: timeout", Message(Marathi, GeneralError, "timeout"))
	assert.Equal(t, "An error occurred: unknown error", Message(English, GeneralError))

	// Languages without translations use English.
	assert.Equal(t, Message(English, NoAnswer), Message(Tamil, NoAnswer))
	assert.Equal(t, "Error during bogus", Message(English, MessageKind("bogus")))
}

func TestResolve(t *testing.T) {
	fixed := func(code string, ok bool) Detector {
		return DetectorFunc(func(string) (string, bool) { return code, ok })
	}

	tests := []struct {
		name     string
		detector Detector
		want     Tag
	}{
		{name: "supported code", detector: fixed("hi", true), want: Hindi},
		{name: "unsupported code", detector: fixed("fr", true), want: English},
		{name: "detection failure", detector: fixed("", false), want: English},
		{name: "nil detector", detector: nil, want: English},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.detector, "anything"))
		})
	}
}

func TestLinguaDetector(t *testing.T) {
	if testing.Short() {
		t.Skip("loads language models")
	}
	d := NewLinguaDetector()

	code, ok := d.Detect("The quarterly report describes the revenue of the company in great detail.")
	require.True(t, ok)
	assert.Equal(t, "en", code)

	_, ok = d.Detect("   ")
	assert.False(t, ok)

	assert.Equal(t, English, Resolve(d, "Quelle est la capitale de la France et pourquoi est-elle célèbre?"))
}
