package language

import "fmt"

// MessageKind selects a user-facing fallback message.
type MessageKind string

const (
	// NoResults is shown when retrieval found nothing to ground an answer on.
	NoResults MessageKind = "no_results"
	// NoAnswer is shown when the generator returned nothing usable.
	NoAnswer MessageKind = "no_answer"
	// GeneralError is shown when answering failed; it takes one detail argument.
	GeneralError MessageKind = "general_error"
)

var messages = map[Tag]map[MessageKind]string{
	English: {
		NoResults:    "I'm sorry, I could not find any relevant context to answer your question.",
		NoAnswer:     "I apologize, I could not find any information to provide an answer to your question.",
		GeneralError: "An error occurred: %s",
	},
	Hindi: {
		NoResults:    "क्षमा करें, इस प्रश्न के लिए कोई प्रासंगिक संदर्भ नहीं मिला।",
		NoAnswer:     "क्षमा करें, इस प्रश्न का उत्तर देने के लिए प्रासंगिक जानकारी नहीं मिली।",
		GeneralError: "त्रुटि आई: %s",
	},
	Marathi: {
		NoResults:    "माफ करा, या प्रश्नासंबंधी कोणतेही उपयुक्त संदर्भ मिळाले नाहीत.",
		NoAnswer:     "माफ करा, या प्रश्नाचे उत्तर देण्यासाठी प्रासंगिक माहिती सापडली नाही.",
		GeneralError: "त्रुटी आली: %s",
	},
}

// Message returns the localized message of the given kind. Languages without
// translations fall back to English. GeneralError consumes detail.
func Message(t Tag, kind MessageKind, detail ...string) string {
	set, ok := messages[t]
	if !ok {
		set = messages[English]
	}
	msg, ok := set[kind]
	if !ok {
		return fmt.Sprintf("Error during %s", kind)
	}
	if kind == GeneralError {
		d := "unknown error"
		if len(detail) > 0 && detail[0] != "" {
			d = detail[0]
		}
		return fmt.Sprintf(msg, d)
	}
	return msg
}
