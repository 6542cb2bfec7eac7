package generator

import (
	"strings"
	"text/template"
)

var promptTemplate = template.Must(template.New("answer").Parse(
	`You are an expert multilingual assistant.
Answer the following question based on the provided context.

Important instructions:
1. The question is in {{.QuestionLanguage}}
2. The context is predominantly in {{.PredominantLanguage}}
3. Provide the answer ONLY in {{.QuestionLanguage}}
4. If you cannot find the answer in the context, say so in {{.QuestionLanguage}}
5. Maintain formal and respectful language
6. If technical terms appear in English, you may keep them in English

Context:
{{.Context}}

Question: {{.Question}}

Answer in {{.QuestionLanguage}}:`))

// BuildPrompt renders the answer prompt for req.
func BuildPrompt(req Request) string {
	var b strings.Builder
	// Execute only fails on writer errors or template bugs; neither applies
	// to a strings.Builder and a parsed constant template.
	_ = promptTemplate.Execute(&b, req)
	return b.String()
}
