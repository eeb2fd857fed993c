package analyzer

import "strings"

// systemPrompt is the fixed instruction given to every provider. The template
// never varies per document; only the user message carries document text.
func systemPrompt() string {
	parts := []string{
		"You are a document analysis engine. Return ONLY a JSON object that matches the JSON Schema provided.",
		"Classify the document under 'documentType' (a short label such as contract, invoice, report, letter, memo).",
		"List named people, organisations and places under 'entities'.",
		"List the main subjects under 'topics'.",
		"List dates or deadlines mentioned in the text under 'deadlines', each as a short phrase with its context.",
		"List concrete obligations or follow-ups under 'actionItems'.",
		"Never output null. If you cannot determine a field, omit it entirely.",
		"JSON Schema:\n" + SchemaJSON(),
	}
	return strings.Join(parts, " ")
}

func userPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Document text:\n\n")
	b.WriteString(text)
	b.WriteString("\n\nReturn ONLY the JSON object.")
	return b.String()
}
