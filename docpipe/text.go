package docpipe

import "fmt"

// extractText handles plain text uploads. The content is passed through
// verbatim: callers rely on txt extraction being lossless, byte for byte.
func extractText(content []byte) (*Extraction, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty text document")
	}
	return &Extraction{Text: string(content)}, nil
}
