// CLAUDE:SUMMARY Format-dispatched text extraction: bytes + declared format → plain text + metadata.
// Package docpipe extracts plain text from uploaded document bytes.
//
// Supported formats:
//   - pdf: PDF text extraction (pdfcpu cross-reference + content streams)
//   - docx/doc: Microsoft Word (archive/zip, word/document.xml)
//   - txt: plain text (verbatim passthrough, no transformation)
//
// Extraction is a pure function of (content, format): no state, no I/O
// beyond the bytes handed in. Callers decide what to do with failures;
// a parse error here is the extraction_error failure cause upstream.
package docpipe

import (
	"context"
	"fmt"
	"strings"
)

// Format identifies a declared document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDocx Format = "docx"
	FormatDoc  Format = "doc"
	FormatTXT  Format = "txt"
)

// ParseFormat maps a file extension (with or without leading dot) to a
// Format. Unknown extensions are rejected; the supported set is closed.
func ParseFormat(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return FormatPDF, nil
	case "docx":
		return FormatDocx, nil
	case "doc":
		return FormatDoc, nil
	case "txt", "text":
		return FormatTXT, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", ext)
	}
}

// SupportedFormats returns the closed set of accepted format names.
func SupportedFormats() []string {
	return []string{"pdf", "docx", "doc", "txt"}
}

// Extraction is the result of extracting text from document bytes.
type Extraction struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"` // 0 when the format has no page notion
	WordCount int    `json:"word_count"`
}

// Extract parses content according to its declared format.
func Extract(ctx context.Context, content []byte, format Format) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ex *Extraction
	var err error
	switch format {
	case FormatPDF:
		ex, err = extractPDF(content)
	case FormatDocx, FormatDoc:
		// Legacy .doc uploads are routinely OOXML with the wrong extension;
		// genuine OLE2 binaries fail the zip open and surface as a parse error.
		ex, err = extractDocx(content)
	case FormatTXT:
		ex, err = extractText(content)
	default:
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", format, err)
	}
	ex.WordCount = len(strings.Fields(ex.Text))
	return ex, nil
}
