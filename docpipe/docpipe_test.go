package docpipe_test

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Haroldtrapier/sturgeon-ai-sub000/docpipe"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want docpipe.Format
		ok   bool
	}{
		{"pdf", docpipe.FormatPDF, true},
		{".pdf", docpipe.FormatPDF, true},
		{"PDF", docpipe.FormatPDF, true},
		{"docx", docpipe.FormatDocx, true},
		{"doc", docpipe.FormatDoc, true},
		{"txt", docpipe.FormatTXT, true},
		{".TXT", docpipe.FormatTXT, true},
		{"text", docpipe.FormatTXT, true},
		{"html", "", false},
		{"exe", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, err := docpipe.ParseFormat(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseFormat(%q) should fail", c.in)
		}
	}
}

func TestTextRoundTripVerbatim(t *testing.T) {
	// txt extraction must be lossless, byte for byte.
	original := "Line one\r\n\tLine two with  double  spaces\n\nfinal line, no newline"

	ex, err := docpipe.Extract(context.Background(), []byte(original), docpipe.FormatTXT)
	if err != nil {
		t.Fatal(err)
	}
	if ex.Text != original {
		t.Fatalf("txt extraction is not verbatim:\ngot  %q\nwant %q", ex.Text, original)
	}
	if ex.PageCount != 0 {
		t.Fatalf("txt should have no page count, got %d", ex.PageCount)
	}
	if ex.WordCount != 11 {
		t.Fatalf("got word count %d, want 11", ex.WordCount)
	}
}

func TestTextEmptyRejected(t *testing.T) {
	_, err := docpipe.Extract(context.Background(), nil, docpipe.FormatTXT)
	if err == nil {
		t.Fatal("empty text document should fail extraction")
	}
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDocxExtraction(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`

	ex, err := docpipe.Extract(context.Background(), buildDocx(t, doc), docpipe.FormatDocx)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(ex.Text, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d paragraphs, want 2: %q", len(lines), ex.Text)
	}
	if lines[0] != "First paragraph." {
		t.Fatalf("got first paragraph %q", lines[0])
	}
	if lines[1] != "Second paragraph." {
		t.Fatalf("got second paragraph %q", lines[1])
	}
	if ex.WordCount != 4 {
		t.Fatalf("got word count %d, want 4", ex.WordCount)
	}
}

func TestDocxMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("other.xml")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("<x/>"))
	zw.Close()

	_, err = docpipe.Extract(context.Background(), buf.Bytes(), docpipe.FormatDocx)
	if err == nil {
		t.Fatal("archive without word/document.xml should fail")
	}
}

func TestDocFallsBackToOOXMLPath(t *testing.T) {
	doc := `<w:document xmlns:w="ns"><w:body><w:p><w:r><w:t>Mislabeled docx.</w:t></w:r></w:p></w:body></w:document>`

	ex, err := docpipe.Extract(context.Background(), buildDocx(t, doc), docpipe.FormatDoc)
	if err != nil {
		t.Fatal(err)
	}
	if ex.Text != "Mislabeled docx." {
		t.Fatalf("got %q", ex.Text)
	}
}

func TestCorruptBytesFailExtraction(t *testing.T) {
	garbage := []byte{0xd0, 0xcf, 0x11, 0xe0, 0x00, 0x01, 0x02}

	for _, f := range []docpipe.Format{docpipe.FormatPDF, docpipe.FormatDocx, docpipe.FormatDoc} {
		if _, err := docpipe.Extract(context.Background(), garbage, f); err == nil {
			t.Errorf("format %s: garbage bytes should fail extraction", f)
		}
	}
}

func TestUnknownFormatRejected(t *testing.T) {
	_, err := docpipe.Extract(context.Background(), []byte("x"), docpipe.Format("html"))
	if err == nil {
		t.Fatal("unknown format should be rejected")
	}
}

func TestExtractHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := docpipe.Extract(ctx, []byte("hello"), docpipe.FormatTXT)
	if err == nil {
		t.Fatal("cancelled context should abort extraction")
	}
}
