package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/lectern/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDOCX creates a minimal DOCX file in memory.
func createTestDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	ct, err := w.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`))
	require.NoError(t, err)

	if documentXML != "" {
		doc, err := w.Create("word/document.xml")
		require.NoError(t, err)
		_, err = doc.Write([]byte(documentXML))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{"notes.txt", FormatText, false},
		{"README.MD", FormatMarkdown, false},
		{"guide.markdown", FormatMarkdown, false},
		{"paper.PDF", FormatPDF, false},
		{"letter.docx", FormatDOCX, false},
		{"old.doc", FormatDOC, false},
		{"image.png", FormatUnknown, true},
		{"noext", FormatUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := FormatFor(tt.filename)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodeText(t *testing.T) {
	assert.Equal(t, "hello", DecodeText([]byte("hello")))
	assert.Equal(t, "hello", DecodeText(append([]byte{0xEF, 0xBB, 0xBF}, "hello"...)))
	assert.Equal(t, "café", DecodeText([]byte{'c', 'a', 'f', 0xE9}))
	assert.Equal(t, "naïve ünïcode", DecodeText([]byte("naïve ünïcode")))
}

func TestClean(t *testing.T) {
	in := "  Intro   text\there  \n\nPage 3\n  page 12  \n4 of 10\nSee Page 1 for details\n\n\n\nEnd\r\n"
	want := "Intro text here\nSee Page 1 for details\nEnd"
	assert.Equal(t, want, Clean(in))
	assert.Equal(t, "", Clean(" \n\t\n"))
}

func TestRegistry_Text(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	text, err := reg.Extract(context.Background(), "a.txt", []byte("# Title\n\n\nBody   line\nPage 2\n"))
	require.NoError(t, err)
	assert.Equal(t, "# Title\nBody line", text)
}

func TestRegistry_Unsupported(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	_, err = reg.Extract(context.Background(), "a.exe", []byte("x"))
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestRegistry_DOCX(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	docXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>World</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t xml:space="preserve">   </w:t></w:r></w:p>
<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
</w:body>
</w:document>`

	raw, err := (&docxExtractor{maxSize: DefaultMaxExpandedSize}).Extract(context.Background(), createTestDOCX(t, docXML))
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n\nSecond paragraph", raw)

	text, err := reg.Extract(context.Background(), "a.docx", createTestDOCX(t, docXML))
	require.NoError(t, err)
	assert.Equal(t, "Hello World\nSecond paragraph", text)
}

func TestRegistry_DOCXCorrupt(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	_, err = reg.Extract(context.Background(), "a.docx", []byte("not a zip archive"))
	assert.ErrorIs(t, err, core.ErrParseFailure)

	_, err = reg.Extract(context.Background(), "a.docx", createTestDOCX(t, ""))
	assert.ErrorIs(t, err, core.ErrParseFailure)
}

func TestRegistry_DOCXExpandedSizeLimit(t *testing.T) {
	reg, err := NewRegistry(WithMaxExpandedSize(512))
	require.NoError(t, err)

	var body strings.Builder
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for body.Len() < 4096 {
		body.WriteString(`<w:p><w:r><w:t>aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)
	archive := createTestDOCX(t, body.String())
	require.Less(t, len(archive), 4096, "the archive compresses well below its expanded size")

	_, err = reg.Extract(context.Background(), "big.docx", archive)
	assert.ErrorIs(t, err, core.ErrParseFailure)
	assert.ErrorIs(t, err, errTooLarge)

	_, err = NewRegistry(WithMaxExpandedSize(0))
	assert.Error(t, err)
}

func TestRegistry_PDFCorrupt(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	_, err = reg.Extract(context.Background(), "a.pdf", []byte("definitely not a pdf"))
	assert.ErrorIs(t, err, core.ErrParseFailure)
}

func TestRegistry_WithExtractor(t *testing.T) {
	reg, err := NewRegistry(WithExtractor(FormatDOC, ExtractorFunc(func(ctx context.Context, data []byte) (string, error) {
		return "converted   " + string(data), nil
	})))
	require.NoError(t, err)

	text, err := reg.Extract(context.Background(), "legacy.doc", []byte("body"))
	require.NoError(t, err)
	assert.Equal(t, "converted body", text)
}

func TestRegistry_WrapsExtractorErrors(t *testing.T) {
	boom := errors.New("boom")
	reg, err := NewRegistry(WithExtractor(FormatText, ExtractorFunc(func(ctx context.Context, data []byte) (string, error) {
		return "", boom
	})))
	require.NoError(t, err)

	_, err = reg.Extract(context.Background(), "a.txt", []byte("x"))
	assert.ErrorIs(t, err, core.ErrParseFailure)
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_InvalidOptions(t *testing.T) {
	_, err := NewRegistry(WithHeadingRatio(0))
	assert.Error(t, err)
	_, err = NewRegistry(WithMergeTolerance(-1))
	assert.Error(t, err)
	_, err = NewRegistry(WithExtractor(FormatText, nil))
	assert.Error(t, err)
}
