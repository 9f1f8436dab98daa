package extract

import (
	"fmt"

	"github.com/poiesic/lectern/core"
)

// Format identifies a supported source format.
type Format int

const (
	FormatUnknown Format = iota
	FormatText
	FormatMarkdown
	FormatPDF
	FormatDOCX
	FormatDOC
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatMarkdown:
		return "markdown"
	case FormatPDF:
		return "pdf"
	case FormatDOCX:
		return "docx"
	case FormatDOC:
		return "doc"
	}
	return "unknown"
}

// FormatFor maps a filename to its Format by lowercase extension.
func FormatFor(filename string) (Format, error) {
	switch ext := core.ContentTypeOf(filename); ext {
	case ".txt":
		return FormatText, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case ".doc":
		return FormatDOC, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, ext)
	}
}

// MIMEType returns the conventional MIME type of the format.
func (f Format) MIMEType() string {
	switch f {
	case FormatText:
		return "text/plain"
	case FormatMarkdown:
		return "text/markdown"
	case FormatPDF:
		return "application/pdf"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatDOC:
		return "application/msword"
	}
	return "application/octet-stream"
}
