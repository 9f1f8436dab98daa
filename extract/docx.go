package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"code.sajari.com/docconv"
	"github.com/poiesic/lectern/core"
)

// documentXML is the subset of word/document.xml we read.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

// DefaultMaxExpandedSize caps the decompressed size of the part of an
// archive-based format that is read into memory.
const DefaultMaxExpandedSize = core.DefaultMaxUploadSize

// docxExtractor joins the non-empty paragraphs of word/document.xml with
// blank lines.
type docxExtractor struct {
	maxSize int64
}

func (d *docxExtractor) Extract(_ context.Context, data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: docx: %w", core.ErrParseFailure, err)
	}

	var content []byte
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		if file.UncompressedSize64 > uint64(d.maxSize) {
			return "", fmt.Errorf("%w: docx: %w", core.ErrParseFailure, d.tooLarge())
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: docx: %w", core.ErrParseFailure, err)
		}
		// The header size can lie, so the read is bounded too.
		content, err = io.ReadAll(io.LimitReader(rc, d.maxSize+1))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: docx: %w", core.ErrParseFailure, err)
		}
		if int64(len(content)) > d.maxSize {
			return "", fmt.Errorf("%w: docx: %w", core.ErrParseFailure, d.tooLarge())
		}
		break
	}
	if content == nil {
		return "", fmt.Errorf("%w: docx: word/document.xml missing", core.ErrParseFailure)
	}

	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("%w: docx: %w", core.ErrParseFailure, err)
	}

	parts := make([]string, 0, len(doc.Body.Paragraphs))
	for _, para := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range para.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
		if text := b.String(); strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (d *docxExtractor) tooLarge() error {
	return fmt.Errorf("%w: word/document.xml exceeds %d bytes", errTooLarge, d.maxSize)
}

// extractDOC converts legacy Word files through docconv, which shells out to
// antiword or wv.
func extractDOC(ctx context.Context, data []byte) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), FormatDOC.MIMEType(), false)
	if err != nil {
		return "", fmt.Errorf("%w: doc: %w", core.ErrParseFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Body) == "" {
		return "", fmt.Errorf("%w: doc: %w", core.ErrParseFailure, errNoText)
	}
	return res.Body, nil
}

var (
	errNoText   = errors.New("no extractable text")
	errTooLarge = errors.New("expanded content too large")
)
