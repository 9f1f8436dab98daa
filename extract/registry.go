package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/lectern/core"
)

// Extractor converts the raw bytes of one format into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// Registry dispatches extraction by format.
type Registry struct {
	extractors     map[Format]Extractor
	headingRatio   float64
	mergeTolerance float64
	maxExpanded    int64
	logger         *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		r.logger = logger
		return nil
	}
}

// WithExtractor registers or replaces the extractor for a format.
func WithExtractor(format Format, e Extractor) Option {
	return func(r *Registry) error {
		if e == nil {
			return errors.New("extractor is nil")
		}
		r.extractors[format] = e
		return nil
	}
}

// WithHeadingRatio sets how much larger than the average font size a PDF line
// must be to count as a heading.
func WithHeadingRatio(ratio float64) Option {
	return func(r *Registry) error {
		if ratio <= 0 {
			return fmt.Errorf("heading ratio must be positive, got %v", ratio)
		}
		r.headingRatio = ratio
		return nil
	}
}

// WithMergeTolerance sets the font size difference, in points, below which
// consecutive PDF lines of the same kind are merged.
func WithMergeTolerance(points float64) Option {
	return func(r *Registry) error {
		if points < 0 {
			return fmt.Errorf("merge tolerance must not be negative, got %v", points)
		}
		r.mergeTolerance = points
		return nil
	}
}

// WithMaxExpandedSize bounds how many bytes are decompressed from a DOCX
// archive. Default is DefaultMaxExpandedSize.
func WithMaxExpandedSize(size int64) Option {
	return func(r *Registry) error {
		if size <= 0 {
			return fmt.Errorf("max expanded size must be positive, got %d", size)
		}
		r.maxExpanded = size
		return nil
	}
}

// NewRegistry returns a Registry with extractors for every supported format.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		extractors:     make(map[Format]Extractor),
		headingRatio:   DefaultHeadingRatio,
		mergeTolerance: DefaultMergeTolerance,
		maxExpanded:    DefaultMaxExpandedSize,
		logger:         slog.Default(),
	}

	// Options may override the PDF constants, so defaults are registered
	// after they run and only where nothing was supplied.
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "extract")

	defaults := map[Format]Extractor{
		FormatText:     ExtractorFunc(extractText),
		FormatMarkdown: ExtractorFunc(extractText),
		FormatDOCX:     &docxExtractor{maxSize: r.maxExpanded},
		FormatDOC:      ExtractorFunc(extractDOC),
		FormatPDF:      &pdfExtractor{headingRatio: r.headingRatio, mergeTolerance: r.mergeTolerance},
	}
	for format, e := range defaults {
		if _, ok := r.extractors[format]; !ok {
			r.extractors[format] = e
		}
	}
	return r, nil
}

// Extract selects the extractor for filename and returns cleaned text.
func (r *Registry) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	format, err := FormatFor(filename)
	if err != nil {
		return "", err
	}
	e, ok := r.extractors[format]
	if !ok {
		return "", fmt.Errorf("%w: no extractor for %s", core.ErrUnsupportedFormat, format)
	}

	raw, err := e.Extract(ctx, data)
	if err != nil {
		if errors.Is(err, core.ErrParseFailure) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %w", core.ErrParseFailure, format, err)
	}

	text := Clean(raw)
	r.logger.Debug("extracted text", "filename", filename, "format", format.String(),
		"bytes", len(data), "chars", len(text))
	return text, nil
}
