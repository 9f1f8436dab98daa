package extract

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/lectern/core"
)

const (
	// DefaultHeadingRatio is the font size multiple of the document average
	// at which a line becomes a heading.
	DefaultHeadingRatio = 1.2
	// DefaultMergeTolerance is the font size difference, in points, under
	// which consecutive lines of the same kind are merged.
	DefaultMergeTolerance = 1.0
)

// textRun is one positioned piece of text drawn on a page.
type textRun struct {
	Text string
	Font string
	Size float64
	X, Y float64
	W    float64
}

// pdfLine is a reconstructed line of text.
type pdfLine struct {
	Text string
	Size float64 // largest font size on the line
}

type pdfExtractor struct {
	headingRatio   float64
	mergeTolerance float64
}

func (e *pdfExtractor) Extract(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		// The PDF library panics on some malformed content streams.
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf: %v", core.ErrParseFailure, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %w", core.ErrParseFailure, err)
	}

	var (
		lines   []pdfLine
		sizeSum float64
		sizeN   int
	)
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		runs := make([]textRun, 0, len(content.Text))
		for _, t := range content.Text {
			runs = append(runs, textRun{Text: t.S, Font: t.Font, Size: t.FontSize, X: t.X, Y: t.Y, W: t.W})
		}
		for _, size := range spanSizes(runs) {
			sizeSum += size
			sizeN++
		}
		lines = append(lines, groupLines(runs)...)
	}

	if len(lines) == 0 {
		return "", fmt.Errorf("%w: pdf: %w", core.ErrParseFailure, errNoText)
	}

	var avg float64
	if sizeN > 0 {
		avg = sizeSum / float64(sizeN)
	}
	return layoutLines(lines, avg, e.headingRatio, e.mergeTolerance), nil
}

// newLine reports whether next starts a new baseline after prev.
func newLine(prev, next *textRun) bool {
	return math.Abs(next.Y-prev.Y) > math.Max(1, 0.5*math.Max(next.Size, prev.Size))
}

// spanSizes returns one font size per span: a stretch of visible glyphs on one
// line in the same font and size. The heading threshold averages these.
func spanSizes(runs []textRun) []float64 {
	var (
		sizes []float64
		prev  *textRun
	)
	for i := range runs {
		r := &runs[i]
		if r.Size <= 0 || strings.TrimSpace(r.Text) == "" {
			continue
		}
		if prev == nil || newLine(prev, r) || r.Size != prev.Size || r.Font != prev.Font {
			sizes = append(sizes, r.Size)
		}
		prev = r
	}
	return sizes
}

// groupLines joins runs that share a baseline into lines, keeping drawing order.
func groupLines(runs []textRun) []pdfLine {
	var (
		lines   []pdfLine
		b       strings.Builder
		current pdfLine
		prev    *textRun
	)
	flush := func() {
		current.Text = strings.TrimSpace(b.String())
		if current.Text != "" {
			lines = append(lines, current)
		}
		b.Reset()
		current = pdfLine{}
	}

	for i := range runs {
		r := &runs[i]
		if prev != nil && newLine(prev, r) {
			flush()
			prev = nil
		}
		if prev != nil && needsSpace(prev, r, b.String()) {
			b.WriteByte(' ')
		}
		b.WriteString(r.Text)
		if strings.TrimSpace(r.Text) != "" {
			current.Size = math.Max(current.Size, r.Size)
		}
		prev = r
	}
	flush()
	return lines
}

// needsSpace reports whether a visible gap separates two runs on one line.
func needsSpace(prev, next *textRun, written string) bool {
	if strings.HasSuffix(written, " ") || strings.HasPrefix(next.Text, " ") {
		return false
	}
	gap := next.X - (prev.X + prev.W)
	return gap > 0.15*math.Max(next.Size, 1)
}

// layoutLines marks heading lines and merges consecutive lines of the same
// kind and similar size. Headings are emitted as "# text", one block per line.
func layoutLines(lines []pdfLine, avgSize, ratio, tolerance float64) string {
	threshold := avgSize * ratio

	type block struct {
		text    string
		size    float64
		heading bool
	}
	var blocks []block
	for _, line := range lines {
		heading := threshold > 0 && line.Size >= threshold
		if n := len(blocks); n > 0 {
			last := &blocks[n-1]
			if last.heading == heading && math.Abs(last.size-line.Size) < tolerance {
				last.text += " " + line.Text
				continue
			}
		}
		blocks = append(blocks, block{text: line.Text, size: line.Size, heading: heading})
	}

	out := make([]string, len(blocks))
	for i, b := range blocks {
		if b.heading {
			out[i] = "# " + b.text
		} else {
			out[i] = b.text
		}
	}
	return strings.Join(out, "\n")
}
