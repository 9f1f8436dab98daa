package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func glyphs(s string, x, y, size float64) []textRun {
	runs := make([]textRun, 0, len(s))
	w := size * 0.5
	for i, r := range s {
		runs = append(runs, textRun{Text: string(r), Size: size, X: x + float64(i)*w, Y: y, W: w})
	}
	return runs
}

func TestGroupLines(t *testing.T) {
	var runs []textRun
	runs = append(runs, glyphs("Intro", 72, 700, 18)...)
	runs = append(runs, glyphs("Hello", 72, 670, 10)...)
	// A word further along the same baseline, separated by a gap.
	runs = append(runs, glyphs("world", 72+5*5+10, 670, 10)...)
	runs = append(runs, glyphs("Next line", 72, 655, 10)...)

	lines := groupLines(runs)
	assert.Equal(t, []pdfLine{
		{Text: "Intro", Size: 18},
		{Text: "Hello world", Size: 10},
		{Text: "Next line", Size: 10},
	}, lines)
}

func TestSpanSizes(t *testing.T) {
	var runs []textRun
	runs = append(runs, glyphs("Overview", 72, 700, 20)...)
	runs = append(runs, glyphs("A long body line that carries most of the glyphs on the page", 72, 670, 10)...)
	runs = append(runs, textRun{Text: " ", Size: 10, X: 400, Y: 670, W: 5})
	// Same line, bold font.
	bold := glyphs("note", 410, 670, 10)
	for i := range bold {
		bold[i].Font = "Helvetica-Bold"
	}
	runs = append(runs, bold...)

	assert.Equal(t, []float64{20, 10, 10}, spanSizes(runs))

	// One span per distinct run, not one per glyph.
	sizes := spanSizes(runs)
	var sum float64
	for _, s := range sizes {
		sum += s
	}
	assert.InDelta(t, 40.0/3, sum/float64(len(sizes)), 1e-9)
	assert.Empty(t, spanSizes([]textRun{{Text: " ", Size: 10}}))
}

func TestGroupLines_SkipsBlankLines(t *testing.T) {
	runs := []textRun{
		{Text: " ", Size: 10, X: 0, Y: 100, W: 3},
		{Text: "A", Size: 10, X: 0, Y: 80, W: 5},
	}
	lines := groupLines(runs)
	assert.Equal(t, []pdfLine{{Text: "A", Size: 10}}, lines)
}

func TestLayoutLines(t *testing.T) {
	lines := []pdfLine{
		{Text: "Getting Started", Size: 16},
		{Text: "with lectern", Size: 16.5},
		{Text: "Install the binary", Size: 10},
		{Text: "and run it.", Size: 10.4},
		{Text: "Footnote", Size: 8},
		{Text: "Usage", Size: 16},
	}
	// avg 12 -> threshold 14.4
	got := layoutLines(lines, 12, DefaultHeadingRatio, DefaultMergeTolerance)
	want := "# Getting Started with lectern\nInstall the binary and run it.\nFootnote\n# Usage"
	assert.Equal(t, want, got)
}

func TestLayoutLines_NoAverageMeansNoHeadings(t *testing.T) {
	got := layoutLines([]pdfLine{{Text: "a", Size: 0}, {Text: "b", Size: 0}}, 0, DefaultHeadingRatio, DefaultMergeTolerance)
	assert.Equal(t, "a b", got)
}
