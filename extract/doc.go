// Package extract turns uploaded bytes into normalized plain text.
//
// The format is chosen from the filename extension by FormatFor; each Format
// has an Extractor registered in a Registry. Every extractor's output goes
// through Clean before it is returned, so downstream chunking sees the same
// line structure regardless of the source format:
//
//	reg, err := extract.NewRegistry(extract.WithLogger(logger))
//	text, err := reg.Extract(ctx, "report.pdf", data)
//
// PDF extraction rebuilds lines from positioned glyph runs and marks lines set
// in a noticeably larger font as "# " headings, which the section chunker
// later uses as boundaries.
package extract
