package extract

import (
	"regexp"
	"strings"
)

var (
	pageNumberLine = regexp.MustCompile(`(?i)^\s*page\s+\d+\s*$`)
	pageOfLine     = regexp.MustCompile(`^\s*\d+\s+of\s+\d+\s*$`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// Clean strips page-number artifacts and normalizes whitespace.
// Lines keep their order; empty lines are dropped.
func Clean(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if pageNumberLine.MatchString(line) || pageOfLine.MatchString(line) {
			continue
		}
		line = strings.TrimSpace(whitespaceRun.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
