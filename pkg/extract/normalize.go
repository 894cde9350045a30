package extract

import (
	"regexp"
	"strings"
)

var (
	spaceRun   = regexp.MustCompile(`[^\S\n]+`)
	newlineRun = regexp.MustCompile(`\n\s*\n+`)
	lineSpace  = regexp.MustCompile(` *\n *`)
)

// Normalize collapses runs of blanks into one space and runs of blank lines into one newline.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	s = spaceRun.ReplaceAllString(s, " ")
	s = lineSpace.ReplaceAllString(s, "\n")
	s = newlineRun.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// Truncate cuts s to at most n runes. It reports whether anything was removed.
func Truncate(s string, n int) (string, bool) {
	if n <= 0 {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
